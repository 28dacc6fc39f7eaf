package observability

import "github.com/getsentry/sentry-go"

// ReportFatal forwards err to Sentry if a hub has been configured via
// sentry.Init elsewhere in the host process; it is a no-op otherwise, so the
// dependency never forces an operator to run Sentry to use this module.
func ReportFatal(err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}
