package cachetower

import (
	"sort"
	"strings"
)

// HashKeyEvictionMessage describes a batch of element-key evictions scoped
// to one hash-table key, as published on the remote-eviction extension's
// hash-key-eviction channel. Two messages are equal when their hash-table
// keys match and their element-key collections contain the same elements,
// regardless of order.
type HashKeyEvictionMessage struct {
	HashTableKey string
	ElementKeys  []string
}

// NewHashKeyEvictionMessage builds a message, copying elementKeys so the
// caller's slice can be reused or mutated afterward.
func NewHashKeyEvictionMessage(hashTableKey string, elementKeys []string) HashKeyEvictionMessage {
	cp := make([]string, len(elementKeys))
	copy(cp, elementKeys)
	return HashKeyEvictionMessage{HashTableKey: hashTableKey, ElementKeys: cp}
}

// Equal reports order-independent equality of the two messages.
func (m HashKeyEvictionMessage) Equal(other HashKeyEvictionMessage) bool {
	if m.HashTableKey != other.HashTableKey {
		return false
	}
	return setsEqual(m.ElementKeys, other.ElementKeys)
}

func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, k := range a {
		counts[k]++
	}
	for _, k := range b {
		counts[k]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// DedupeKey returns an order-independent string suitable for use as a set
// member, matching the requirement that a HashKeyEvictionMessage hashes the
// same way regardless of the order its element keys arrived in.
func (m HashKeyEvictionMessage) DedupeKey() string {
	sorted := make([]string, len(m.ElementKeys))
	copy(sorted, m.ElementKeys)
	sort.Strings(sorted)
	return m.HashTableKey + "\x00" + strings.Join(sorted, "\x00")
}
