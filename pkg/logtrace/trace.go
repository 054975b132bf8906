// Package logtrace is a tiny in-memory, append-only recorder of operation
// steps, keyed by the kind of object involved and that object's id. It is
// a debugging aid for the B+Tree's Context — nothing in this package
// affects correctness, and a nil *Trace is always safe to use.
package logtrace

import (
	"fmt"
	"sync"
)

// Trace collects info lines under class/id buckets.
type Trace struct {
	mu      sync.Mutex
	entries map[string]map[string][]string
}

// New returns an empty Trace.
func New() *Trace {
	return &Trace{entries: make(map[string]map[string][]string)}
}

// Add appends info lines under class/id, and under every id in
// relatedIDs too — useful for recording one event against both a parent
// and the child it affects.
func (t *Trace) Add(class, id string, info []string, relatedIDs ...string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := append([]string{id}, relatedIDs...)
	for _, k := range ids {
		bucket, ok := t.entries[class]
		if !ok {
			bucket = make(map[string][]string)
			t.entries[class] = bucket
		}
		bucket[k] = append(bucket[k], info...)
		bucket[k] = append(bucket[k], "-------")
	}
}

// Logf formats info with fmt.Sprintf before appending it under class/id.
func (t *Trace) Logf(class, id, format string, args ...any) {
	if t == nil {
		return
	}
	t.Add(class, id, []string{fmt.Sprintf(format, args...)})
}

// Get returns every info line recorded for class/id, in recorded order.
func (t *Trace) Get(class, id string) []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.entries[class][id]...)
}

// Class returns every id and its info lines recorded under class.
func (t *Trace) Class(class string) map[string][]string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.entries[class]))
	for k, v := range t.entries[class] {
		out[k] = append([]string(nil), v...)
	}
	return out
}
