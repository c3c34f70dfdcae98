// Package mock provides an in-memory test double for [history.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.RecentResult = []history.Session{{Transcript: "hello"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("Insert"); got != 1 {
//	    t.Errorf("expected 1 Insert call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/zenzone/pkg/history"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [history.Store]. All exported
// *Err fields default to nil (success); all exported *Result fields default
// to nil (empty non-nil slice returned).
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// inserted holds every session passed to Insert, after ID assignment.
	inserted []history.Session

	// nextID is the ID assigned to the next inserted session.
	nextID int64

	// InsertErr is returned by [Store.Insert] when non-nil. The session is
	// not recorded and no ID is assigned.
	InsertErr error

	// RecentResult is returned by [Store.Recent]. When nil, Recent returns
	// the sessions previously recorded via Insert, newest first.
	RecentResult []history.Session

	// RecentErr is returned by [Store.Recent] when non-nil.
	RecentErr error

	// SearchTranscriptsResult is returned by [Store.SearchTranscripts].
	SearchTranscriptsResult []history.Session

	// SearchTranscriptsErr is returned by [Store.SearchTranscripts] when non-nil.
	SearchTranscriptsErr error

	// SimilarResult is returned by [Store.Similar].
	SimilarResult []history.Session

	// SimilarErr is returned by [Store.Similar] when non-nil.
	SimilarErr error

	// StressTrendResult is returned by [Store.StressTrend].
	StressTrendResult []history.TrendPoint

	// StressTrendErr is returned by [Store.StressTrend] when non-nil.
	StressTrendErr error
}

// Ensure Store satisfies the interface at compile time.
var _ history.Store = (*Store)(nil)

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Inserted returns a copy of every session stored via Insert, in order.
func (m *Store) Inserted() []history.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Session, len(m.inserted))
	copy(out, m.inserted)
	return out
}

// Reset clears all recorded calls and inserted sessions without altering
// response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.inserted = nil
	m.nextID = 0
}

// Insert implements [history.Store]. On success it assigns a sequential ID,
// stamps RecordedAt, and defaults an empty UserID, mirroring the production
// backend.
func (m *Store) Insert(_ context.Context, s *history.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Insert", Args: []any{s}})
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.nextID++
	s.ID = m.nextID
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}
	if s.UserID == "" {
		s.UserID = history.DefaultUserID
	}
	m.inserted = append(m.inserted, *s)
	return nil
}

// Recent implements [history.Store].
func (m *Store) Recent(_ context.Context, userID string, limit int) ([]history.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Recent", Args: []any{userID, limit}})
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	if m.RecentResult != nil {
		out := make([]history.Session, len(m.RecentResult))
		copy(out, m.RecentResult)
		return out, nil
	}

	out := []history.Session{}
	for i := len(m.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		if userID != "" && m.inserted[i].UserID != userID {
			continue
		}
		out = append(out, m.inserted[i])
	}
	return out, nil
}

// SearchTranscripts implements [history.Store].
func (m *Store) SearchTranscripts(_ context.Context, query string, limit int) ([]history.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchTranscripts", Args: []any{query, limit}})
	if m.SearchTranscriptsResult == nil {
		return []history.Session{}, m.SearchTranscriptsErr
	}
	out := make([]history.Session, len(m.SearchTranscriptsResult))
	copy(out, m.SearchTranscriptsResult)
	return out, m.SearchTranscriptsErr
}

// Similar implements [history.Store].
func (m *Store) Similar(_ context.Context, embedding []float32, limit int) ([]history.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Similar", Args: []any{embedding, limit}})
	if m.SimilarResult == nil {
		return []history.Session{}, m.SimilarErr
	}
	out := make([]history.Session, len(m.SimilarResult))
	copy(out, m.SimilarResult)
	return out, m.SimilarErr
}

// StressTrend implements [history.Store].
func (m *Store) StressTrend(_ context.Context, userID string, days int) ([]history.TrendPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "StressTrend", Args: []any{userID, days}})
	if m.StressTrendResult == nil {
		return []history.TrendPoint{}, m.StressTrendErr
	}
	out := make([]history.TrendPoint, len(m.StressTrendResult))
	copy(out, m.StressTrendResult)
	return out, m.StressTrendErr
}
