package services

import (
	"context"
	"log"

	"github.com/tripreport/backend/internal/metrics"
)

type committedAction struct {
	name string
	ref  string
	undo func(ctx context.Context) error
}

// Saga records side effects that have been committed to external systems
// so they can be undone, newest first, when a later step fails.
type Saga struct {
	name    string
	actions []committedAction
}

func NewSaga(name string) *Saga {
	return &Saga{name: name}
}

// Record appends a committed action. ref identifies the resource in logs.
func (s *Saga) Record(name, ref string, undo func(ctx context.Context) error) {
	s.actions = append(s.actions, committedAction{name: name, ref: ref, undo: undo})
}

func (s *Saga) Len() int {
	return len(s.actions)
}

// Compensate runs every undo in reverse order. A failed undo is logged and
// counted and does not stop the rest. It returns the number of failures.
func (s *Saga) Compensate(ctx context.Context) int {
	failed := 0
	for i := len(s.actions) - 1; i >= 0; i-- {
		a := s.actions[i]
		metrics.Compensations.WithLabelValues(a.name).Inc()
		if err := a.undo(ctx); err != nil {
			failed++
			metrics.CompensationFailures.WithLabelValues(a.name).Inc()
			log.Printf("[%s] compensation %s failed ref=%s err=%v", s.name, a.name, a.ref, err)
			continue
		}
		log.Printf("[%s] compensated %s ref=%s", s.name, a.name, a.ref)
	}
	s.actions = nil
	return failed
}
