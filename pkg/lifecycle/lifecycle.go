// Package lifecycle opens process resources in order and releases them in
// reverse, both when a later resource fails to open and at shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Stage is one resource. Close may be nil for stages that hold nothing.
type Stage struct {
	Name  string
	Open  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

type Sequence struct {
	name   string
	stages []Stage

	mu     sync.Mutex
	opened []int
}

func New(name string) *Sequence {
	return &Sequence{name: name}
}

func (s *Sequence) Add(stage Stage) *Sequence {
	s.stages = append(s.stages, stage)
	return s
}

// Open runs every stage in order. On failure the stages already opened are
// closed in reverse order before the error is returned.
func (s *Sequence) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, stage := range s.stages {
		if err := stage.Open(ctx); err != nil {
			openErr := fmt.Errorf("%s: open %s: %w", s.name, stage.Name, err)
			if closeErr := s.closeLocked(context.WithoutCancel(ctx)); closeErr != nil {
				return errors.Join(openErr, closeErr)
			}
			return openErr
		}
		s.opened = append(s.opened, i)
	}
	return nil
}

// Close releases every opened stage in reverse order. It keeps going past
// failures and is a no-op when called again.
func (s *Sequence) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx)
}

func (s *Sequence) closeLocked(ctx context.Context) error {
	var errs []error
	for i := len(s.opened) - 1; i >= 0; i-- {
		stage := s.stages[s.opened[i]]
		if stage.Close == nil {
			continue
		}
		if err := stage.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", stage.Name, err))
		}
	}
	s.opened = nil
	return errors.Join(errs...)
}
