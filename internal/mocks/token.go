package mocks

import "time"

// CompletedToken is an already finished token carrying err.
type CompletedToken struct {
	err  error
	done chan struct{}
}

// NewCompletedToken returns a finished token; err may be nil.
func NewCompletedToken(err error) *CompletedToken {
	done := make(chan struct{})
	close(done)
	return &CompletedToken{err: err, done: done}
}

func (t *CompletedToken) Wait() bool                     { return true }
func (t *CompletedToken) WaitTimeout(time.Duration) bool { return true }
func (t *CompletedToken) Done() <-chan struct{}          { return t.done }
func (t *CompletedToken) Error() error                   { return t.err }

// PendingToken never completes.
type PendingToken struct{}

func (PendingToken) Wait() bool                     { return false }
func (PendingToken) WaitTimeout(time.Duration) bool { return false }
func (PendingToken) Done() <-chan struct{}          { return nil }
func (PendingToken) Error() error                   { return nil }
