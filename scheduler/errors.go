package scheduler

import "errors"

var (
	// ErrSchedulerClosed is returned by Post* once Close has been called.
	ErrSchedulerClosed = errors.New("scheduler: closed")
	// ErrSchedulerFull is returned by Post* when the target band's buffer
	// is full. Posting never blocks to avoid stalling a caller inside a
	// provider callback.
	ErrSchedulerFull = errors.New("scheduler: band buffer full")
)
