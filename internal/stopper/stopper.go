// Package stopper provides a trimmed cooperative-shutdown context.
// Suspension points are ordinary blocking HTTP/DB calls, so this
// package only gives a loop a way to notice "stop now" between units
// of work, without a full group-of-goroutines bookkeeping layer. No
// other package in this module imports it; the worker pool and the
// bulk-poll loop check ctx directly.
package stopper

import "context"

// Context wraps a context.Context and adds IsStopping, a non-blocking
// check of Done().
type Context struct {
	context.Context
}

// WithCancel returns a stopper Context and its cancel function.
func WithCancel(parent context.Context) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	return &Context{Context: ctx}, cancel
}

// IsStopping reports whether the context has been canceled.
func (c *Context) IsStopping() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
