// Package refresh makes sure a client never runs two token refreshes at
// once. Every caller that needs fresh tokens while a refresh is in flight
// waits for that refresh and receives its outcome.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds a single refresh call.
const DefaultTimeout = 5 * time.Second

// Result is the token pair produced by a refresh.
type Result struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Func performs the network refresh. ctx carries the coalescer's own
// deadline, not any single caller's.
type Func func(ctx context.Context, accessToken, refreshToken string) (Result, error)

// Stats describes coalescer activity.
type Stats struct {
	// Calls is the number of refreshes actually sent.
	Calls int64
	// InFlight reports whether a refresh is running now.
	InFlight bool
}

type call struct {
	done chan struct{}
	res  Result
	err  error
}

// Coalescer is Idle when pending is nil and InFlight otherwise.
type Coalescer struct {
	fn      Func
	timeout time.Duration

	mu      sync.Mutex
	pending *call
	calls   int64
}

func New(fn Func, timeout time.Duration) *Coalescer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coalescer{fn: fn, timeout: timeout}
}

// RefreshOnce joins the in-flight refresh or starts one with the given
// tokens. Cancelling ctx only stops this caller from waiting; the shared
// call keeps running for the others. Failures are not retried.
func (c *Coalescer) RefreshOnce(ctx context.Context, accessToken, refreshToken string) (Result, error) {
	c.mu.Lock()
	cl := c.pending
	if cl == nil {
		cl = &call{done: make(chan struct{})}
		c.pending = cl
		c.calls++
		go c.run(context.WithoutCancel(ctx), cl, accessToken, refreshToken)
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.res, cl.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (c *Coalescer) run(parent context.Context, cl *call, accessToken, refreshToken string) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	res, err := c.invoke(ctx, accessToken, refreshToken)

	// Back to Idle before waking waiters.
	c.mu.Lock()
	cl.res, cl.err = res, err
	c.pending = nil
	c.mu.Unlock()

	close(cl.done)
}

func (c *Coalescer) invoke(ctx context.Context, accessToken, refreshToken string) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("refresh panicked: %v", p)
		}
	}()
	return c.fn(ctx, accessToken, refreshToken)
}

func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Calls: c.calls, InFlight: c.pending != nil}
}
