package auth

import (
	"fmt"
	"sync/atomic"
)

// Carrier propagates one cycle's credentials to every tool invoked during
// that cycle. It is read-only: tools receive it explicitly and may only call
// Credentials. Close makes the bundle unreachable once the cycle has emitted
// its terminal record.
type Carrier struct {
	bundle atomic.Pointer[Context]
	closed atomic.Bool
}

// NewCarrier wraps bundle for one resolution cycle. A nil bundle is allowed;
// every Credentials call then fails with ErrUnauthenticated.
func NewCarrier(bundle *Context) *Carrier {
	c := &Carrier{}
	if bundle != nil {
		c.bundle.Store(bundle)
	}
	return c
}

// Credentials returns the bundle or ErrUnauthenticated.
func (c *Carrier) Credentials() (*Context, error) {
	if c == nil {
		return nil, ErrUnauthenticated
	}
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: credentials were released at the end of the cycle", ErrUnauthenticated)
	}
	bundle := c.bundle.Load()
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// Close drops the reference to the bundle. It is safe to call more than once.
func (c *Carrier) Close() {
	if c == nil {
		return
	}
	c.closed.Store(true)
	c.bundle.Store(nil)
}
