package datom

import (
	"fmt"
	"runtime"
)

// Connection is a connection to a database living inside the native library.
// It must be closed exactly once; the garbage collector never frees it.
type Connection struct {
	res    resource
	native *boundary
}

// NewConnection loads the native library if needed and creates a connection
// backed by an empty in-memory store.
func NewConnection() (*Connection, error) {
	b, err := acquireBoundary()
	if err != nil {
		return nil, err
	}

	h, kind := b.connectionCreate()
	if h == invalidHandle {
		return nil, &ConnectionError{Op: "create", Kind: kind}
	}

	c := &Connection{native: b}
	c.res.init("connection", h)
	runtime.SetFinalizer(c, (*Connection).reportLeak)
	return c, nil
}

// LatestT returns the transaction number of the connection's latest state.
// A new connection reports 0.
func (c *Connection) LatestT() (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("connection: %w", ErrReleased)
	}
	var t int64
	err := c.res.do(func(h nativeHandle) error {
		var kind ConnectionErrorKind
		t, kind = c.native.connectionLatestT(h)
		if t < 0 {
			return &ConnectionError{Op: "latest t", Kind: kind}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return t, nil
}

// IsValid reports whether the connection has not been closed.
func (c *Connection) IsValid() bool {
	return c != nil && c.res.valid()
}

// Close destroys the native connection. Closing an already closed
// connection does nothing.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if c.res.release(c.native.connectionDestroy) {
		runtime.SetFinalizer(c, nil)
	}
	return nil
}

func (c *Connection) reportLeak() {
	c.res.reportLeak()
}
