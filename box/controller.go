package box

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/mdstore/diskbuffer"
	"github.com/hupe1980/mdstore/event"
	"github.com/hupe1980/mdstore/fileio"
)

// WriteBuffer is the part of the disk buffer boxes talk to.
// *diskbuffer.Buffer implements it.
type WriteBuffer interface {
	// ToWrite registers s as holding in-memory data. It must be idempotent.
	ToWrite(s diskbuffer.Saveable) error

	// ObjectDeleted unregisters s permanently.
	ObjectDeleted(s diskbuffer.Saveable)

	// Flush writes every dirty registered handle.
	Flush() error
}

var _ WriteBuffer = (*diskbuffer.Buffer)(nil)

// Option configures a Controller.
type Option func(*Controller)

// WithFileBacking attaches the shared backing port and disk buffer.
func WithFileBacking(port fileio.Port, buffer WriteBuffer) Option {
	return func(c *Controller) {
		c.port = port
		c.buffer = buffer
	}
}

// WithLogger sets the logger used by boxes of this controller.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetricsObserver sets the observer notified of box loads and saves.
func WithMetricsObserver(m diskbuffer.MetricsObserver) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Controller holds the session-wide configuration shared by all boxes: the
// event layout, the backing port and the disk buffer. Boxes keep a
// non-owning reference to it.
type Controller struct {
	layout  event.Layout
	port    fileio.Port
	buffer  WriteBuffer
	logger  *slog.Logger
	metrics diskbuffer.MetricsObserver
	nextID  atomic.Uint64
}

// NewController creates a box controller for events of the given layout.
func NewController(layout event.Layout, opts ...Option) (*Controller, error) {
	if layout.IsZero() {
		return nil, fmt.Errorf("%w: zero event layout", ErrInvalidArgument)
	}

	c := &Controller{
		layout:  layout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: diskbuffer.NoopMetricsObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.port != nil && c.port.Layout() != layout {
		return nil, fmt.Errorf("%w: port layout %s, controller layout %s", ErrInvalidArgument, c.port.Layout(), layout)
	}
	return c, nil
}

// NumDims returns the number of dimensions of every box.
func (c *Controller) NumDims() int { return c.layout.NumDims() }

// Layout returns the event layout.
func (c *Controller) Layout() event.Layout { return c.layout }

// IsFileBacked reports whether boxes of this controller can be paged out.
func (c *Controller) IsFileBacked() bool { return c.port != nil && c.buffer != nil }

// Port returns the backing port, or nil.
func (c *Controller) Port() fileio.Port { return c.port }

// Buffer returns the disk buffer, or nil.
func (c *Controller) Buffer() WriteBuffer { return c.buffer }

// Logger returns the controller logger.
func (c *Controller) Logger() *slog.Logger { return c.logger }

// NextID returns a fresh box id. Ids start at 1.
func (c *Controller) NextID() uint64 { return c.nextID.Add(1) }

// ReserveID makes sure NextID never returns id or anything below it.
func (c *Controller) ReserveID(id uint64) {
	for {
		cur := c.nextID.Load()
		if cur >= id || c.nextID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Close flushes the disk buffer. The port is not closed; it is owned by
// whoever opened it.
func (c *Controller) Close() error {
	if c.buffer == nil {
		return nil
	}
	return c.buffer.Flush()
}
