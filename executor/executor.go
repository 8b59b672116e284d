// Package executor provides busq.Executor implementations on top of a
// blocking busq.Transport.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mklimuk/busq"
)

// MaxAddress is the highest 10-bit bus address.
const MaxAddress = 0x3FF

const defaultTimeout = 100 * time.Millisecond

// TimeoutFloor is implemented by transports whose exchanges have a fixed
// minimum duration. Executors never apply a shorter transfer timeout.
type TimeoutFloor interface {
	MinTimeout() time.Duration
}

func transferTimeout(t busq.Transport, timeout time.Duration) time.Duration {
	if f, ok := t.(TimeoutFloor); ok && f.MinTimeout() > timeout {
		return f.MinTimeout()
	}
	return timeout
}

type Opts struct {
	Context context.Context
	Timeout time.Duration
	Logger  *slog.Logger
}

type Opt func(*Opts)

// WithTimeout bounds every transfer. Expired transfers finish with
// busq.CodeTimeout.
func WithTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.Timeout = timeout
	}
}

// WithContext sets the parent context of every transfer.
func WithContext(ctx context.Context) Opt {
	return func(o *Opts) {
		o.Context = ctx
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

func newOpts(opts []Opt) Opts {
	config := Opts{
		Context: context.Background(),
		Timeout: defaultTimeout,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// request is one transfer as seen by the transport.
type request struct {
	dir     busq.Direction
	address uint16
	extra   uint32
	buffer  []byte
}

// validate returns the code a start call must be rejected with, if any.
func (r request) validate() busq.Code {
	if r.address > MaxAddress {
		return busq.CodeInvalidAddress
	}
	if r.dir == busq.Read && len(r.buffer) == 0 {
		return busq.CodeInvalidBuffer
	}
	return busq.OK
}

// transfer performs the request on the transport. scratch is reused for
// register-prefixed writes.
func (r request) transfer(ctx context.Context, t busq.Transport, scratch []byte) ([]byte, error) {
	reg, hasReg := busq.RegisterOf(r.extra)
	if r.dir == busq.Read {
		if hasReg {
			scratch = append(scratch[:0], reg)
			return scratch, t.Tx(ctx, r.address, scratch, r.buffer)
		}
		return scratch, t.Tx(ctx, r.address, nil, r.buffer)
	}
	if hasReg {
		scratch = append(append(scratch[:0], reg), r.buffer...)
		return scratch, t.Tx(ctx, r.address, scratch, nil)
	}
	return scratch, t.Tx(ctx, r.address, r.buffer, nil)
}

func (r request) run(ctx context.Context, t busq.Transport, timeout time.Duration, scratch []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.transfer(ctx, t, scratch)
}
