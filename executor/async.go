package executor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mklimuk/busq"
)

var _ busq.Executor = &Async{}

// Async runs every transfer on its own goroutine, the way a DMA or interrupt
// driven engine would. The goroutine only publishes the result code and then
// clears the busy word; Run is a no-op.
type Async struct {
	transport busq.Transport
	timeout   time.Duration
	log       *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	busy atomic.Bool
	code atomic.Int32
	// scratch is owned by the transfer goroutine while busy is set
	scratch []byte
}

func NewAsync(transport busq.Transport, opts ...Opt) *Async {
	config := newOpts(opts)
	ctx, cancel := context.WithCancel(config.Context)
	return &Async{
		transport: transport,
		timeout:   transferTimeout(transport, config.Timeout),
		log:       config.Logger,
		ctx:       ctx,
		cancel:    cancel,
		scratch:   make([]byte, 0, 32),
	}
}

func (a *Async) StartWrite(address uint16, extra uint32, buffer []byte) bool {
	return a.start(request{dir: busq.Write, address: address, extra: extra, buffer: buffer})
}

func (a *Async) StartRead(address uint16, extra uint32, buffer []byte) bool {
	return a.start(request{dir: busq.Read, address: address, extra: extra, buffer: buffer})
}

func (a *Async) start(req request) bool {
	if a.busy.Load() {
		a.code.Store(int32(busq.CodeExecutorBusy))
		return false
	}
	if code := req.validate(); code != busq.OK {
		a.code.Store(int32(code))
		return false
	}
	a.code.Store(int32(busq.OK))
	a.busy.Store(true)
	go a.transfer(req)
	return true
}

func (a *Async) transfer(req request) {
	var err error
	a.scratch, err = req.run(a.ctx, a.transport, a.timeout, a.scratch)
	if err != nil {
		a.log.Debug("bus transfer failed", "address", req.address, "direction", req.dir, "error", err)
	}
	a.code.Store(int32(busq.CodeOf(err)))
	a.busy.Store(false)
}

func (a *Async) Run() {}

func (a *Async) Busy() bool {
	return a.busy.Load()
}

func (a *Async) Error() busq.Code {
	return busq.Code(a.code.Load())
}

// Close aborts the transfer in flight, if the transport honours its context.
func (a *Async) Close() {
	a.cancel()
}
