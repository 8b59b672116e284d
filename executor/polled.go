package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mklimuk/busq"
)

var _ busq.Executor = &Polled{}

// Polled performs the transfer inside the cooperative tick: a start call
// only records the request and the following Run does the exchange.
// It must be driven from a single goroutine.
type Polled struct {
	transport busq.Transport
	ctx       context.Context
	timeout   time.Duration
	log       *slog.Logger

	pending request
	busy    bool
	code    busq.Code
	scratch []byte
}

func NewPolled(transport busq.Transport, opts ...Opt) *Polled {
	config := newOpts(opts)
	return &Polled{
		transport: transport,
		ctx:       config.Context,
		timeout:   transferTimeout(transport, config.Timeout),
		log:       config.Logger,
		scratch:   make([]byte, 0, 32),
	}
}

func (p *Polled) StartWrite(address uint16, extra uint32, buffer []byte) bool {
	return p.start(request{dir: busq.Write, address: address, extra: extra, buffer: buffer})
}

func (p *Polled) StartRead(address uint16, extra uint32, buffer []byte) bool {
	return p.start(request{dir: busq.Read, address: address, extra: extra, buffer: buffer})
}

func (p *Polled) start(req request) bool {
	if p.busy {
		p.code = busq.CodeExecutorBusy
		return false
	}
	if code := req.validate(); code != busq.OK {
		p.code = code
		return false
	}
	p.pending = req
	p.code = busq.OK
	p.busy = true
	return true
}

func (p *Polled) Run() {
	if !p.busy {
		return
	}
	var err error
	p.scratch, err = p.pending.run(p.ctx, p.transport, p.timeout, p.scratch)
	if err != nil {
		p.log.Debug("bus transfer failed", "address", p.pending.address, "direction", p.pending.dir, "error", err)
	}
	p.code = busq.CodeOf(err)
	p.pending = request{}
	p.busy = false
}

func (p *Polled) Busy() bool {
	return p.busy
}

func (p *Polled) Error() busq.Code {
	return p.code
}
