package busq

import (
	"context"
	"log/slog"
	"runtime"
)

// State of the transaction at the head of the queue.
type State uint8

const (
	StateIdle State = iota
	StateDispatching
	StateWaiting
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateDispatching:
		return "dispatching"
	case StateWaiting:
		return "waiting"
	case StateCompleting:
		return "completing"
	default:
		return "idle"
	}
}

// Observer receives scheduler events. All calls happen on the goroutine
// driving the scheduler.
type Observer interface {
	Submitted(t *Transaction)
	Rejected(t *Transaction)
	Completed(t *Transaction)
}

type schedulerOpts struct {
	logger   *slog.Logger
	observer Observer
}

type Option func(*schedulerOpts)

func WithLogger(logger *slog.Logger) Option {
	return func(o *schedulerOpts) {
		o.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(o *schedulerOpts) {
		o.observer = observer
	}
}

// Scheduler serializes transactions of many producers onto one executor.
// It performs no locking: Submit*, Run and WaitFinish must be called from a
// single goroutine (or under a lock held by the caller).
//
// Typical usage:
//
//	s := busq.New(executor.NewPolled(bus))
//	var tx busq.Transaction
//	tx.OnComplete(handler, nil)
//	s.SubmitRead(&tx, 0x4D, busq.Register(0x00), buf)
//	for {
//		s.Run()
//	}
type Scheduler[E Executor] struct {
	exec     E
	head     *Transaction
	state    State
	log      *slog.Logger
	observer Observer
}

var _ Submitter = &Scheduler[Executor]{}

func New[E Executor](exec E, opts ...Option) *Scheduler[E] {
	config := schedulerOpts{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Scheduler[E]{
		exec:     exec,
		log:      config.logger,
		observer: config.observer,
	}
}

// Executor returns the executor the scheduler is bound to.
func (s *Scheduler[E]) Executor() E {
	return s.exec
}

// SubmitWrite queues a write of buffer to address. It returns false, leaving
// the queue untouched, if t is already queued.
func (s *Scheduler[E]) SubmitWrite(t *Transaction, address uint16, extra uint32, buffer []byte) bool {
	return s.submit(t, Write, address, extra, buffer)
}

// SubmitRead queues a read of len(buffer) bytes from address. It returns
// false, leaving the queue untouched, if t is already queued.
func (s *Scheduler[E]) SubmitRead(t *Transaction, address uint16, extra uint32, buffer []byte) bool {
	return s.submit(t, Read, address, extra, buffer)
}

func (s *Scheduler[E]) submit(t *Transaction, dir Direction, address uint16, extra uint32, buffer []byte) bool {
	var last *Transaction
	for q := s.head; q != nil; q = q.next {
		if q == t {
			s.log.Debug("transaction already queued", "address", address, "direction", dir)
			if s.observer != nil {
				s.observer.Rejected(t)
			}
			return false
		}
		last = q
	}
	t.Direction = dir
	t.Address = address
	t.Extra = extra
	t.Buffer = buffer
	t.Completed = false
	t.ErrCode = OK
	t.next = nil
	if last == nil {
		s.head = t
	} else {
		last.next = t
	}
	if s.observer != nil {
		s.observer.Submitted(t)
	}
	return true
}

// Run advances the head transaction by one step and completes at most one
// transaction per call. It never blocks on the bus.
func (s *Scheduler[E]) Run() {
	t := s.head
	if t == nil {
		return
	}
	if s.state == StateIdle {
		s.state = StateDispatching
		var ok bool
		if t.Direction == Read {
			ok = s.exec.StartRead(t.Address, t.Extra, t.Buffer)
		} else {
			ok = s.exec.StartWrite(t.Address, t.Extra, t.Buffer)
		}
		if !ok {
			s.log.Debug("executor rejected transaction", "address", t.Address, "direction", t.Direction, "code", s.exec.Error())
			s.complete()
			return
		}
		s.state = StateWaiting
		return
	}
	s.exec.Run()
	if s.exec.Busy() {
		return
	}
	s.complete()
}

// complete finalizes the head transaction. The queue and state are advanced
// before the handler runs so that the handler may resubmit the record.
func (s *Scheduler[E]) complete() {
	s.state = StateCompleting
	t := s.head
	t.Completed = true
	t.ErrCode = s.exec.Error()
	s.head = t.next
	t.next = nil
	s.state = StateIdle
	s.log.Debug("transaction completed", "address", t.Address, "direction", t.Direction, "code", t.ErrCode)
	if s.observer != nil {
		s.observer.Completed(t)
	}
	if t.Handler != nil {
		t.Handler.Notify(t.Arg)
	}
}

// WaitFinish runs the scheduler until t completes. It must never be called
// from a completion handler of the same scheduler.
func (s *Scheduler[E]) WaitFinish(t *Transaction) {
	for !t.Completed {
		s.Run()
		runtime.Gosched()
	}
}

// WaitFinishContext is WaitFinish bounded by ctx. On cancellation t stays
// queued and completes on later ticks.
func (s *Scheduler[E]) WaitFinishContext(ctx context.Context, t *Transaction) error {
	for !t.Completed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.Run()
		runtime.Gosched()
	}
	return nil
}

// Len returns the number of queued transactions, including the one in flight.
func (s *Scheduler[E]) Len() int {
	n := 0
	for q := s.head; q != nil; q = q.next {
		n++
	}
	return n
}

// Idle reports whether the queue is empty.
func (s *Scheduler[E]) Idle() bool {
	return s.head == nil
}

// State returns the phase of the head transaction.
func (s *Scheduler[E]) State() State {
	return s.state
}
