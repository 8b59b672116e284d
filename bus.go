package busq

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
var ErrNack = fmt.Errorf("device did not acknowledge")

// ErrPending is returned by drivers asked for a new request while their
// transaction record is still queued.
var ErrPending = fmt.Errorf("previous request still pending")

// Transport is a blocking two-wire bus. Tx writes w and then reads into r
// using a repeated start when both are non-empty.
type Transport interface {
	Tx(ctx context.Context, address uint16, w, r []byte) error
	Release(ctx context.Context) error
}

// Executor performs the physical exchange of one transaction at a time.
// Busy and Error may be updated from another goroutine; Error is only
// meaningful once Busy reports false.
type Executor interface {
	StartWrite(address uint16, extra uint32, buffer []byte) bool
	StartRead(address uint16, extra uint32, buffer []byte) bool
	Run()
	Busy() bool
	Error() Code
}

// Submitter is the queueing contract device drivers depend on.
type Submitter interface {
	SubmitWrite(t *Transaction, address uint16, extra uint32, buffer []byte) bool
	SubmitRead(t *Transaction, address uint16, extra uint32, buffer []byte) bool
}
