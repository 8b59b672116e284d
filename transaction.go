package busq

// Direction of a bus transaction.
type Direction uint8

const (
	Write Direction = iota
	Read
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Handler is notified exactly once when a transaction finishes.
type Handler interface {
	Notify(arg any)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(arg any)

func (f HandlerFunc) Notify(arg any) {
	f(arg)
}

// Transaction describes one pending bus request. It is owned by its
// producer and is usually kept as a long-lived field and resubmitted for
// every new request. Buffer is referenced, never copied.
//
// Completed and ErrCode are valid once the Handler fires (or WaitFinish
// returns). The record must not be modified while it is queued.
type Transaction struct {
	Address   uint16
	Direction Direction
	Extra     uint32
	Buffer    []byte
	Completed bool
	ErrCode   Code

	Handler Handler
	Arg     any

	next *Transaction
}

// OnComplete sets the completion handler and the argument passed to it.
func (t *Transaction) OnComplete(h Handler, arg any) {
	t.Handler = h
	t.Arg = arg
}

// Err returns the transaction code as an error, nil on success.
func (t *Transaction) Err() error {
	if t.ErrCode == OK {
		return nil
	}
	return t.ErrCode
}
