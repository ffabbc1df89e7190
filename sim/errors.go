package sim

import (
	"errors"
	"fmt"
)

// Error taxonomy for the paging core. OutOfMemory is the only condition a
// caller is expected to handle (reject or queue the request); every other
// sentinel signals broken bookkeeping and should abort the operation.
var (
	ErrOutOfMemory      = errors.New("page pool exhausted")
	ErrPageFull         = errors.New("page has no free slots")
	ErrOutOfRange       = errors.New("page coordinate out of range")
	ErrUnknownPage      = errors.New("page is not in use")
	ErrIndexOutOfRange  = errors.New("token index out of range")
	ErrStalePage        = errors.New("page reference is stale")
	ErrInvalidState     = errors.New("invalid request state transition")
	ErrShapeMismatch    = errors.New("key/value shape mismatch")
	ErrEmptyPrefix      = errors.New("prefix has no tokens")
	ErrRequestNotActive = errors.New("request is not active")
)

// NoPage marks an OpError that is not tied to a specific page.
const NoPage = -1

// OpError attaches the failing operation, request and page to a sentinel
// error so the violated invariant can be diagnosed from the message alone.
type OpError struct {
	Op        string // e.g. "allocate_page", "free_page", "decode"
	RequestID string // empty when raised outside a request lifecycle
	PageID    int    // NoPage when not applicable
	Err       error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.RequestID != "" {
		msg += fmt.Sprintf(" [request %s]", e.RequestID)
	}
	if e.PageID != NoPage {
		msg += fmt.Sprintf(" [page %d]", e.PageID)
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, pageID int, err error) error {
	return &OpError{Op: op, PageID: pageID, Err: err}
}

// withRequest stamps a request id onto an error coming out of the pool or a
// page, keeping the innermost operation name.
func withRequest(reqID string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		if oe.RequestID == "" {
			cp := *oe
			cp.RequestID = reqID
			return &cp
		}
		return err
	}
	return &OpError{Op: "request", RequestID: reqID, PageID: NoPage, Err: err}
}
