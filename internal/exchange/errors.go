package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/adshao/go-binance/v2/common"
)

var (
	ErrTransient = errors.New("transient exchange error")
	ErrRejected  = errors.New("exchange rejected request")
)

// Error carries the venue code alongside its classification.
type Error struct {
	Op   string
	Code int64
	Msg  string
	kind error
	err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code %d: %s", e.Op, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.err)
}

func (e *Error) Unwrap() []error {
	return []error{e.kind, e.err}
}

// Codes Binance documents as retryable: internal error, disconnect, rate
// limits and backend timeouts. Code 0 is an error body that did not parse,
// which in practice is a 5xx page from the edge.
var transientCodes = map[int64]bool{
	0:     true,
	-1000: true,
	-1001: true,
	-1003: true,
	-1006: true,
	-1007: true,
	-1008: true,
	-1015: true,
}

// Classify wraps err with ErrTransient or ErrRejected. Context cancellation
// is returned as-is so callers stop promptly.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		kind := ErrRejected
		if transientCodes[apiErr.Code] {
			kind = ErrTransient
		}
		return &Error{Op: op, Code: apiErr.Code, Msg: apiErr.Message, kind: kind, err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Op: op, kind: ErrTransient, err: err}
	}
	// Non-API failures are transport or decode errors, typically a 5xx or a
	// proxy page instead of JSON.
	return &Error{Op: op, kind: ErrTransient, err: err}
}
