package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/adshao/go-binance/v2/common"
)

// Binance error codes that indicate the request may succeed on retry.
const (
	codeUnknown          = -1001 // disconnected
	codeTooManyRequests  = -1003
	codeTimeout          = -1007
	codeServerBusy       = -1008
	codeDuplicateOrderID = -4116
	codeNoNeedMarginType = -4046
)

// RejectionError is a definitive refusal by the exchange. It is never retried.
type RejectionError struct {
	Op      string
	Code    int64
	Message string
	Err     error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: code=%d msg=%s", e.Op, e.Code, e.Message)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: network failures, timeouts,
// rate limiting, exchange overload and unparseable (5xx) responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		return false
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeUnknown, codeTooManyRequests, codeTimeout, codeServerBusy:
			return true
		case 0:
			// Gateway errors come back without a Binance code.
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// apiCode returns the Binance error code carried by err, or 0.
func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// classify converts a final non-transient API error into a RejectionError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && !IsTransient(apiErr) {
		return &RejectionError{Op: op, Code: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
