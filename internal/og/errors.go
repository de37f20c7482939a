package og

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrChannelDisabled = errors.New("order channel: disabled")
	ErrNotStarted      = errors.New("order channel: not started")
	ErrDuplicateReqID  = errors.New("order channel: duplicate request id")
	ErrShutdown        = errors.New("order channel: cancelled: shutdown")
	ErrConnectionLost  = errors.New("order channel: cancelled: connection lost")
)

// RequestTimeoutError reports that no response arrived within the caller's
// deadline, including the time spent waiting for channel readiness.
type RequestTimeoutError struct {
	ReqID   string
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("order channel: request %s timed out after %s", e.ReqID, e.Timeout)
}

// ExchangeError carries an explicit non-zero response code from the venue.
type ExchangeError struct {
	ReqID   string
	RetCode int
	RetMsg  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("order channel: exchange rejected %s: retCode=%d retMsg=%q", e.ReqID, e.RetCode, e.RetMsg)
}

// AuthError reports a failed auth acknowledgment. The transport stays open
// but requests are refused until the next reconnect re-authenticates.
type AuthError struct {
	RetCode int
	RetMsg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("order channel: auth failed: retCode=%d retMsg=%q", e.RetCode, e.RetMsg)
}
