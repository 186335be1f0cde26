package model

import (
	"errors"
	"fmt"
)

// InsufficientDataError is returned when a computation needs more candles
// than it was given.
type InsufficientDataError struct {
	What string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	what := e.What
	if what == "" {
		what = "computation"
	}
	return fmt.Sprintf("insufficient candles for %s: need %d, got %d", what, e.Need, e.Got)
}

// MalformedCandleError reports a candle that breaks the OHLC invariants or
// the series ordering.
type MalformedCandleError struct {
	TS     int64
	Reason string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle at %d: %s", e.TS, e.Reason)
}

// ValidationError is a structural failure while building a TradingSignal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a failure talking to the queue, the ledger files or
// the candle provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsDataError reports whether err is an insufficient-data or malformed-candle error.
func IsDataError(err error) bool {
	var ide *InsufficientDataError
	var mce *MalformedCandleError
	return errors.As(err, &ide) || errors.As(err, &mce)
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
