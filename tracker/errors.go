package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/onnwee/livefeed-relay/config"
	"github.com/onnwee/livefeed-relay/notify"
)

// ErrorClass groups runtime errors by how the tracker reacts to them.
type ErrorClass int

const (
	// ClassUnknown is anything not recognised below.
	ClassUnknown ErrorClass = iota
	// ClassFetch covers network, timeout, HTTP status and parse failures
	// talking to the source. Always transient; retried on the next tick.
	ClassFetch
	// ClassConfiguration covers missing or invalid settings. Fatal at startup.
	ClassConfiguration
	// ClassDelivery covers notifier failures. Logged, never retried.
	ClassDelivery
)

// String returns a human-readable name for the error class.
func (c ErrorClass) String() string {
	switch c {
	case ClassFetch:
		return "fetch"
	case ClassConfiguration:
		return "configuration"
	case ClassDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// FetchError wraps a failed source request made during a tick.
type FetchError struct {
	Op     string
	Target string
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// Classify maps an error onto the tracker's error taxonomy.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, config.ErrInvalid) {
		return ClassConfiguration
	}
	var de *notify.DeliveryError
	if errors.As(err, &de) {
		return ClassDelivery
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return ClassFetch
	}
	var (
		ne  net.Error
		se  *json.SyntaxError
		ute *json.UnmarshalTypeError
	)
	if errors.As(err, &ne) || errors.As(err, &se) || errors.As(err, &ute) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFetch
	}
	return ClassUnknown
}
