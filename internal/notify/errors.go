package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Transport sentinels. Transports wrap their failures with one of these so
// Classify can map them without inspecting transport-specific types.
var (
	ErrUnavailable  = errors.New("transport unavailable")
	ErrQuota        = errors.New("sending quota exceeded")
	ErrRejected     = errors.New("rejected by transport")
	ErrNoRecipients = errors.New("no recipients configured")
	ErrNoTransport  = errors.New("no transport configured")
)

// Kind is the closed failure taxonomy surfaced to the watch controller.
type Kind string

const (
	// KindTransportUnavailable covers network, DNS, and timeout failures.
	// Retried on the next cycle.
	KindTransportUnavailable Kind = "transport_unavailable"
	// KindQuotaExceeded is a provider-side sending limit. Retried on the
	// next cycle.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindConfiguration needs operator correction (bad recipient,
	// credentials, or server settings).
	KindConfiguration Kind = "configuration"
	// KindUnknown is anything that could not be classified.
	KindUnknown Kind = "unknown"
)

// Retryable reports whether the next cycle should expect a different outcome
// without operator action.
func (k Kind) Retryable() bool {
	return k != KindConfiguration
}

// Error is returned by Dispatcher.Send for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a sentinel marker and transport/operation context.
func Wrap(marker error, transport, operation string, err error) error {
	if marker == nil {
		marker = ErrUnavailable
	}
	parts := make([]string, 0, 2)
	for _, part := range []string{transport, operation} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	detail := "send"
	if len(parts) > 0 {
		detail = strings.Join(parts, ": ")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps any send error onto the closed taxonomy. A nil error yields
// nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrQuota):
		return KindQuotaExceeded
	case errors.Is(err, ErrRejected), errors.Is(err, ErrNoRecipients), errors.Is(err, ErrNoTransport):
		return KindConfiguration
	case errors.Is(err, ErrUnavailable):
		return KindTransportUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTransportUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransportUnavailable
	}
	return KindUnknown
}

// KindOf returns the classification of err, or an empty Kind for nil.
func KindOf(err error) Kind {
	if classified := Classify(err); classified != nil {
		return classified.Kind
	}
	return ""
}
