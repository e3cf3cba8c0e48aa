package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dumpwatch/internal/logging"
)

// Transport delivers a composed message.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher composes and sends batch notifications.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger
}

// NewDispatcher wraps transport.
func NewDispatcher(transport Transport, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, logger: logging.NewComponentLogger(logger, "notify")}
}

// TransportName identifies the configured transport for logs and status.
func (d *Dispatcher) TransportName() string {
	if d == nil || d.transport == nil {
		return "none"
	}
	return d.transport.Name()
}

// Send delivers one notification for batch. Every failure is an *Error. The
// send is bounded by policy.SendTimeout; running out of time is reported as
// KindTransportUnavailable.
func (d *Dispatcher) Send(ctx context.Context, batch Batch, policy Policy) error {
	if len(batch) == 0 {
		return nil
	}
	return d.deliver(ctx, Compose(batch, policy), policy.SendTimeout, len(batch))
}

// SendTest delivers a test message to the configured recipients using the
// same validation, timeout, and classification as Send.
func (d *Dispatcher) SendTest(ctx context.Context, policy Policy) error {
	return d.deliver(ctx, ComposeTest(policy, time.Now()), policy.SendTimeout, 0)
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message, timeout time.Duration, artifacts int) error {
	if d == nil || d.transport == nil {
		return &Error{Kind: KindConfiguration, Err: ErrNoTransport}
	}
	if len(msg.Recipients) == 0 {
		return &Error{Kind: KindConfiguration, Err: ErrNoRecipients}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := logging.WithContext(ctx, d.logger)
	logger.Debug("sending notification",
		logging.String("transport", d.transport.Name()),
		logging.Int("artifacts", artifacts),
		logging.Int("attachments", len(msg.Attachments)),
		logging.Int("recipients", len(msg.Recipients)),
	)

	err := d.transport.Send(ctx, msg)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(err, ctxErr)
	}
	return Classify(err)
}
