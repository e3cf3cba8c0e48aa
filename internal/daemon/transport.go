package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
	"dumpwatch/internal/notify/ntfy"
	"dumpwatch/internal/notify/smtp"
)

// NewTransport builds the transport selected by notifications.transport.
func NewTransport(cfg *config.Config) (notify.Transport, error) {
	switch cfg.Notifications.Transport {
	case config.TransportSMTP:
		return smtp.New(cfg.SMTP, cfg.SendTimeout()), nil
	case config.TransportNtfy:
		return ntfy.New(cfg.Ntfy, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("notifications.transport: unsupported value %q", cfg.Notifications.Transport)
	}
}

// switchSender lets a reload replace the dispatcher while the controller
// keeps a stable Sender.
type switchSender struct {
	mu      sync.RWMutex
	current *notify.Dispatcher
}

func (s *switchSender) Send(ctx context.Context, batch notify.Batch, policy notify.Policy) error {
	return s.dispatcher().Send(ctx, batch, policy)
}

func (s *switchSender) dispatcher() *notify.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *switchSender) swap(d *notify.Dispatcher) {
	s.mu.Lock()
	s.current = d
	s.mu.Unlock()
}
