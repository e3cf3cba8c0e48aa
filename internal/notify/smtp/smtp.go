// Package smtp delivers dump notifications by email.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
)

const (
	transportName = "smtp"
	userAgent     = "dumpwatch/0.1"
)

// Transport sends notifications through an SMTP submission server.
type Transport struct {
	host     string
	port     int
	username string
	password string
	from     string
	tls      mail.TLSPolicy
	timeout  time.Duration
}

// New builds a transport from the [smtp] configuration section.
func New(cfg config.SMTP, timeout time.Duration) *Transport {
	return &Transport{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		tls:      tlsPolicy(cfg.TLS),
		timeout:  timeout,
	}
}

func (t *Transport) Name() string { return transportName }

// Send submits msg to every recipient in a single SMTP transaction.
func (t *Transport) Send(ctx context.Context, msg notify.Message) error {
	m, err := t.buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(t.host, t.clientOptions()...)
	if err != nil {
		return notify.Wrap(notify.ErrRejected, transportName, "client setup", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return classify(err)
	}
	return nil
}

func (t *Transport) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(t.port),
		mail.WithTLSPolicy(t.tls),
	}
	if t.timeout > 0 {
		opts = append(opts, mail.WithTimeout(t.timeout))
	}
	if t.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.username),
			mail.WithPassword(t.password),
		)
	}
	return opts
}

func (t *Transport) buildMessage(msg notify.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(t.from); err != nil {
		return nil, notify.Wrap(notify.ErrRejected, transportName, "sender address", err)
	}
	if err := m.To(msg.Recipients...); err != nil {
		return nil, notify.Wrap(notify.ErrRejected, transportName, "recipient address", err)
	}
	m.Subject(msg.Title)
	m.SetUserAgent(userAgent)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, path := range msg.Attachments {
		m.AttachFile(path, mail.WithFileName(filepath.Base(path)))
	}
	return m, nil
}

func tlsPolicy(value string) mail.TLSPolicy {
	switch value {
	case config.TLSNone:
		return mail.NoTLS
	case config.TLSOpportunistic:
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// Provider responses that mean "stop sending for a while". Gmail reports its
// daily cap as 550 5.4.5 and rate limits as 421 4.7.0 / 452 4.5.3.
var quotaMarkers = []string{"5.4.5", "4.5.3", "quota", "limit exceeded", "rate limit", "too many messages"}

// Credential and policy responses that need operator action.
var rejectMarkers = []string{"535 ", "5.7.8", "authentication failed", "username and password not accepted", "auth not supported"}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return notify.Wrap(notify.ErrUnavailable, transportName, "dial", err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return notify.Wrap(notify.ErrQuota, transportName, "send", err)
		}
	}
	for _, marker := range rejectMarkers {
		if strings.Contains(msg, marker) {
			return notify.Wrap(notify.ErrRejected, transportName, "send", err)
		}
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) {
		switch {
		case sendErr.IsTemp():
			return notify.Wrap(notify.ErrUnavailable, transportName, "send", err)
		case sendErr.Reason == mail.ErrSMTPRcptTo, sendErr.Reason == mail.ErrSMTPMailFrom:
			return notify.Wrap(notify.ErrRejected, transportName, "send", err)
		case sendErr.Reason == mail.ErrConnCheck, sendErr.Reason == mail.ErrWriteContent:
			return notify.Wrap(notify.ErrUnavailable, transportName, "send", err)
		default:
			return notify.Wrap(notify.ErrRejected, transportName, "send", err)
		}
	}

	if strings.HasPrefix(msg, "dial failed") {
		return notify.Wrap(notify.ErrUnavailable, transportName, "dial", err)
	}
	return fmt.Errorf("%s: %w", transportName, err)
}
