package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var ntfyTopicPattern = regexp.MustCompile(`^[-_A-Za-z0-9]{1,64}$`)

// Validate ensures the configuration is usable. An empty recipient list is
// accepted here; the watch controller refuses to start without recipients so
// the operator can still run config and dedup commands.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	switch c.Notifications.Transport {
	case TransportSMTP:
		return c.validateSMTP()
	case TransportNtfy:
		return c.validateNtfy()
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.ArchiveDir == c.Paths.WatchDir {
		return errors.New("paths.archive_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be positive (seconds)")
	}
	if len(c.Watch.Suffix) < 2 {
		return errors.New("watch.suffix must name a file extension")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.Transport {
	case TransportSMTP, TransportNtfy:
	default:
		return fmt.Errorf("notifications.transport: unsupported value %q (use %q or %q)",
			c.Notifications.Transport, TransportSMTP, TransportNtfy)
	}
	if c.Notifications.SendTimeout <= 0 {
		return errors.New("notifications.send_timeout must be positive (seconds)")
	}
	if c.Notifications.AttachMaxMB < 0 {
		return errors.New("notifications.attach_max_mb must be >= 0")
	}
	return nil
}

func (c *Config) validateSMTP() error {
	for _, recipient := range c.Notifications.Recipients {
		if err := ValidateEmail(recipient); err != nil {
			return fmt.Errorf("notifications.recipients: %w", err)
		}
	}
	if c.SMTP.Host == "" {
		return errors.New("smtp.host must be set when notifications.transport is smtp")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port %d is out of range", c.SMTP.Port)
	}
	switch c.SMTP.TLS {
	case TLSMandatory, TLSOpportunistic, TLSNone:
	default:
		return fmt.Errorf("smtp.tls: unsupported value %q", c.SMTP.TLS)
	}
	if c.SMTP.From != "" {
		if err := ValidateEmail(c.SMTP.From); err != nil {
			return fmt.Errorf("smtp.from: %w", err)
		}
	}
	return nil
}

func (c *Config) validateNtfy() error {
	parsed, err := url.Parse(c.Ntfy.Server)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("ntfy.server %q must be an absolute URL", c.Ntfy.Server)
	}
	for _, topic := range c.Notifications.Recipients {
		if !ntfyTopicPattern.MatchString(topic) {
			return fmt.Errorf("notifications.recipients: %q is not a valid ntfy topic", topic)
		}
	}
	return nil
}

// ValidateEmail reports whether value is a bare mail address.
func ValidateEmail(value string) error {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", value, err)
	}
	if addr.Address != value {
		return fmt.Errorf("invalid address %q: expected a bare address", value)
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return fmt.Errorf("invalid address %q: domain must be fully qualified", value)
	}
	return nil
}
