package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeNotifications()
	c.normalizeSMTP()
	c.normalizeNtfy()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" && c.Paths.WatchDir != "" {
		c.Paths.ArchiveDir = filepath.Join(c.Paths.WatchDir, defaultArchiveSubdir)
	}
	if c.Paths.ArchiveDir, err = expandPath(strings.TrimSpace(c.Paths.ArchiveDir)); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() {
	suffix := strings.ToLower(strings.TrimSpace(c.Watch.Suffix))
	if suffix == "" {
		suffix = defaultSuffix
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	c.Watch.Suffix = suffix
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Transport = strings.ToLower(strings.TrimSpace(c.Notifications.Transport))
	if c.Notifications.Transport == "" {
		c.Notifications.Transport = defaultTransport
	}
	if len(c.Notifications.Recipients) == 0 {
		if value, ok := os.LookupEnv(recipientsEnvVar); ok {
			c.Notifications.Recipients = strings.Split(value, recipientsEnvVarSeparator)
		}
	}
	recipients := make([]string, 0, len(c.Notifications.Recipients))
	seen := make(map[string]struct{}, len(c.Notifications.Recipients))
	for _, recipient := range c.Notifications.Recipients {
		trimmed := strings.TrimSpace(recipient)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, trimmed)
	}
	c.Notifications.Recipients = recipients
	c.Notifications.Title = strings.TrimSpace(c.Notifications.Title)
	if c.Notifications.Title == "" {
		c.Notifications.Title = defaultTitle
	}
	c.Notifications.Subject = strings.TrimSpace(c.Notifications.Subject)
}

func (c *Config) normalizeSMTP() {
	c.SMTP.Host = strings.TrimSpace(c.SMTP.Host)
	c.SMTP.Username = strings.TrimSpace(c.SMTP.Username)
	c.SMTP.From = strings.TrimSpace(c.SMTP.From)
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.Username
	}
	if c.SMTP.Password == "" {
		if value, ok := os.LookupEnv(passwordEnvVar); ok {
			c.SMTP.Password = value
		}
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = defaultSMTPPort
	}
	c.SMTP.TLS = strings.ToLower(strings.TrimSpace(c.SMTP.TLS))
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = defaultSMTPTLS
	}
}

func (c *Config) normalizeNtfy() {
	c.Ntfy.Server = strings.TrimRight(strings.TrimSpace(c.Ntfy.Server), "/")
	if c.Ntfy.Server == "" {
		c.Ntfy.Server = defaultNtfyServer
	}
	c.Ntfy.Token = strings.TrimSpace(c.Ntfy.Token)
	if c.Ntfy.Token == "" {
		if value, ok := os.LookupEnv(ntfyTokenEnvVar); ok {
			c.Ntfy.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
