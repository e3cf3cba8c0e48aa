package watch

import (
	"time"

	"dumpwatch/internal/config"
	"dumpwatch/internal/notify"
)

const defaultSendTimeout = 60 * time.Second

// Config is the controller's configuration snapshot. Values are copied in and
// out; the controller never shares a slice with its caller.
type Config struct {
	WatchDir           string
	ArchiveDir         string
	PollInterval       time.Duration
	Suffix             string
	Recipients         []string
	IncludeAttachments bool
	MaxAttachmentBytes int64
	Title              string
	Subject            string
	SendTimeout        time.Duration
}

// FromConfig extracts the controller snapshot from the loaded configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		WatchDir:           cfg.Paths.WatchDir,
		ArchiveDir:         cfg.Paths.ArchiveDir,
		PollInterval:       cfg.PollInterval(),
		Suffix:             cfg.Watch.Suffix,
		Recipients:         append([]string(nil), cfg.Notifications.Recipients...),
		IncludeAttachments: cfg.Notifications.IncludeAttachments,
		MaxAttachmentBytes: cfg.AttachmentBudget(),
		Title:              cfg.Notifications.Title,
		Subject:            cfg.Notifications.Subject,
		SendTimeout:        cfg.SendTimeout(),
	}
}

func (c Config) clone() Config {
	c.Recipients = append([]string(nil), c.Recipients...)
	return c
}

func (c Config) sendTimeout() time.Duration {
	if c.SendTimeout <= 0 {
		return defaultSendTimeout
	}
	return c.SendTimeout
}

// Policy returns the dispatcher view of the snapshot.
func (c Config) Policy() notify.Policy {
	return notify.Policy{
		Recipients:         append([]string(nil), c.Recipients...),
		Title:              c.Title,
		Subject:            c.Subject,
		IncludeAttachments: c.IncludeAttachments,
		MaxAttachmentBytes: c.MaxAttachmentBytes,
		SendTimeout:        c.sendTimeout(),
	}
}
