package config

const (
	defaultConfigPath         = "~/.config/dumpwatch/config.toml"
	defaultWatchDir           = "~/dumps"
	defaultArchiveSubdir      = "archived"
	defaultStateDir           = "~/.local/share/dumpwatch"
	defaultPollInterval       = 60
	defaultSuffix             = ".dmp"
	defaultTransport          = TransportSMTP
	defaultTitle              = "DMP in logs!"
	defaultAttachMaxMB        = 25
	defaultSendTimeout        = 60
	defaultSMTPHost           = "smtp.gmail.com"
	defaultSMTPPort           = 587
	defaultSMTPTLS            = TLSMandatory
	defaultNtfyServer         = "https://ntfy.sh"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
	passwordEnvVar            = "DUMPWATCH_SMTP_PASSWORD"
	ntfyTokenEnvVar           = "DUMPWATCH_NTFY_TOKEN"
	recipientsEnvVar          = "DUMPWATCH_RECIPIENTS"
	recipientsEnvVarSeparator = ","
)

// Supported notification transports.
const (
	TransportSMTP = "smtp"
	TransportNtfy = "ntfy"
)

// Supported SMTP TLS policies.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir: defaultWatchDir,
			StateDir: defaultStateDir,
		},
		Watch: Watch{
			PollInterval: defaultPollInterval,
			Suffix:       defaultSuffix,
			Autostart:    true,
		},
		Notifications: Notifications{
			Transport:   defaultTransport,
			Title:       defaultTitle,
			AttachMaxMB: defaultAttachMaxMB,
			SendTimeout: defaultSendTimeout,
		},
		SMTP: SMTP{
			Host: defaultSMTPHost,
			Port: defaultSMTPPort,
			TLS:  defaultSMTPTLS,
		},
		Ntfy: Ntfy{
			Server: defaultNtfyServer,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
