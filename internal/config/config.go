package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// MailBackendGmail selects the Gmail API mailbox
	MailBackendGmail = "gmail"
	// MailBackendIMAP selects the IMAP mailbox
	MailBackendIMAP = "imap"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Mail     MailConfig     `mapstructure:"mail"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	IMAP     IMAPConfig     `mapstructure:"imap"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds the datastore connection string
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// MailConfig describes which mailbox is polled and which messages qualify
type MailConfig struct {
	Backend string `mapstructure:"backend"`
	Sender  string `mapstructure:"sender"`
	// Query is a phrase the message text must contain
	Query      string `mapstructure:"query"`
	Subject    string `mapstructure:"subject"`
	MaxResults int64  `mapstructure:"max_results"`
}

// GmailConfig holds Gmail API OAuth configuration
type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	RedirectURL     string `mapstructure:"redirect_url"`
	UserID          string `mapstructure:"user_id"`
	Endpoint        string `mapstructure:"endpoint"`
}

// IMAPConfig holds IMAP connection configuration
type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Mailbox  string `mapstructure:"mailbox"`
}

// PollerConfig holds polling configuration
type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// AutoStart resumes monitoring at startup when a stored token is found
	AutoStart bool `mapstructure:"auto_start"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("mail.backend", MailBackendGmail)
	v.SetDefault("mail.sender", "alerts@hdfcbank.net")
	v.SetDefault("mail.query", "successfully credited to your account")
	v.SetDefault("mail.subject", "")
	v.SetDefault("mail.max_results", 10)

	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.redirect_url", "http://localhost:3000/api/auth/callback")
	v.SetDefault("gmail.user_id", "me")

	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.mailbox", "INBOX")

	v.SetDefault("poller.interval", "30s")
	v.SetDefault("poller.auto_start", true)

	v.SetDefault("log.level", "info")
}

// bindEnvVars binds the short environment variable names operators use
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("server.port", "PORT", "SERVER_PORT")
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("mail.backend", "MAIL_BACKEND")
	v.BindEnv("mail.sender", "MAIL_SENDER")
	v.BindEnv("mail.query", "MAIL_QUERY")
	v.BindEnv("mail.subject", "MAIL_SUBJECT")

	v.BindEnv("gmail.credentials_file", "GMAIL_CREDENTIALS_FILE")
	v.BindEnv("gmail.token_file", "GMAIL_TOKEN_FILE")
	v.BindEnv("gmail.redirect_url", "GMAIL_REDIRECT_URL")

	v.BindEnv("imap.host", "IMAP_HOST")
	v.BindEnv("imap.port", "IMAP_PORT")
	v.BindEnv("imap.user", "IMAP_USER")
	v.BindEnv("imap.password", "IMAP_PASSWORD")

	v.BindEnv("poller.interval", "POLL_INTERVAL")
	v.BindEnv("poller.auto_start", "POLL_AUTO_START")
	v.BindEnv("log.level", "LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database connection string is required (DATABASE_URL)")
	}

	switch c.Mail.Backend {
	case MailBackendGmail:
		if c.Gmail.CredentialsFile == "" || c.Gmail.TokenFile == "" {
			return fmt.Errorf("gmail credentials and token file paths are required")
		}
	case MailBackendIMAP:
		if c.IMAP.Host == "" || c.IMAP.User == "" || c.IMAP.Password == "" {
			return fmt.Errorf("IMAP host, user and password are required when using IMAP")
		}
	default:
		return fmt.Errorf("unknown mail backend %q", c.Mail.Backend)
	}

	if c.Mail.Sender == "" {
		return fmt.Errorf("mail sender filter is required")
	}

	if c.Mail.MaxResults <= 0 {
		return fmt.Errorf("mail max results must be greater than 0")
	}

	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller interval must be greater than 0")
	}

	return nil
}
