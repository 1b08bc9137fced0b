// Package config holds process options. Values come from flags and the
// environment, with an optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docfeedback/internal/email"
	"docfeedback/internal/feedback"
)

type Config struct {
	Addr          string   `short:"l" long:"listen" env:"API_ADDR" default:":8787" description:"listen address"`
	DatabaseURL   string   `long:"db" env:"DATABASE_URL" default:"docfeedback.db" description:"postgres:// url or sqlite file"`
	MigrationsDir string   `long:"migrations" env:"DOCFEEDBACK_MIGRATIONS_DIR" default:"./db/migrations" description:"migrations root, holds postgres/ and sqlite/"`
	RedisURL      string   `long:"redis" env:"REDIS_URL" description:"redis url for throttle markers, database is used when empty"`
	TokenSecret   string   `long:"secret" env:"DOCFEEDBACK_TOKEN_SECRET" description:"shared secret of bearer tokens and csrf nonces"`
	CORSOrigins   []string `long:"cors-origin" env:"DOCFEEDBACK_CORS_ORIGIN" env-delim:"," default:"*" description:"allowed cors origins"`
	MessagesFile  string   `long:"messages" env:"DOCFEEDBACK_MESSAGES" description:"yaml file overriding respondent-facing strings"`
	EnvFile       string   `long:"env-file" default:".env" description:"dotenv file loaded before parsing"`

	Feedback FeedbackGroup `group:"feedback" namespace:"feedback" env-namespace:"FEEDBACK"`
	SMTP     SMTPGroup     `group:"smtp" namespace:"smtp" env-namespace:"SMTP"`

	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
	Version bool `short:"V" long:"version" description:"show version info"`
}

type FeedbackGroup struct {
	NoNotification bool          `long:"no-notify" env:"NO_NOTIFY" description:"do not email document authors"`
	ThrottleLimit  time.Duration `long:"throttle-limit" env:"THROTTLE_LIMIT" default:"3600s" description:"cooldown after a completed feedback"`
	ThrottlePrefix string        `long:"throttle-prefix" env:"THROTTLE_PREFIX" default:"document_feedback_" description:"throttle marker key prefix"`
	DocumentKinds  []string      `long:"kind" env:"KINDS" env-delim:"," default:"page" description:"document kinds that take feedback"`
	SubmitRate     float64       `long:"submit-rate" env:"SUBMIT_RATE" default:"1" description:"submissions per second per client"`
	SubmitBurst    int           `long:"submit-burst" env:"SUBMIT_BURST" default:"10" description:"submission burst per client"`
}

type SMTPGroup struct {
	Host     string `long:"host" env:"HOST" description:"smtp host, notifications are off when empty"`
	Port     string `long:"port" env:"PORT" default:"587" description:"smtp port"`
	Username string `long:"username" env:"USERNAME" description:"smtp user"`
	Password string `long:"password" env:"PASSWORD" description:"smtp password"`
	From     string `long:"from" env:"FROM" description:"sender address"`
	FromName string `long:"from-name" env:"FROM_NAME" default:"Document Feedback" description:"sender name"`
}

// Load reads the dotenv file named by --env-file (if present) and parses args.
// A missing dotenv file is not an error.
func Load(args []string) (Config, error) {
	envFile := ".env"
	var probe struct {
		EnvFile string `long:"env-file" default:".env"`
	}
	pp := flags.NewParser(&probe, flags.IgnoreUnknown)
	if _, err := pp.ParseArgs(args); err == nil {
		envFile = probe.EnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	p := flags.NewParser(&cfg, flags.Default)
	if _, err := p.ParseArgs(args); err != nil {
		return Config{}, err
	}
	if cfg.Version {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.TokenSecret) < 16 {
		return errors.New("token secret must be at least 16 bytes")
	}
	if c.Feedback.ThrottleLimit <= 0 {
		return errors.New("throttle limit must be positive")
	}
	if len(c.Feedback.DocumentKinds) == 0 {
		return errors.New("at least one document kind is required")
	}
	if c.Feedback.SubmitRate <= 0 || c.Feedback.SubmitBurst <= 0 {
		return errors.New("submit rate and burst must be positive")
	}
	return nil
}

// FeedbackOptions builds the controller options.
func (c Config) FeedbackOptions() feedback.Options {
	kinds := make([]string, len(c.Feedback.DocumentKinds))
	copy(kinds, c.Feedback.DocumentKinds)
	return feedback.Options{
		SendNotification: !c.Feedback.NoNotification,
		ThrottleLimit:    c.Feedback.ThrottleLimit,
		ThrottlePrefix:   c.Feedback.ThrottlePrefix,
		DocumentKinds:    kinds,
	}
}

func (c Config) Email() email.Config {
	return email.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		FromName: c.SMTP.FromName,
	}
}

// Secrets lists values that must never show up in logs. Connection URLs are
// listed only when they carry a password.
func (c Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.TokenSecret, c.SMTP.Password} {
		if s != "" {
			out = append(out, s)
		}
	}
	for _, raw := range []string{c.DatabaseURL, c.RedisURL} {
		u, err := url.Parse(raw)
		if err != nil || u.User == nil {
			continue
		}
		if pass, ok := u.User.Password(); ok && pass != "" {
			out = append(out, raw, pass)
		}
	}
	return out
}

// LoadMessages reads a YAML strings file over the defaults. An empty path
// returns the defaults.
func LoadMessages(path string) (feedback.Messages, error) {
	if path == "" {
		return feedback.DefaultMessages(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from a flag
	if err != nil {
		return feedback.Messages{}, fmt.Errorf("read messages file: %w", err)
	}
	var msgs feedback.Messages
	if err := yaml.Unmarshal(data, &msgs); err != nil {
		return feedback.Messages{}, fmt.Errorf("parse messages file: %w", err)
	}
	return msgs.Merge(feedback.DefaultMessages()), nil
}
