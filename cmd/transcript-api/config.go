// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
)

// flags are the command line flags for the transcript service.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// config is the environment of the transcript service. Every key is read from the
// environment with dots replaced by underscores, so retry.sweep_schedule is
// RETRY_SWEEP_SCHEDULE.
type config struct {
	Port          string              `mapstructure:"port"`
	NATS          natsConfig          `mapstructure:"nats"`
	Idempotency   idempotencyConfig   `mapstructure:"idempotency"`
	Redis         redisConfig         `mapstructure:"redis"`
	Retry         retryConfig         `mapstructure:"retry"`
	TranscriptJob transcriptJobConfig `mapstructure:"transcript_job"`
	Transcript    transcriptConfig    `mapstructure:"transcript"`
	Dispatch      dispatchConfig      `mapstructure:"dispatch"`
	Zoom          zoomConfig          `mapstructure:"zoom"`
	Teams         teamsConfig         `mapstructure:"teams"`
	Meet          meetConfig          `mapstructure:"meet"`
	Google        googleConfig        `mapstructure:"google"`
	Draft         draftConfig         `mapstructure:"draft"`
	SMTP          smtpConfig          `mapstructure:"smtp"`
	Alert         alertConfig         `mapstructure:"alert"`
	RawEvent      rawEventConfig      `mapstructure:"raw_event"`
	MySQL         mysqlConfig         `mapstructure:"mysql"`
	Archive       archiveConfig       `mapstructure:"archive"`
	S3            s3Config            `mapstructure:"s3"`
	AWS           awsConfig           `mapstructure:"aws"`
	JWKS          jwksConfig          `mapstructure:"jwks"`
	JWT           jwtConfig           `mapstructure:"jwt"`
}

type natsConfig struct {
	URL string `mapstructure:"url"`
}

type idempotencyConfig struct {
	// Backend is nats or redis.
	Backend  string        `mapstructure:"backend"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	FailOpen bool          `mapstructure:"fail_open"`
}

type redisConfig struct {
	URL string `mapstructure:"url"`
}

type retryConfig struct {
	// Ladder is a comma separated list of durations, e.g. "1m,5m,15m".
	Ladder        string `mapstructure:"ladder"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BatchSize     int    `mapstructure:"batch_size"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

type transcriptJobConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type transcriptConfig struct {
	Workers      int           `mapstructure:"workers"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type dispatchConfig struct {
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type zoomConfig struct {
	WebhookSecretToken string        `mapstructure:"webhook_secret_token"`
	SignatureTolerance time.Duration `mapstructure:"signature_tolerance"`
	AccountID          string        `mapstructure:"account_id"`
	ClientID           string        `mapstructure:"client_id"`
	ClientSecret       string        `mapstructure:"client_secret"`
}

type teamsConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	ClientState  string `mapstructure:"client_state"`
	JWKSURL      string `mapstructure:"jwks_url"`
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
}

type meetConfig struct {
	WebhookToken string `mapstructure:"webhook_token"`
}

type googleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type draftConfig struct {
	ServiceURL       string        `mapstructure:"service_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Auth0Domain      string        `mapstructure:"auth0_domain"`
	ClientID         string        `mapstructure:"client_id"`
	ClientPrivateKey string        `mapstructure:"client_private_key"`
	Audience         string        `mapstructure:"audience"`
}

type smtpConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type alertConfig struct {
	// Recipients is a comma separated list of addresses.
	Recipients string `mapstructure:"recipients"`
}

type rawEventConfig struct {
	// Store is nats or mysql.
	Store string `mapstructure:"store"`
}

type mysqlConfig struct {
	DSN string `mapstructure:"dsn"`
}

type archiveConfig struct {
	// Backend is nats, s3 or none.
	Backend string `mapstructure:"backend"`
}

type s3Config struct {
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	Prefix      string `mapstructure:"prefix"`
	EndpointURL string `mapstructure:"endpoint_url"`
}

type awsConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type jwksConfig struct {
	URL string `mapstructure:"url"`
}

type jwtConfig struct {
	Audience                       string `mapstructure:"audience"`
	AuthDisabledMockLocalPrincipal string `mapstructure:"auth_disabled_mock_local_principal"`
}

// configDefaults registers every key; viper only unmarshals keys it knows about.
var configDefaults = map[string]any{
	"port":                                   "8080",
	"nats.url":                               "nats://localhost:4222",
	"idempotency.backend":                    "nats",
	"idempotency.lock_ttl":                   "24h",
	"idempotency.timeout":                    "2s",
	"idempotency.fail_open":                  true,
	"redis.url":                              "",
	"retry.ladder":                           "1m,5m,15m",
	"retry.max_attempts":                     3,
	"retry.batch_size":                       50,
	"retry.sweep_schedule":                   "0 * * * * *",
	"transcript_job.max_retries":             3,
	"transcript_job.base_delay":              "30s",
	"transcript_job.max_delay":               "10m",
	"transcript_job.stale_after":             "15m",
	"transcript.workers":                     5,
	"transcript.fetch_timeout":               "30s",
	"dispatch.schedule":                      "*/30 * * * * *",
	"dispatch.batch_size":                    50,
	"zoom.webhook_secret_token":              "",
	"zoom.signature_tolerance":               "5m",
	"zoom.account_id":                        "",
	"zoom.client_id":                         "",
	"zoom.client_secret":                     "",
	"teams.tenant_id":                        "",
	"teams.client_id":                        "",
	"teams.client_secret":                    "",
	"teams.client_state":                     "",
	"teams.jwks_url":                         "https://login.botframework.com/v1/.well-known/keys",
	"teams.issuer":                           "",
	"teams.audience":                         "",
	"meet.webhook_token":                     "",
	"google.credentials_file":                "",
	"draft.service_url":                      "",
	"draft.timeout":                          "60s",
	"draft.auth0_domain":                     "",
	"draft.client_id":                        "",
	"draft.client_private_key":               "",
	"draft.audience":                         "",
	"smtp.host":                              "",
	"smtp.port":                              587,
	"smtp.from":                              "",
	"smtp.username":                          "",
	"smtp.password":                          "",
	"alert.recipients":                       "",
	"raw_event.store":                        "nats",
	"mysql.dsn":                              "",
	"archive.backend":                        "nats",
	"s3.bucket":                              "",
	"s3.region":                              "us-west-2",
	"s3.prefix":                              "",
	"s3.endpoint_url":                        "",
	"aws.access_key_id":                      "",
	"aws.secret_access_key":                  "",
	"jwks.url":                               "",
	"jwt.audience":                           "",
	"jwt.auth_disabled_mock_local_principal": "",
}

// parseFlags parses command line flags for the transcript service
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [logging.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// loadConfig reads the configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func loadConfig() (*config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.With(logging.ErrKey, err).Warn("could not load .env file")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) validate() error {
	switch c.Idempotency.Backend {
	case "nats":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when IDEMPOTENCY_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unsupported IDEMPOTENCY_BACKEND %q", c.Idempotency.Backend)
	}

	switch c.RawEvent.Store {
	case "nats":
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when RAW_EVENT_STORE is mysql")
		}
	default:
		return fmt.Errorf("unsupported RAW_EVENT_STORE %q", c.RawEvent.Store)
	}

	switch c.Archive.Backend {
	case "nats", "none":
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ARCHIVE_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unsupported ARCHIVE_BACKEND %q", c.Archive.Backend)
	}

	if c.Idempotency.LockTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_LOCK_TTL must be positive")
	}
	if _, err := parseLadder(c.Retry.Ladder); err != nil {
		return err
	}
	return nil
}

// serviceConfig converts the environment into the pipeline configuration.
func (c *config) serviceConfig() service.ServiceConfig {
	cfg := service.DefaultServiceConfig()
	cfg.IdempotencyTimeout = c.Idempotency.Timeout
	cfg.IdempotencyFailOpen = c.Idempotency.FailOpen
	if ladder, err := parseLadder(c.Retry.Ladder); err == nil {
		cfg.RetryLadder = ladder
	}
	cfg.RetryMaxAttempts = c.Retry.MaxAttempts
	cfg.RetryBatchSize = c.Retry.BatchSize
	cfg.TranscriptJobMaxRetries = c.TranscriptJob.MaxRetries
	cfg.TranscriptJobBaseDelay = c.TranscriptJob.BaseDelay
	cfg.TranscriptJobMaxDelay = c.TranscriptJob.MaxDelay
	cfg.TranscriptJobStaleAfter = c.TranscriptJob.StaleAfter
	cfg.TranscriptWorkers = c.Transcript.Workers
	cfg.DispatchBatchSize = c.Dispatch.BatchSize
	return cfg
}

// alertRecipients splits ALERT_RECIPIENTS.
func (c *config) alertRecipients() []string {
	return splitList(c.Alert.Recipients)
}

func parseLadder(raw string) ([]time.Duration, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("RETRY_LADDER must list at least one delay")
	}
	ladder := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_LADDER entry %q: %w", part, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid RETRY_LADDER entry %q: must be positive", part)
		}
		ladder = append(ladder, d)
	}
	return ladder, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
