// Package config loads the runtime's environment-variable driven
// configuration (spec §6) and normalizes the NATS address list.
// Storage-option normalization (AWS_ALLOW_HTTP, AWS_S3_ALLOW_UNSAFE_RENAME)
// is a Model-level concern (public/model.Model) since it depends on a
// per-model bucket name; this package only loads the raw credential and
// transport values shared by every Model.
//
// An optional YAML overlay file (resolved per resolver.go) supplies
// defaults beneath the environment: env vars always win when both are
// set, mirroring the no-clobber rule applied to storage options.
//
// Called by: public/runtime (Runtime Root construction)
// Calls: os.Getenv, gopkg.in/yaml.v3
package config

import (
	"fmt"
	"os"
	"strings"
)

const defaultNATSPort = "4222"

// Config is the runtime's environment configuration.
type Config struct {
	Debug bool

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpointURL     string
	AWSRegion          string

	// DefaultMessenger selects the messenger driver (PIPE_DEFAULT_MESSENGER), e.g. "nats".
	DefaultMessenger string
	// QueueGroup, when true, causes every Model Channel to subscribe
	// queue-grouped under its own topic name (PIPE_QUEUE_GROUP=="true").
	QueueGroup bool

	NATSAddrs        []string
	NATSAccount      string
	NATSPasswordPath string
	// NATSPassword is read from the file at NATSPasswordPath during Load.
	NATSPassword  string
	NATSAllowDrop bool
}

// overlay is the YAML shape of an optional config file; every field
// mirrors one environment variable and is applied only when that
// variable is unset.
type overlay struct {
	Debug              *bool    `yaml:"debug"`
	AWSAccessKeyID     string   `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string   `yaml:"aws_secret_access_key"`
	AWSEndpointURL     string   `yaml:"aws_endpoint_url"`
	AWSRegion          string   `yaml:"aws_region"`
	DefaultMessenger   string   `yaml:"pipe_default_messenger"`
	QueueGroup         *bool    `yaml:"pipe_queue_group"`
	NATSAddrs          []string `yaml:"nats_addrs"`
	NATSAccount        string   `yaml:"nats_account"`
	NATSPasswordPath   string   `yaml:"nats_password_path"`
	NATSAllowDrop      *bool    `yaml:"nats_allow_drop"`
}

// Load builds a Config from the overlay file (if one resolves, see
// resolver.go) and the process environment, with the environment
// taking precedence field-by-field.
func Load() (*Config, error) {
	ov, err := loadOverlay()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Debug:              ov.Debug != nil && *ov.Debug,
		AWSAccessKeyID:     ov.AWSAccessKeyID,
		AWSSecretAccessKey: ov.AWSSecretAccessKey,
		AWSEndpointURL:     ov.AWSEndpointURL,
		AWSRegion:          ov.AWSRegion,
		DefaultMessenger:   ov.DefaultMessenger,
		QueueGroup:         ov.QueueGroup != nil && *ov.QueueGroup,
		NATSAddrs:          ov.NATSAddrs,
		NATSAccount:        ov.NATSAccount,
		NATSPasswordPath:   ov.NATSPasswordPath,
		NATSAllowDrop:      ov.NATSAllowDrop != nil && *ov.NATSAllowDrop,
	}

	applyStringEnv(&cfg.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	applyStringEnv(&cfg.AWSSecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	applyStringEnv(&cfg.AWSEndpointURL, "AWS_ENDPOINT_URL")
	applyStringEnv(&cfg.AWSRegion, "AWS_REGION")
	applyStringEnv(&cfg.DefaultMessenger, "PIPE_DEFAULT_MESSENGER")
	applyStringEnv(&cfg.NATSAccount, "NATS_ACCOUNT")
	applyStringEnv(&cfg.NATSPasswordPath, "NATS_PASSWORD_PATH")

	if v, ok := os.LookupEnv("PIPE_QUEUE_GROUP"); ok {
		cfg.QueueGroup = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("NATS_ALLOW_DROP"); ok {
		cfg.NATSAllowDrop = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("NATS_ADDRS"); ok && v != "" {
		cfg.NATSAddrs = strings.Split(v, ",")
	}

	cfg.NATSAddrs = NormalizeNATSAddrs(cfg.NATSAddrs)

	if cfg.NATSPasswordPath != "" {
		password, err := readPasswordFile(cfg.NATSPasswordPath)
		if err != nil {
			return nil, err
		}
		cfg.NATSPassword = password
	}

	return cfg, nil
}

func applyStringEnv(field *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*field = v
	}
}

// NormalizeNATSAddrs prefixes bare host:port (or host) entries with
// nats:// and a default port of 4222, per spec §6.
func NormalizeNATSAddrs(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, raw := range addrs {
		addr := strings.TrimSpace(raw)
		if addr == "" {
			continue
		}
		if !strings.Contains(addr, "://") {
			if !strings.Contains(addr, ":") {
				addr = addr + ":" + defaultNATSPort
			}
			addr = "nats://" + addr
		}
		out = append(out, addr)
	}
	return out
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read NATS_PASSWORD_PATH %s: %w", path, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
