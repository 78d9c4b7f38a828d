package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TEAMCHAT_"

// File is the YAML config file. Unset fields leave the current value alone.
type File struct {
	ServerAddr        string   `yaml:"server_addr"`
	DatabaseDSN       string   `yaml:"database_dsn"`
	SigningKey        string   `yaml:"signing_key"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	BlobPath          string   `yaml:"blob_path"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	HeartbeatInterval string   `yaml:"heartbeat_interval"`
	SequenceWidth     int      `yaml:"sequence_width"`
	PublishRate       float64  `yaml:"publish_rate"`
	PublishBurst      int      `yaml:"publish_burst"`
}

func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &f, nil
}

func (c *Config) ApplyFile(f *File) error {
	if f.ServerAddr != "" {
		c.ServerAddr = f.ServerAddr
	}
	if f.DatabaseDSN != "" {
		c.DatabaseDSN = f.DatabaseDSN
	}
	if f.SigningKey != "" {
		if err := c.SetSigningSecret(f.SigningKey); err != nil {
			return err
		}
	}
	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if f.BlobPath != "" {
		c.BlobPath = f.BlobPath
	}
	if f.MaxUploadBytes != 0 {
		c.MaxUploadBytes = f.MaxUploadBytes
	}
	if f.HeartbeatInterval != "" {
		d, err := time.ParseDuration(f.HeartbeatInterval)
		if err != nil {
			return fmt.Errorf("heartbeat_interval: %w", err)
		}
		c.HeartbeatInterval = d
	}
	if f.SequenceWidth != 0 {
		c.SequenceWidth = f.SequenceWidth
	}
	if f.PublishRate != 0 {
		c.PublishRate = f.PublishRate
	}
	if f.PublishBurst != 0 {
		c.PublishBurst = f.PublishBurst
	}

	return nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides c with TEAMCHAT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("ADDR"); ok {
		c.ServerAddr = v
	}
	if v, ok := get("DSN"); ok {
		c.DatabaseDSN = v
	}
	if v, ok := get("SIGNING_KEY"); ok {
		if err := c.SetSigningSecret(v); err != nil {
			return err
		}
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = splitList(v)
	}
	if v, ok := get("BLOB_PATH"); ok {
		c.BlobPath = v
	}
	if v, ok := get("MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", envPrefix, err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := get("HEARTBEAT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sHEARTBEAT_INTERVAL: %w", envPrefix, err)
		}
		c.HeartbeatInterval = d
	}
	if v, ok := get("SEQUENCE_WIDTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sSEQUENCE_WIDTH: %w", envPrefix, err)
		}
		c.SequenceWidth = n
	}
	if v, ok := get("PUBLISH_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sPUBLISH_RATE: %w", envPrefix, err)
		}
		c.PublishRate = f
	}
	if v, ok := get("PUBLISH_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPUBLISH_BURST: %w", envPrefix, err)
		}
		c.PublishBurst = n
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}

	return out
}
