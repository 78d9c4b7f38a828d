package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-teamchat/internal/presence"
	"github.com/npezzotti/go-teamchat/internal/sequence"
	"github.com/npezzotti/go-teamchat/internal/storage"
)

const maxSequenceWidth = 9

type Config struct {
	ServerAddr        string
	DatabaseDSN       string
	SigningKey        []byte
	AllowedOrigins    []string
	BlobPath          string
	MaxUploadBytes    int64
	HeartbeatInterval time.Duration
	SequenceWidth     int
	PublishRate       float64
	PublishBurst      int
}

// Default returns a Config with every optional setting filled in.
func Default() *Config {
	return &Config{
		BlobPath:          "./data/blobs",
		MaxUploadBytes:    storage.DefaultMaxBytes,
		HeartbeatInterval: presence.DefaultInterval,
		SequenceWidth:     sequence.DefaultWidth,
		PublishRate:       5,
		PublishBurst:      10,
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}

	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	cfg := Default()
	cfg.ServerAddr = serverAddr
	cfg.DatabaseDSN = databaseDSN
	cfg.AllowedOrigins = allowedOrigins

	if err := cfg.SetSigningSecret(base64Secret); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) SetSigningSecret(base64Secret string) error {
	if base64Secret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	key, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}

	c.SigningKey = key
	return nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if len(c.SigningKey) == 0 {
		return fmt.Errorf("signing key cannot be empty")
	}
	if c.BlobPath == "" {
		return fmt.Errorf("blob path cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("heartbeat interval must be at least 1s, got %s", c.HeartbeatInterval)
	}
	if c.SequenceWidth < 1 || c.SequenceWidth > maxSequenceWidth {
		return fmt.Errorf("sequence width must be between 1 and %d, got %d", maxSequenceWidth, c.SequenceWidth)
	}
	if c.PublishRate <= 0 || c.PublishBurst <= 0 {
		return fmt.Errorf("publish rate and burst must be positive")
	}

	return nil
}
