package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Output discard policies for serialization.
const (
	DiscardNever  = "never"
	DiscardAlways = "always"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Remote     RemoteConfig      `yaml:"remote"`
	Kernel     KernelConfig      `yaml:"kernel"`
	Save       SaveConfig        `yaml:"save"`
	Checkpoint CheckpointConfig  `yaml:"checkpoint"`
	Serve      ServeConfig       `yaml:"serve"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Kernel.Validate(); err != nil {
		return err
	}
	if err := c.Save.Validate(); err != nil {
		return err
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return err
	}
	return c.Serve.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// KillConfirm requires explicit confirmation before killing a kernel.
	KillConfirm bool `yaml:"kill_confirm"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error { return nil }

// RemoteConfig holds the document store endpoints.
type RemoteConfig struct {
	// BaseURL is the HTTP locator of the document store.
	BaseURL string `yaml:"base_url"`
	// WSBase is the websocket locator of the kernel endpoint. Derived from
	// BaseURL when empty.
	WSBase string `yaml:"ws_base"`
}

// KernelURL returns the websocket base for kernel connections.
func (c *RemoteConfig) KernelURL() string {
	if c.WSBase != "" {
		return c.WSBase
	}
	base := c.BaseURL
	switch {
	case len(base) > 8 && base[:8] == "https://":
		return "wss://" + base[8:]
	case len(base) > 7 && base[:7] == "http://":
		return "ws://" + base[7:]
	}
	return base
}

// KernelConfig holds kernel session configuration.
type KernelConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	// RequestTimeout bounds how long a kernel request may stay pending.
	// Zero, the default, keeps requests pending until restart or kill.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Validate validates the kernel configuration.
func (c *KernelConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HandshakeTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
	)
}

// SaveConfig holds the save protocol configuration.
type SaveConfig struct {
	// MaxRetries bounds ambiguous-response retries per save.
	MaxRetries int `yaml:"max_retries"`
	// DiscardOutputs is "never" or "always". Predicate policies are wired
	// programmatically.
	DiscardOutputs string `yaml:"discard_outputs"`
}

// Validate validates the save configuration.
func (c *SaveConfig) Validate() error {
	if c.DiscardOutputs == "" {
		c.DiscardOutputs = DiscardNever
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.DiscardOutputs, validation.In(DiscardNever, DiscardAlways)),
	)
}

// CheckpointConfig holds the local snapshot store configuration.
type CheckpointConfig struct {
	// Path is the SQLite file; empty disables checkpoints.
	Path string `yaml:"path"`
	// Keep bounds snapshots retained per notebook; 0 keeps all.
	Keep int `yaml:"keep"`
}

// Validate validates the checkpoint configuration.
func (c *CheckpointConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Keep, validation.Min(0)),
	)
}

// ServeConfig holds the lab server configuration.
type ServeConfig struct {
	Port int `yaml:"port"`
	// Root is the document directory served by the lab server.
	Root string `yaml:"root"`
	// AmbiguousEvery makes every Nth PUT answer 200 instead of 204.
	AmbiguousEvery int `yaml:"ambiguous_every"`
}

// Address returns the lab server listen address.
func (c *ServeConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the serve configuration.
func (c *ServeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.AmbiguousEvery, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Remote: RemoteConfig{
			BaseURL: "http://127.0.0.1:8988",
		},
		Kernel: KernelConfig{
			HandshakeTimeout: 2 * time.Second,
			WriteTimeout:     5 * time.Second,
		},
		Save: SaveConfig{
			MaxRetries:     1,
			DiscardOutputs: DiscardNever,
		},
		Checkpoint: CheckpointConfig{
			Path: "./ansuz-checkpoints.db",
			Keep: 20,
		},
		Serve: ServeConfig{
			Port: 8988,
			Root: "./notebooks",
		},
	}
}
