// Package config provides the configuration structure for the voice studio.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Defaults applied to zero-valued settings.
const (
	defaultServerAddr        = "127.0.0.1:8787"
	defaultRelayURL          = "http://127.0.0.1:8787"
	defaultProviderBaseURL   = "https://api.elevenlabs.io"
	defaultAPIKeyEnv         = "ELEVENLABS_API_KEY"
	defaultModelID           = "eleven_multilingual_v2"
	defaultTimeoutSeconds    = 60
	defaultShutdownSeconds   = 5
	defaultMaxUploadMB       = 50
	defaultRateLimitBurst    = 10
	defaultHistoryLimit      = 10
	defaultAudioCacheEntries = 32
	defaultKVBucket          = "VOICE_STUDIO_STATE"
	defaultExportBucket      = "VOICE_STUDIO_AUDIO"
	defaultNATSURL           = "nats://127.0.0.1:4222"
	defaultWorkerSubject     = "text.processed"
	defaultPlayerCommand     = "ffplay"
	defaultRecorderCommand   = "arecord"
	defaultVolume            = 1.0
	defaultChunkBytes        = 4096
	defaultDataDirName       = "voice-studio"
)

// ErrUnknownBackend is returned for a storage backend this build cannot open.
var ErrUnknownBackend = errors.New("unknown storage backend")

// ServerConfig holds the proxy relay listener settings.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimitRPM    int      `toml:"rate_limit_rpm"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
	MaxUploadMB     int      `toml:"max_upload_mb"`
	ShutdownSeconds int      `toml:"shutdown_seconds"`
}

// ProviderConfig describes the remote speech provider behind the relay.
type ProviderConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	ModelID        string `toml:"model_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// StudioConfig holds the client-side orchestration settings.
type StudioConfig struct {
	RelayURL       string `toml:"relay_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	HistoryLimit   int    `toml:"history_limit"`
	AudioCache     int    `toml:"audio_cache_entries"`
	AutoPlay       *bool  `toml:"auto_play"`
}

// StorageConfig selects where local state and exported audio live.
type StorageConfig struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	KVBucket      string `toml:"kv_bucket"`
	ExportBackend string `toml:"export_backend"`
	ExportDir     string `toml:"export_dir"`
	ExportBucket  string `toml:"export_bucket"`
	ExportSubject string `toml:"export_subject"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL string `toml:"url"`
}

// WorkerConfig configures the NATS synthesis worker.
type WorkerConfig struct {
	Subject          string `toml:"subject"`
	CompletedSubject string `toml:"completed_subject"`
	Bucket           string `toml:"bucket"`
	VoiceID          string `toml:"voice_id"`
}

// PlaybackConfig configures the external player process.
type PlaybackConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Volume  *float64 `toml:"volume"`
}

// RecordingConfig configures the external capture process.
type RecordingConfig struct {
	Command    string   `toml:"command"`
	Args       []string `toml:"args"`
	ChunkBytes int      `toml:"chunk_bytes"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Provider  ProviderConfig  `toml:"provider"`
	Studio    StudioConfig    `toml:"studio"`
	Storage   StorageConfig   `toml:"storage"`
	NATS      NATSConfig      `toml:"nats"`
	Worker    WorkerConfig    `toml:"worker"`
	Playback  PlaybackConfig  `toml:"playback"`
	Recording RecordingConfig `toml:"recording"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration through the central configurator and fills defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.ApplyDefaults()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFile decodes an explicit TOML file and fills defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	err = cfg.ApplyDefaults()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config

	// The zero value always has known backends.
	_ = cfg.ApplyDefaults()

	return &cfg
}

// ApplyDefaults fills zero values and validates backend names.
func (c *Config) ApplyDefaults() error {
	c.applyServerDefaults()
	c.applyProviderDefaults()
	c.applyStudioDefaults()
	c.applyMediaDefaults()

	return c.applyStorageDefaults()
}

// APIKey returns the provider credential from the environment. It is never
// stored in the config file.
func (c *Config) APIKey() string {
	return os.Getenv(c.Provider.APIKeyEnv)
}

// ProviderTimeout returns the timeout applied to provider calls.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// StudioTimeout returns the timeout applied to relay calls.
func (c *Config) StudioTimeout() time.Duration {
	return time.Duration(c.Studio.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the grace period for relay shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

// AutoPlayEnabled reports whether speak plays audio unless told otherwise.
func (c *Config) AutoPlayEnabled() bool {
	return c.Studio.AutoPlay == nil || *c.Studio.AutoPlay
}

// OutputVolume returns the configured playback volume. A configured 0 is kept.
func (c *Config) OutputVolume() float64 {
	if c.Playback.Volume == nil {
		return defaultVolume
	}

	return *c.Playback.Volume
}

// MaxUploadBytes returns the multipart size limit for clone uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func (c *Config) applyServerDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}

	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = defaultRateLimitBurst
	}

	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}

	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = defaultShutdownSeconds
	}
}

func (c *Config) applyProviderDefaults() {
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}

	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = defaultAPIKeyEnv
	}

	if c.Provider.ModelID == "" {
		c.Provider.ModelID = defaultModelID
	}

	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = defaultTimeoutSeconds
	}
}

func (c *Config) applyStudioDefaults() {
	if c.Studio.RelayURL == "" {
		c.Studio.RelayURL = defaultRelayURL
	}

	if c.Studio.TimeoutSeconds <= 0 {
		c.Studio.TimeoutSeconds = defaultTimeoutSeconds
	}

	if c.Studio.HistoryLimit <= 0 {
		c.Studio.HistoryLimit = defaultHistoryLimit
	}

	if c.Studio.AudioCache <= 0 {
		c.Studio.AudioCache = defaultAudioCacheEntries
	}
}

func (c *Config) applyMediaDefaults() {
	if c.Playback.Command == "" {
		c.Playback.Command = defaultPlayerCommand
	}

	if c.Playback.Volume == nil || *c.Playback.Volume < 0 {
		volume := defaultVolume
		c.Playback.Volume = &volume
	}

	if c.Recording.Command == "" {
		c.Recording.Command = defaultRecorderCommand
	}

	if c.Recording.ChunkBytes <= 0 {
		c.Recording.ChunkBytes = defaultChunkBytes
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}
}

func (c *Config) applyStorageDefaults() error {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}

	if c.Storage.ExportBackend == "" {
		c.Storage.ExportBackend = BackendFile
	}

	switch c.Storage.Backend {
	case BackendFile, BackendNATS, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}

	if c.Storage.ExportBackend != BackendFile && c.Storage.ExportBackend != BackendNATS {
		return fmt.Errorf("%w: export %q", ErrUnknownBackend, c.Storage.ExportBackend)
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = defaultDataDir()
	}

	if c.Storage.ExportDir == "" {
		c.Storage.ExportDir = filepath.Join(c.Storage.Dir, "exports")
	}

	if c.Storage.KVBucket == "" {
		c.Storage.KVBucket = defaultKVBucket
	}

	if c.Storage.ExportBucket == "" {
		c.Storage.ExportBucket = defaultExportBucket
	}

	if c.NATS.URL == "" {
		c.NATS.URL = defaultNATSURL
	}

	if c.Worker.Subject == "" {
		c.Worker.Subject = defaultWorkerSubject
	}

	if c.Worker.Bucket == "" {
		c.Worker.Bucket = c.Storage.ExportBucket
	}

	return nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), defaultDataDirName)
	}

	return filepath.Join(dir, defaultDataDirName)
}
