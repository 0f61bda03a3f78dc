package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/prappser/prappser_cdn/internal/keyspace"
	"github.com/prappser/prappser_cdn/internal/metadata"
	"github.com/prappser/prappser_cdn/internal/storage"
	"github.com/prappser/prappser_cdn/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "files/config.yaml"
	envPrefix         = "CDN"
)

type ServerConfig struct {
	ChunksDir      string   `mapstructure:"chunksDir"`
	ResourceSpace  string   `mapstructure:"resourceSpace"`
	HTTPAddr       string   `mapstructure:"httpAddr"`
	CatalogPath    string   `mapstructure:"catalogPath"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type BrokerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	Type        string `mapstructure:"type"`
	S3Endpoint  string `mapstructure:"s3Endpoint"`
	S3Bucket    string `mapstructure:"s3Bucket"`
	S3AccessKey string `mapstructure:"s3AccessKey"`
	S3SecretKey string `mapstructure:"s3SecretKey"`
	S3Region    string `mapstructure:"s3Region"`
	S3UseSSL    bool   `mapstructure:"s3UseSSL"`
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

type ClientConfig struct {
	Root           string      `mapstructure:"root"`
	ChunkSize      uint64      `mapstructure:"chunkSize"`
	BrokerURL      string      `mapstructure:"brokerURL"`
	VerifyChecksum bool        `mapstructure:"verifyChecksum"`
	Retry          RetryConfig `mapstructure:"retry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Storage StorageConfig `mapstructure:"storage"`
	Client  ClientConfig  `mapstructure:"client"`
	Log     LogConfig     `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.chunksDir", storage.DefaultLocalPath)
	v.SetDefault("server.resourceSpace", keyspace.DefaultRoot+"/**")
	v.SetDefault("server.httpAddr", ":8080")
	v.SetDefault("server.catalogPath", "files/catalog.db")
	v.SetDefault("server.allowedOrigins", []string{})

	v.SetDefault("broker.enabled", true)
	v.SetDefault("broker.path", "/ws")
	v.SetDefault("broker.compress", true)

	v.SetDefault("storage.type", string(storage.StorageTypeLocal))
	v.SetDefault("storage.s3Endpoint", "")
	v.SetDefault("storage.s3Bucket", "")
	v.SetDefault("storage.s3AccessKey", "")
	v.SetDefault("storage.s3SecretKey", "")
	v.SetDefault("storage.s3Region", "")
	v.SetDefault("storage.s3UseSSL", false)

	v.SetDefault("client.root", keyspace.DefaultRoot)
	v.SetDefault("client.chunkSize", metadata.DefaultChunkSize)
	v.SetDefault("client.brokerURL", "ws://localhost:8080/ws")
	v.SetDefault("client.verifyChecksum", true)
	v.SetDefault("client.retry.attempts", 1)
	v.SetDefault("client.retry.backoff", 500*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// LoadConfig reads the YAML file at path over the defaults. A missing file
// leaves the defaults in place. Every key can be overridden from the
// environment, e.g. CDN_SERVER_CHUNKSDIR or CDN_CLIENT_RETRY_ATTEMPTS.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Client.ChunkSize == 0 {
		return nil, fmt.Errorf("client.chunkSize must be positive")
	}
	if config.Client.ChunkSize > websocket.MaxPayloadSize {
		return nil, fmt.Errorf("client.chunkSize %d exceeds the broker frame limit of %d bytes", config.Client.ChunkSize, websocket.MaxPayloadSize)
	}
	return &config, nil
}

func (c *Config) BackendConfig() *storage.BackendConfig {
	return &storage.BackendConfig{
		Type:        storage.StorageType(c.Storage.Type),
		LocalPath:   c.Server.ChunksDir,
		S3Endpoint:  c.Storage.S3Endpoint,
		S3Bucket:    c.Storage.S3Bucket,
		S3AccessKey: c.Storage.S3AccessKey,
		S3SecretKey: c.Storage.S3SecretKey,
		S3Region:    c.Storage.S3Region,
		S3UseSSL:    c.Storage.S3UseSSL,
	}
}
