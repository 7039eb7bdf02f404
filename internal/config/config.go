// Package config loads gateway configuration from a primary config.yaml
// (teacher-style nested structs with `yaml:` tags, Load()+DefaultConfig()+
// applyEnvOverrides()) layered with the spec-mandated SEAFDAV_CONF INI file
// and its [WEBDAV] section, read through viper so a real INI parser is
// exercised rather than a hand-rolled one.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Blob     BlobConfig     `yaml:"blob"`
	WebDAV   WebDAVConfig   `yaml:"webdav"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
	TLSCert      string        `yaml:"ssl_certificate"`
	TLSKey       string        `yaml:"ssl_private_key"`
}

// DatabaseConfig holds Cassandra connection settings for the repository
// service's metadata index (repo registry, shares, groups, org index).
type DatabaseConfig struct {
	Hosts       []string `yaml:"hosts"`
	Keyspace    string   `yaml:"keyspace"`
	Consistency string   `yaml:"consistency"`
	LocalDC     string   `yaml:"local_dc"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
}

// BlobConfig selects and configures the object/block storage backend (C1).
type BlobConfig struct {
	Type string `yaml:"type"` // "filesystem" or "s3"

	// Filesystem backend
	Path string `yaml:"path"`

	// S3 backend
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style"`

	// SpillThresholdMB is the in-memory spool threshold before a PUT body
	// spills to a temp file (see internal/davfs.SpillBuffer).
	SpillThresholdMB int64 `yaml:"spill_threshold_mb"`
}

// WebDAVConfig holds gateway behavior settings, most of which come from the
// spec-mandated SEAFDAV_CONF INI file's [WEBDAV] section rather than YAML.
type WebDAVConfig struct {
	ShowRepoID       bool   `yaml:"show_repo_id" mapstructure:"show_repo_id"`
	EnableCustomProp bool   `yaml:"enable_custom_properties" mapstructure:"enable_custom_properties"`
	ShareName        string `yaml:"share_name" mapstructure:"share_name"`
	// Readonly, when set, rejects every write operation (Mkdir, OpenFile
	// for writing, RemoveAll, Rename) regardless of the requesting
	// principal's own permission level.
	Readonly bool `yaml:"readonly" mapstructure:"readonly"`
}

// CORSConfig holds CORS settings for browser-based DAV clients.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns sensible defaults, matching the teacher's
// DefaultConfig() shape.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
			MaxUploadMB:  10240,
		},
		Database: DatabaseConfig{
			Hosts:       []string{"localhost:9042"},
			Keyspace:    "seafdav",
			Consistency: "LOCAL_QUORUM",
			LocalDC:     "datacenter1",
		},
		Blob: BlobConfig{
			Type:             "filesystem",
			Path:             "./data/storage",
			SpillThresholdMB: 16,
		},
		WebDAV: WebDAVConfig{
			ShowRepoID: false,
			ShareName:  "seafile",
		},
	}
}

// Load reads config.yaml (path from CONFIG_PATH, default "config.yaml"),
// then layers the SEAFDAV_CONF INI file's [WEBDAV] section on top via
// viper, then applies environment overrides, matching the teacher's
// Load()->applyEnvOverrides()->Validate() pipeline.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applySeafdavConf(cfg); err != nil {
		return nil, fmt.Errorf("parse SEAFDAV_CONF: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applySeafdavConf reads the INI file named by the SEAFDAV_CONF environment
// variable (if set) and merges its [WEBDAV] section into cfg.WebDAV. viper
// is used for genuine INI support rather than a hand-rolled parser.
func applySeafdavConf(cfg *Config) error {
	confPath := os.Getenv("SEAFDAV_CONF")
	if confPath == "" {
		return nil
	}
	if _, err := os.Stat(confPath); os.IsNotExist(err) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(confPath)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", confPath, err)
	}

	section := v.Sub("webdav")
	if section == nil {
		return nil
	}

	var parsed WebDAVConfig = cfg.WebDAV
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &parsed,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(section.AllSettings()); err != nil {
		return fmt.Errorf("decode [WEBDAV] section: %w", err)
	}
	cfg.WebDAV = parsed
	return nil
}

// multiTenancyEnabled is read once and cached, mirroring
// original_source/wsgidav/dc/seaf_utils.py's multi_tenancy_enabled(): a
// process-global value shared by every request (spec §9).
var (
	multiTenancyOnce    sync.Once
	multiTenancyEnabled bool
)

// MultiTenancyEnabled reports whether the MULTI_TENANCY environment
// variable (or, failing that, a multi_tenancy=true line in SEAFDAV_CONF's
// [WEBDAV] section) enables org-scoped repo listing. Memoized after first
// read, exactly like the Python original.
func MultiTenancyEnabled() bool {
	multiTenancyOnce.Do(func() {
		if v := os.Getenv("MULTI_TENANCY"); v != "" {
			multiTenancyEnabled = v == "true" || v == "1"
			return
		}
		confPath := os.Getenv("SEAFDAV_CONF")
		if confPath == "" {
			return
		}
		v := viper.New()
		v.SetConfigFile(confPath)
		v.SetConfigType("ini")
		if err := v.ReadInConfig(); err != nil {
			return
		}
		multiTenancyEnabled = v.GetBool("webdav.multi_tenancy")
	})
	return multiTenancyEnabled
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}

	if v := os.Getenv("CASSANDRA_HOSTS"); v != "" {
		c.Database.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("CASSANDRA_KEYSPACE"); v != "" {
		c.Database.Keyspace = v
	}
	if v := os.Getenv("CASSANDRA_USERNAME"); v != "" {
		c.Database.Username = v
	}
	if v := os.Getenv("CASSANDRA_PASSWORD"); v != "" {
		c.Database.Password = v
	}

	if v := os.Getenv("BLOB_TYPE"); v != "" {
		c.Blob.Type = v
	}
	if v := os.Getenv("BLOB_PATH"); v != "" {
		c.Blob.Path = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Blob.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Blob.Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Blob.Endpoint = v
	}

	if v := os.Getenv("SHOW_REPO_ID"); v != "" {
		c.WebDAV.ShowRepoID = v == "true" || v == "1"
	}
	if v := os.Getenv("WEBDAV_READONLY"); v != "" {
		c.WebDAV.Readonly = v == "true" || v == "1"
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if len(c.Database.Hosts) == 0 {
		return fmt.Errorf("at least one database host is required")
	}
	if c.Database.Keyspace == "" {
		return fmt.Errorf("database keyspace is required")
	}
	switch c.Blob.Type {
	case "filesystem":
		if c.Blob.Path == "" {
			return fmt.Errorf("blob.path is required for the filesystem backend")
		}
	case "s3":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown blob backend type %q", c.Blob.Type)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
