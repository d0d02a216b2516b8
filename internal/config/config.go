package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7480"
	DefaultDBFileName  = ".edmanweb.db"
	DefaultBlobDirName = ".edmanweb-blobs"
	DefaultLogLevel    = "info"

	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	DefaultAttachmentMaxUploadBytes  int64 = 100 * 1024 * 1024
	DefaultAttachmentMultipartMemory int64 = 8 * 1024 * 1024
	DefaultAttachmentGCBatchSize           = 500

	DefaultPreviewWidth       = 100
	DefaultPreviewHeight      = 100
	DefaultPreviewConcurrency = 1
	DefaultPreviewJPEGQuality = 90

	configFileName           = ".edmanweb.toml"
	configDirEnvKey          = "EDMANWEB_CONFIG_DIR"
	trustProjectConfigEnvKey = "EDMANWEB_TRUST_PROJECT_CONFIG"

	apiURLEnvKey            = "EDMANWEB_API_URL"
	dbPathEnvKey            = "EDMANWEB_DB"
	blobBackendEnvKey       = "EDMANWEB_BLOB_BACKEND"
	blobRootEnvKey          = "EDMANWEB_BLOB_ROOT"
	s3EndpointEnvKey        = "EDMANWEB_S3_ENDPOINT"
	s3BucketEnvKey          = "EDMANWEB_S3_BUCKET"
	s3AccessKeyEnvKey       = "EDMANWEB_S3_ACCESS_KEY"
	s3SecretKeyEnvKey       = "EDMANWEB_S3_SECRET_KEY"
	previewExtensionsEnvKey = "EDMANWEB_PREVIEW_EXTENSIONS"
	tokenHashEnvKey         = "EDMANWEB_API_TOKEN_HASH"
)

// DefaultPreviewExtensions lists the image types previews are built for.
var DefaultPreviewExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff"}

// BlobConfig selects where attachment content is stored.
type BlobConfig struct {
	Backend     string `toml:"backend"`
	Root        string `toml:"root"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Region    string `toml:"s3_region"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"-"`
	S3SecretKey string `toml:"-"`
}

// AttachmentConfig defines runtime configuration for attachment handling.
type AttachmentConfig struct {
	MaxUploadBytes     int64 `toml:"max_upload_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
	Compress           bool  `toml:"compress"`
	GCBatchSize        int   `toml:"gc_batch_size"`
}

// PreviewConfig defines how previews are selected and rendered.
type PreviewConfig struct {
	AllowedExtensions []string `toml:"allowed_extensions"`
	Width             int      `toml:"width"`
	Height            int      `toml:"height"`
	Concurrency       int      `toml:"concurrency"`
	JPEGQuality       int      `toml:"jpeg_quality"`
}

// AuthConfig holds the bcrypt hash of the API bearer token. Empty disables auth.
type AuthConfig struct {
	TokenHash string `toml:"token_hash"`
}

// Config defines runtime configuration for edmanweb.
type Config struct {
	APIURL                   string           `toml:"api_url"`
	DBPath                   string           `toml:"db_path"`
	LogLevel                 string           `toml:"log_level"`
	Blobs                    BlobConfig       `toml:"blobs"`
	Attachments              AttachmentConfig `toml:"attachments"`
	Previews                 PreviewConfig    `toml:"previews"`
	Auth                     AuthConfig       `toml:"auth"`
	TrustedProjectConfigPath string           `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Blobs: BlobConfig{
			Backend: BlobBackendLocal,
		},
		Attachments: AttachmentConfig{
			MaxUploadBytes:     DefaultAttachmentMaxUploadBytes,
			MultipartMaxMemory: DefaultAttachmentMultipartMemory,
			GCBatchSize:        DefaultAttachmentGCBatchSize,
		},
		Previews: PreviewConfig{
			AllowedExtensions: append([]string(nil), DefaultPreviewExtensions...),
			Width:             DefaultPreviewWidth,
			Height:            DefaultPreviewHeight,
			Concurrency:       DefaultPreviewConcurrency,
			JPEGQuality:       DefaultPreviewJPEGQuality,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"blobs.backend",
	"blobs.root",
	"blobs.s3_endpoint",
	"blobs.s3_region",
	"blobs.s3_bucket",
	"attachments.max_upload_bytes",
	"attachments.multipart_max_memory",
	"attachments.compress",
	"attachments.gc_batch_size",
	"previews.allowed_extensions",
	"previews.width",
	"previews.height",
	"previews.concurrency",
	"previews.jpeg_quality",
	"auth.token_hash",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "blobs.s3_endpoint":
		return c.Blobs.S3Endpoint, nil
	case "blobs.s3_region":
		return c.Blobs.S3Region, nil
	case "blobs.s3_bucket":
		return c.Blobs.S3Bucket, nil
	case "attachments.max_upload_bytes":
		return strconv.FormatInt(c.Attachments.MaxUploadBytes, 10), nil
	case "attachments.multipart_max_memory":
		return strconv.FormatInt(c.Attachments.MultipartMaxMemory, 10), nil
	case "attachments.compress":
		return strconv.FormatBool(c.Attachments.Compress), nil
	case "attachments.gc_batch_size":
		return strconv.Itoa(c.Attachments.GCBatchSize), nil
	case "previews.allowed_extensions":
		return strings.Join(c.Previews.AllowedExtensions, ","), nil
	case "previews.width":
		return strconv.Itoa(c.Previews.Width), nil
	case "previews.height":
		return strconv.Itoa(c.Previews.Height), nil
	case "previews.concurrency":
		return strconv.Itoa(c.Previews.Concurrency), nil
	case "previews.jpeg_quality":
		return strconv.Itoa(c.Previews.JPEGQuality), nil
	case "auth.token_hash":
		return c.Auth.TokenHash, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	cfg.applyEnv()

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.Blobs.Root == "" && cfg.DBPath != "" {
		cfg.Blobs.Root = filepath.Join(filepath.Dir(cfg.DBPath), DefaultBlobDirName)
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(apiURLEnvKey); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(dbPathEnvKey); v != "" {
		c.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(blobBackendEnvKey)); v != "" {
		c.Blobs.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv(blobRootEnvKey)); v != "" {
		c.Blobs.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(s3EndpointEnvKey)); v != "" {
		c.Blobs.S3Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(s3BucketEnvKey)); v != "" {
		c.Blobs.S3Bucket = v
	}
	c.Blobs.S3AccessKey = os.Getenv(s3AccessKeyEnvKey)
	c.Blobs.S3SecretKey = os.Getenv(s3SecretKeyEnvKey)
	if raw := strings.TrimSpace(os.Getenv(previewExtensionsEnvKey)); raw != "" {
		c.Previews.AllowedExtensions = splitCSV(raw)
	}
	if v := strings.TrimSpace(os.Getenv(tokenHashEnvKey)); v != "" {
		c.Auth.TokenHash = v
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Blobs.Backend {
	case BlobBackendLocal:
	case BlobBackendS3:
		if strings.TrimSpace(c.Blobs.S3Bucket) == "" {
			return fmt.Errorf("blobs.s3_bucket is required when blobs.backend is %q", BlobBackendS3)
		}
	default:
		return fmt.Errorf("invalid blobs.backend %q (want %q or %q)", c.Blobs.Backend, BlobBackendLocal, BlobBackendS3)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "attachments.max_upload_bytes", "attachments.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "attachments.gc_batch_size", "previews.width", "previews.height", "previews.concurrency":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "previews.jpeg_quality":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 1 || parsed > 100 {
			return nil, fmt.Errorf("%s must be between 1 and 100", key)
		}
		return parsed, nil
	case "attachments.compress":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "blobs.backend":
		if value != BlobBackendLocal && value != BlobBackendS3 {
			return nil, fmt.Errorf("%s must be %q or %q", key, BlobBackendLocal, BlobBackendS3)
		}
		return value, nil
	case "previews.allowed_extensions":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = BlobBackendLocal
	}
	if c.Attachments.MaxUploadBytes <= 0 {
		c.Attachments.MaxUploadBytes = DefaultAttachmentMaxUploadBytes
	}
	if c.Attachments.MultipartMaxMemory <= 0 {
		c.Attachments.MultipartMaxMemory = DefaultAttachmentMultipartMemory
	}
	if c.Attachments.GCBatchSize <= 0 {
		c.Attachments.GCBatchSize = DefaultAttachmentGCBatchSize
	}
	if c.Previews.Width <= 0 {
		c.Previews.Width = DefaultPreviewWidth
	}
	if c.Previews.Height <= 0 {
		c.Previews.Height = DefaultPreviewHeight
	}
	if c.Previews.Concurrency <= 0 {
		c.Previews.Concurrency = DefaultPreviewConcurrency
	}
	if c.Previews.JPEGQuality <= 0 || c.Previews.JPEGQuality > 100 {
		c.Previews.JPEGQuality = DefaultPreviewJPEGQuality
	}
	c.Previews.AllowedExtensions = normalizeExtensions(c.Previews.AllowedExtensions)
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func normalizeExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := map[string]struct{}{}
	for _, ext := range raw {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
