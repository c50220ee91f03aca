package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

// StoreConfig selects the Local Store backend: "sqlite" (default) or "redis".
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type AuthConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BcryptCost int  `mapstructure:"bcrypt_cost"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type BackupConfig struct {
	Dir string `mapstructure:"dir"`
}

// SyncConfig holds the defaults for remote mirroring. Values saved through the
// settings API take precedence over WebhookURL, APIKey and SpreadsheetID.
type SyncConfig struct {
	WebhookURL    string        `mapstructure:"webhook_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BaseDelay     time.Duration `mapstructure:"base_delay"`
	APIKey        string        `mapstructure:"api_key"`
	SpreadsheetID string        `mapstructure:"spreadsheet_id"`
	SheetName     string        `mapstructure:"sheet_name"`

	// service account credentials for the read path, used when APIKey is empty
	ClientEmail  string `mapstructure:"client_email"`
	PrivateKey   string `mapstructure:"private_key"`
	PrivateKeyID string `mapstructure:"private_key_id"`
	TokenURI     string `mapstructure:"token_uri"`
}

// SheetConfig controls the built-in spreadsheet action handler served at /exec.
type SheetConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Name    string `mapstructure:"name"`
}

type ExportConfig struct {
	Locale   string `mapstructure:"locale"`
	Currency string `mapstructure:"currency"`
	Timezone string `mapstructure:"timezone"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Sheet    SheetConfig    `mapstructure:"sheet"`
	Export   ExportConfig   `mapstructure:"export"`
}

var (
	appConfig *Config
	once      sync.Once
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.path", "data/office-bu.db")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("jwt.issuer", "office-bu")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("log.level", "info")
	v.SetDefault("backup.dir", "data/backups")
	v.SetDefault("sync.timeout", 15*time.Second)
	v.SetDefault("sync.base_delay", 500*time.Millisecond)
	v.SetDefault("sync.sheet_name", "Transactions")
	v.SetDefault("sync.token_uri", "https://oauth2.googleapis.com/token")
	v.SetDefault("sheet.path", "data/transactions.xlsx")
	v.SetDefault("sheet.name", "Transactions")
	v.SetDefault("export.locale", "en-IN")
	v.SetDefault("export.currency", "₹")
	v.SetDefault("export.timezone", "Asia/Kolkata")
}

// Load loads configuration from given file path (e.g. "config.yaml").
// If path is empty, it looks for "config.yaml" in the working directory; a
// missing file is fine, defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	var err error
	once.Do(func() {
		appConfig, err = read(path)
	})

	if err != nil {
		return nil, err
	}
	return appConfig, nil
}

func read(path string) (*Config, error) {
	// .env is optional, real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	// environment overrides, e.g. OBU_SERVER_PORT=9000
	v.SetEnvPrefix("OBU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Sync.PrivateKey = strings.ReplaceAll(c.Sync.PrivateKey, `\n`, "\n")
	return &c, nil
}

// Get returns the loaded global configuration.
// Call Load() once at application startup.
func Get() *Config {
	return appConfig
}
