package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppHost string        `mapstructure:"host"`
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Storage StorageConfig `mapstructure:"storage"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Log     LogConfig     `mapstructure:"log"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Users   []UserSeed    `mapstructure:"users" validate:"dive"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
	Source string `mapstructure:"source" validate:"required_if=Driver postgres"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" validate:"required,min=16"`
	TTL    time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

type StorageConfig struct {
	Driver string   `mapstructure:"driver" validate:"oneof=local s3"`
	Path   string   `mapstructure:"path" validate:"required_if=Driver local"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type LimitsConfig struct {
	MaxInlineContentBytes int   `mapstructure:"max_inline_content_bytes" validate:"gt=0"`
	MaxUploadBytes        int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// UserSeed provisions an account at startup. PasswordHash is a bcrypt hash.
type UserSeed struct {
	Username     string `mapstructure:"username" validate:"required"`
	PasswordHash string `mapstructure:"password_hash" validate:"required"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "http://localhost:8080")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.source", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.path", "./data/blobs")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.key_prefix", "")
	v.SetDefault("limits.max_inline_content_bytes", 10240)
	v.SetDefault("limits.max_upload_bytes", int64(1<<30))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load reads configs/settings.yml (or /configs/settings.yml), an optional .env file and
// the environment, where DB_SOURCE overrides db.source.
func Load() (*Config, error) {
	return LoadFrom("./configs", "/configs")
}

func LoadFrom(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("settings")
	v.SetConfigType("yml")
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Driver == "s3" && (c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "") {
		return errors.New("invalid configuration: storage.s3.bucket and storage.s3.region are required for the s3 driver")
	}
	return nil
}
