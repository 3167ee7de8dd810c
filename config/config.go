package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type (
	Settings struct {
		Port      string   `env:"PORT" envDefault:"8080"`
		DBURL     string   `env:"DB_URL,notEmpty"`
		APIPrefix string   `env:"API_PREFIX" envDefault:"/api/v1"`
		GinMode   string   `env:"GIN_MODE" envDefault:"debug"`
		Origins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

		Auth     AuthSettings     `envPrefix:"JWT_"`
		Log      LogSettings      `envPrefix:"LOG_"`
		Images   ImageSettings    `envPrefix:"IMAGES_"`
		Minio    MinioSettings    `envPrefix:"MINIO_"`
		Redis    RedisSettings    `envPrefix:"REDIS_"`
		Database DatabaseSettings `envPrefix:"DB_"`
		Admin    AdminSettings    `envPrefix:"BOOTSTRAP_ADMIN_"`
	}

	AuthSettings struct {
		Secret     string        `env:"SECRET,notEmpty"`
		AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"30m"`
		RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	}

	LogSettings struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"text"`
	}

	ImageSettings struct {
		Dir       string `env:"DIR" envDefault:"uploads"`
		URLPrefix string `env:"URL_PREFIX" envDefault:"/uploads"`
		MaxBytes  int64  `env:"MAX_BYTES" envDefault:"10485760"`
		Workers   int    `env:"WORKERS" envDefault:"4"`
		FFmpeg    string `env:"FFMPEG" envDefault:"ffmpeg"`
		Backend   string `env:"BACKEND" envDefault:"local"` // local | minio
	}

	MinioSettings struct {
		Endpoint  string `env:"ENDPOINT"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"costumes"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	}

	// Addr empty means refresh tokens cannot be revoked and logout is stateless.
	RedisSettings struct {
		Addr     string `env:"ADDR"`
		Password string `env:"PASSWORD"`
		DB       int    `env:"DB" envDefault:"0"`
	}

	// Email empty means no account is bootstrapped at startup.
	AdminSettings struct {
		Email    string `env:"EMAIL"`
		Username string `env:"USERNAME" envDefault:"admin"`
		Password string `env:"PASSWORD"`
	}

	DatabaseSettings struct {
		MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"20"`
		MaxIdleConns int `env:"MAX_IDLE_CONNS" envDefault:"5"`
	}
)

// LoadEnv reads .env (when present) and the process environment into Settings.
func LoadEnv() (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch s.Images.Backend {
	case "local":
	case "minio":
		if s.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when IMAGES_BACKEND=minio")
		}
	default:
		return fmt.Errorf("unknown IMAGES_BACKEND %q", s.Images.Backend)
	}
	if s.Admin.Email != "" && s.Admin.Password == "" {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")
	}
	if s.Images.Workers < 1 {
		s.Images.Workers = 1
	}
	if s.Images.MaxBytes <= 0 {
		return fmt.Errorf("IMAGES_MAX_BYTES must be positive")
	}
	return nil
}
