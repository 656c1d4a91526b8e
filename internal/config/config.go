package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PLATE400"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "plate400.db"
	defaultLogLevel           = "info"
	defaultCookieName         = "app_session"
	defaultSessionIssuer      = "tauth"
	defaultMediaBucketURL     = "file:///var/lib/plate400/media?create_dir=true"
	defaultTimezone           = "Europe/Sarajevo"
	defaultChallengeTarget    = 400
	defaultChallengeLengthDay = 365
)

// AppConfig captures runtime configuration for the web server.
type AppConfig struct {
	HTTPAddress         string
	AllowedOrigins      []string
	TAuthSigningKey     string
	TAuthCookieName     string
	TAuthIssuer         string
	DatabasePath        string
	LogLevel            string
	MediaBucketURL      string
	Location            *time.Location
	ChallengeTarget     int
	ChallengeLengthDays int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("media.bucket_url", defaultMediaBucketURL)
	configViper.SetDefault("app.timezone", defaultTimezone)
	configViper.SetDefault("challenge.target", defaultChallengeTarget)
	configViper.SetDefault("challenge.length_days", defaultChallengeLengthDay)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	location, err := time.LoadLocation(strings.TrimSpace(configViper.GetString("app.timezone")))
	if err != nil {
		return AppConfig{}, fmt.Errorf("app.timezone is invalid: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		TAuthSigningKey:     configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:     configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:         configViper.GetString("tauth.issuer"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		MediaBucketURL:      configViper.GetString("media.bucket_url"),
		Location:            location,
		ChallengeTarget:     configViper.GetInt("challenge.target"),
		ChallengeLengthDays: configViper.GetInt("challenge.length_days"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if strings.TrimSpace(c.TAuthIssuer) == "" {
		return fmt.Errorf("tauth.issuer is required")
	}
	if strings.TrimSpace(c.MediaBucketURL) == "" {
		return fmt.Errorf("media.bucket_url is required")
	}
	if c.ChallengeTarget <= 0 {
		return fmt.Errorf("challenge.target must be positive")
	}
	if c.ChallengeLengthDays <= 0 {
		return fmt.Errorf("challenge.length_days must be positive")
	}
	return nil
}

// env values arrive as one comma-separated string
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
