package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database engines
const (
	DBEnginePostgres = "postgres"
	DBEngineInMem    = "inmem"
)

type (
	serverConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	dbConfig struct {
		Engine        string // DBEnginePostgres | DBEngineInMem
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	editorConfig struct {
		HistoryLimit  int
		PublicBaseURL string
	}

	aiConfig struct {
		Endpoint  string
		APIKey    string
		Timeout   time.Duration
		RateLimit float64 // requests per second
		RateBurst int
	}

	Config struct {
		Env             string // DEV (default) | TEST | QA | PROD
		Debug           bool
		TestMode        bool
		Build           string
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		WorkDir         string
		RollbarToken    string
		SendgridApiKey  string
		defaultFromMail string
		PresenceEnabled bool

		PasswordResetTimeoutDelta time.Duration

		Server   serverConfig
		Database dbConfig
		Editor   editorConfig
		AI       aiConfig
	}
)

func (c dbConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromMail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// NewConfig loads the app config from defaults, `config/.env.<env>` (if any) and the environment.
// Environment variables are prefixed with the env name: `DEV_SECRET_KEY`, `PROD_DB_HOST`, ...
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("app_name", "Ripoti")
	v.SetDefault("secret_key", "xq2!-4b@un0w7^l$wz3gq(8vy#p*a5e=m6t+kcz1h!d0r%fj")
	v.SetDefault("frontend_base_url", "http://localhost:3000")
	v.SetDefault("default_from_email", "Ripoti <noreply@localhost>")
	v.SetDefault("presence_enabled", true)
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_host", "0.0.0.0:8000")
	v.SetDefault("server_debug_host", "0.0.0.0:4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)

	v.SetDefault("db_engine", DBEnginePostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "ripoti")
	v.SetDefault("db_user", "ripoti")
	v.SetDefault("db_password", "ripoti")
	v.SetDefault("db_admin_user", "postgres")
	v.SetDefault("db_admin_password", "postgres")
	v.SetDefault("db_disable_tls", true)

	v.SetDefault("editor_history_limit", 100)
	v.SetDefault("editor_public_base_url", "http://localhost:3000")

	v.SetDefault("ai_endpoint", "")
	v.SetDefault("ai_api_key", "")
	v.SetDefault("ai_timeout", 30*time.Second)
	v.SetDefault("ai_rate_limit", 1.0)
	v.SetDefault("ai_rate_burst", 3)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test_mode"),
		Build:           v.GetString("build"),
		AppName:         v.GetString("app_name"),
		SecretKey:       v.GetString("secret_key"),
		FrontendBaseURL: strings.TrimSuffix(v.GetString("frontend_base_url"), "/"),
		WorkDir:         wd,
		RollbarToken:    v.GetString("rollbar_token"),
		SendgridApiKey:  v.GetString("sendgrid_api_key"),
		defaultFromMail: v.GetString("default_from_email"),
		PresenceEnabled: v.GetBool("presence_enabled"),

		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),

		Server: serverConfig{
			Host:                      v.GetString("server_host"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
		},
		Database: dbConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_admin_user"),
			AdminPassword: v.GetString("db_admin_password"),
			DisableTLS:    v.GetBool("db_disable_tls"),
		},
		Editor: editorConfig{
			HistoryLimit:  v.GetInt("editor_history_limit"),
			PublicBaseURL: strings.TrimSuffix(v.GetString("editor_public_base_url"), "/"),
		},
		AI: aiConfig{
			Endpoint:  v.GetString("ai_endpoint"),
			APIKey:    v.GetString("ai_api_key"),
			Timeout:   v.GetDuration("ai_timeout"),
			RateLimit: v.GetFloat64("ai_rate_limit"),
			RateBurst: v.GetInt("ai_rate_burst"),
		},
	}
}

// NewTestConfig returns a config suited for unit tests, without touching the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:             "TEST",
		TestMode:        true,
		Build:           "test",
		AppName:         "Ripoti",
		SecretKey:       "test-secret-key",
		FrontendBaseURL: "http://localhost:3000",
		defaultFromMail: "Ripoti <noreply@localhost>",
		PresenceEnabled: true,

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Server: serverConfig{
			Host:                      "localhost:8000",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: dbConfig{Engine: DBEngineInMem},
		Editor: editorConfig{
			HistoryLimit:  100,
			PublicBaseURL: "http://localhost:3000",
		},
		AI: aiConfig{
			Timeout:   time.Second,
			RateLimit: 100,
			RateBurst: 100,
		},
	}
}
