package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cookie security modes
const (
	CookieSecureAuto   = "auto"
	CookieSecureAlways = "always"
	CookieSecureNever  = "never"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		CookieSecure              string
		JWTExpirationDelta        time.Duration
		PasswordResetTimeoutDelta time.Duration
		ShutdownTimeout           time.Duration
	}

	DatabaseConfig struct {
		URL        string
		Engine     string
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	RedisConfig struct {
		URL string
	}

	StorageConfig struct {
		Bucket          string
		CredentialsFile string
		SignedURLExpiry time.Duration
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		FrontendBaseURL  string
		DepartmentMarker string
		SendgridAPIKey   string
		RollbarToken     string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Storage  StorageConfig

		defaultFromEmail string
	}
)

// NewConfig loads the configuration of the current environment (DEV (default), TEST, QA, PROD)
// from the process environment, optionally seeded by `config/.env.<env>`.
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(conf, env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("app_name"),
		Env:              env,
		Build:            conf.GetString("build"),
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("test_mode"),
		SecretKey:        conf.GetString("secret_key"),
		FrontendBaseURL:  conf.GetString("frontend_base_url"),
		DepartmentMarker: conf.GetString("department_marker"),
		SendgridAPIKey:   conf.GetString("sendgrid_api_key"),
		RollbarToken:     conf.GetString("rollbar_token"),
		Server: ServerConfig{
			Address:                   conf.GetString("server.address"),
			Host:                      conf.GetString("server.host"),
			DebugHost:                 conf.GetString("server.debug_host"),
			CookieSecure:              conf.GetString("server.cookie_secure"),
			JWTExpirationDelta:        conf.GetDuration("server.jwt_expiration_delta"),
			PasswordResetTimeoutDelta: conf.GetDuration("server.password_reset_timeout_delta"),
			ShutdownTimeout:           conf.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			URL:        conf.GetString("database.url"),
			Engine:     conf.GetString("database.engine"),
			Host:       conf.GetString("database.host"),
			Port:       conf.GetInt("database.port"),
			Name:       conf.GetString("database.name"),
			User:       conf.GetString("database.user"),
			Password:   conf.GetString("database.password"),
			DisableTLS: conf.GetBool("database.disable_tls"),
		},
		Redis: RedisConfig{
			URL: conf.GetString("redis.url"),
		},
		Storage: StorageConfig{
			Bucket:          conf.GetString("storage.bucket"),
			CredentialsFile: conf.GetString("storage.credentials_file"),
			SignedURLExpiry: conf.GetDuration("storage.signed_url_expiry"),
		},
		defaultFromEmail: conf.GetString("default_from_email"),
	}
}

func setDefaults(conf *viper.Viper, env string) {
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("app_name", "Jumuiya")
	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", env == "DEV" || env == "TEST")
	conf.SetDefault("test_mode", env == "TEST")
	conf.SetDefault("secret_key", "k1x!4z#+s9m@vq$2(dw&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("frontend_base_url", "http://localhost:3000")
	conf.SetDefault("default_from_email", "Jumuiya <noreply@localhost>")
	conf.SetDefault("department_marker", "soc")
	conf.SetDefault("sendgrid_api_key", "")
	conf.SetDefault("rollbar_token", "")

	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.debug_host", ":4000")
	conf.SetDefault("server.cookie_secure", CookieSecureAuto)
	conf.SetDefault("server.jwt_expiration_delta", 7*24*time.Hour)
	conf.SetDefault("server.password_reset_timeout_delta", 3*24*time.Hour)
	conf.SetDefault("server.shutdown_timeout", 5*time.Second)

	conf.SetDefault("database.url", "")
	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "jumuiya")
	conf.SetDefault("database.user", "postgres")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.disable_tls", env == "DEV" || env == "TEST")

	conf.SetDefault("redis.url", "")

	conf.SetDefault("storage.bucket", "")
	conf.SetDefault("storage.credentials_file", "")
	conf.SetDefault("storage.signed_url_expiry", 15*time.Minute)
}

// NewTestConfig returns a Config usable in tests, independent of the process environment.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Jumuiya",
		Env:              "TEST",
		Build:            "test",
		Debug:            false,
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DepartmentMarker: "soc",
		Server: ServerConfig{
			Address:                   ":0",
			Host:                      "localhost",
			CookieSecure:              CookieSecureAuto,
			JWTExpirationDelta:        7 * 24 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Storage: StorageConfig{
			SignedURLExpiry: 15 * time.Minute,
		},
		defaultFromEmail: "Jumuiya <noreply@localhost>",
	}
}

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

// Address returns the database host:port pair.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
