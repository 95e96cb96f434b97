package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/tasklane/tasklane/internal/model"
)

// ServerConfig holds configuration variables for the server.
type ServerConfig struct {
	Scheme string
	Host   string
	Port   string

	// For https. A self-signed pair is generated when missing.
	TLSCert string
	TLSKey  string
}

// URL returns the main gateway URL for the server.
func (s *ServerConfig) URL() string {
	host := s.Host
	includePort := func() bool {
		if s.Port == "" {
			return false
		}
		if s.Scheme == "http" {
			return s.Port != "80"
		}
		// s.Scheme == "https"
		return s.Port != "443"
	}()
	if includePort {
		host = fmt.Sprintf("%s:%s", host, s.Port)
	}
	uri := url.URL{
		Scheme: s.Scheme,
		Host:   host,
	}
	return uri.String()
}

// DatabaseConfig holds configuration variables for the database.
type DatabaseConfig struct {
	Type model.DatabaseType

	// For PostgreSQL
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration

	// For embedded DB
	Dir string // Path to store data in
}

// AuthConfig holds settings for session tokens and credentials.
type AuthConfig struct {
	JWTSecret      string
	TokenLife      time.Duration
	ResetTokenLife time.Duration
	BcryptCost     int
}

// OAuthConfig holds settings for the external OAuth provider. Login via
// OAuth is disabled when ClientID is empty.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	FrontendURL  string
}

// Enabled reports whether an OAuth provider is configured.
func (c *OAuthConfig) Enabled() bool {
	return c.ClientID != ""
}

// CORSConfig holds the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string
}

// LimiterConfig holds settings for per-client rate limiting.
type LimiterConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Config holds configuration information for the program.
type Config struct {
	Server   *ServerConfig
	Database *DatabaseConfig
	Auth     *AuthConfig
	OAuth    *OAuthConfig
	CORS     *CORSConfig
	Limiter  *LimiterConfig
	Remain   map[string]interface{} `mapstructure:",remain"`
}

var (
	// Current is the current configuration for the server.
	Current Config

	configPath string
)

const secretFileName = "secret.key"

func setConfigDefaults() {
	viper.SetDefault("server", map[string]interface{}{
		"scheme":  "http",
		"host":    "localhost",
		"port":    "8000",
		"tlsCert": "",
		"tlsKey":  "",
	})

	viper.SetDefault("database", map[string]interface{}{
		"type":         string(model.DatabaseTypeBadger),
		"url":          "",
		"maxOpenConns": 25,
		"maxIdleConns": 25,
		"maxIdleTime":  "15m",
	})

	viper.SetDefault("auth", map[string]interface{}{
		"jwtSecret":      "",
		"tokenLife":      "24h",
		"resetTokenLife": "10m",
		"bcryptCost":     10,
	})

	viper.SetDefault("oauth", map[string]interface{}{
		"clientID":     "",
		"clientSecret": "",
		"redirectURL":  "http://localhost:8000/auth/oauth/callback",
		"authURL":      "https://accounts.google.com/o/oauth2/auth",
		"tokenURL":     "https://oauth2.googleapis.com/token",
		"userInfoURL":  "https://openidconnect.googleapis.com/v1/userinfo",
		"scopes":       []string{"openid", "profile", "email"},
		"frontendURL":  "http://localhost:3000",
	})

	viper.SetDefault("cors.allowedOrigins", []string{"*"})

	viper.SetDefault("limiter", map[string]interface{}{
		"enabled": true,
		"rps":     2,
		"burst":   4,
	})
}

// LoadConfig loads the config file from disk.
func LoadConfig() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	viper.AddConfigPath("/etc/tasklane/")
	viper.AddConfigPath("$HOME/.tasklane")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setConfigDefaults()

	viper.SetEnvPrefix("tasklane")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No configuration found. Running with defaults...")
			configPath, err = getConfigurationDirectory()
			if err != nil {
				panic(err)
			}
		} else {
			panic(fmt.Errorf("Unable to read config file: %v", err))
		}
	} else {
		configPath = filepath.Dir(viper.ConfigFileUsed())
	}

	err = viper.Unmarshal(&Current, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		panic(fmt.Errorf("Error unmarshalling config: %v", err))
	}

	if !Current.Database.Type.IsValid() {
		panic(fmt.Errorf("Unsupported database type: %q", Current.Database.Type))
	}

	// Set paths with known configPath
	if Current.Database.Dir == "" {
		Current.Database.Dir = filepath.Join(configPath, "data")
	}

	if Current.Server.Scheme == "https" {
		if Current.Server.TLSCert == "" {
			Current.Server.TLSCert = filepath.Join(configPath, "tls", "cert.pem")
		}
		if Current.Server.TLSKey == "" {
			Current.Server.TLSKey = filepath.Join(configPath, "tls", "key.pem")
		}
	}

	if Current.Auth.JWTSecret == "" {
		secretFile := filepath.Join(configPath, secretFileName)
		if _, err := os.Stat(secretFile); os.IsNotExist(err) {
			generateSecret()
			saveSecret(secretFile)
		} else {
			loadSecret(secretFile)
		}
	}
}

func getConfigurationDirectory() (string, error) {
	var configDir string

	// Prefer /etc
	configDir = "/etc/tasklane"
	if _, err := os.Stat(configDir); err == nil {
		return configDir, nil
	} else if os.IsNotExist(err) {
		// Try to create /etc/tasklane
		// For non-sudo users, this is not possible
		if err := os.Mkdir(configDir, 0770); err == nil {
			return configDir, nil
		}
	} else {
		return "", err
	}

	// Check home directory
	home, err := homedir.Dir()
	if err != nil {
		log.Fatalf("Could not retrieve home directory: %v", err)
	}
	configDir = filepath.Join(home, ".tasklane")
	if _, err := os.Stat(configDir); err == nil {
		return configDir, nil
	} else if os.IsNotExist(err) {
		if err := os.Mkdir(configDir, 0700); err == nil {
			return configDir, nil
		}
	} else {
		return "", err
	}

	return "", errors.New("could not locate viable storage dir")
}

// generateSecret creates a random HMAC key for signing session tokens.
func generateSecret() {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	Current.Auth.JWTSecret = hex.EncodeToString(b)
}

func saveSecret(filename string) {
	err := ioutil.WriteFile(filename, []byte(Current.Auth.JWTSecret), 0600)
	if err != nil {
		panic(fmt.Errorf("Error writing secret file: %v", err))
	}
}

func loadSecret(filename string) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		panic(fmt.Errorf("Error reading secret file: %v", err))
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		panic(fmt.Errorf("Secret file %s is empty", filename))
	}
	Current.Auth.JWTSecret = secret
}
