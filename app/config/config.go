package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"OrderDesk/app/security"

	"github.com/joho/godotenv"
)

const configFileName = "config.json"

// AppConfig holds all application configuration
type AppConfig struct {
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Print    PrintConfig    `json:"print"`
	Events   EventsConfig   `json:"events"`
	Session  SessionConfig  `json:"session"`
	Admin    AdminConfig    `json:"admin"`
	Log      LogConfig      `json:"log"`
	Business BusinessConfig `json:"business"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver   string `json:"driver"` // "postgres" or "sqlite"
	URL      string `json:"url"`    // full DSN, wins over the individual fields
	Path     string `json:"path"`   // sqlite file
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// ServerConfig holds the order API / websocket listener settings
type ServerConfig struct {
	Addr       string `json:"addr"`
	EnableMDNS bool   `json:"enable_mdns"`
}

// PrintConfig holds kitchen ticket printing settings
type PrintConfig struct {
	Enabled        bool   `json:"enabled"`         // print KOTs from the order server itself
	AutoKOT        bool   `json:"auto_kot"`        // print when an order is accepted
	SoftFail       bool   `json:"soft_fail"`       // treat printer errors as success
	ServiceAddr    string `json:"service_addr"`    // print-service listener
	KitchenPrinter string `json:"kitchen_printer"` // printer name, empty for system default
	AdminPrinter   string `json:"admin_printer"`
	JobDelayMs     int    `json:"job_delay_ms"`
	PaperWidth     int    `json:"paper_width"`
}

// JobDelay is the pause between two print jobs
func (p PrintConfig) JobDelay() time.Duration {
	return time.Duration(p.JobDelayMs) * time.Millisecond
}

// EventsConfig holds the AMQP event fan-out settings. Empty URL disables it.
type EventsConfig struct {
	AMQPURL  string `json:"amqp_url"`
	Exchange string `json:"exchange"`
}

// SessionConfig holds customer visit settings
type SessionConfig struct {
	IdleTimeoutMinutes int `json:"idle_timeout_minutes"`
}

func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// AdminConfig protects admin endpoints with a PIN. Empty hash disables the check.
type AdminConfig struct {
	PINHash string `json:"pin_hash"`
}

// LogConfig holds log file settings
type LogConfig struct {
	Dir        string `json:"dir"`
	DaysToKeep int    `json:"days_to_keep"`
}

// BusinessConfig holds restaurant information printed on tickets
type BusinessConfig struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// Location resolves the business timezone, falling back to the host's
func (b BusinessConfig) Location() *time.Location {
	if b.Timezone == "" || b.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		log.Printf("Config: unknown timezone %q, using local time: %v", b.Timezone, err)
		return time.Local
	}
	return loc
}

// HomeDir returns the directory holding config.json, the key file and logs
func HomeDir() (string, error) {
	if dir := os.Getenv("ORDERDESK_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".orderdesk"), nil
}

// Default returns the configuration used when no config file exists
func Default(home string) *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     filepath.Join(home, "orderdesk.db"),
			Host:     "localhost",
			Port:     5432,
			Database: "orderdesk",
			Username: "postgres",
			SSLMode:  "disable",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			EnableMDNS: false,
		},
		Print: PrintConfig{
			Enabled:     false,
			AutoKOT:     true,
			SoftFail:    true,
			ServiceAddr: ":6001",
			JobDelayMs:  2000,
			PaperWidth:  80,
		},
		Events: EventsConfig{
			Exchange: "orderdesk.events",
		},
		Session: SessionConfig{
			IdleTimeoutMinutes: 180,
		},
		Log: LogConfig{
			Dir:        filepath.Join(home, "logs"),
			DaysToKeep: 30,
		},
		Business: BusinessConfig{
			Name:     "RESTAURANT",
			Timezone: "Local",
		},
	}
}

// Load reads .env and config.json from home, then applies environment overrides.
// A missing config file yields the defaults.
func Load(home string) (*AppConfig, error) {
	// .env in the working directory, like the desktop build used
	loadDotEnv(filepath.Join(home, ".env"), ".env")

	cfg, err := LoadFile(home)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads config.json from home without environment overrides. Use it
// when the result is written back with Save.
func LoadFile(home string) (*AppConfig, error) {
	cfg := Default(home)
	path := filepath.Join(home, configFileName)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Printf("Config: %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("could not read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config file: %w", err)
		}
		cfg.decryptSensitiveFields(security.NewVault(home))
	}
	return cfg, nil
}

// loadDotEnv loads each file into the environment. Missing files are skipped,
// unreadable or malformed ones are logged.
func loadDotEnv(paths ...string) {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Config: could not load %s: %v", path, err)
		}
	}
}

// Save writes the configuration to home with secrets encrypted
func Save(home string, cfg *AppConfig) error {
	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	// Encrypt a copy so the caller keeps plaintext values
	cfgCopy := *cfg
	if err := cfgCopy.encryptSensitiveFields(security.NewVault(home)); err != nil {
		return fmt.Errorf("could not encrypt sensitive fields: %w", err)
	}

	data, err := json.MarshalIndent(&cfgCopy, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(home, configFileName), data, 0600); err != nil {
		return fmt.Errorf("could not write config file: %w", err)
	}
	return nil
}

func (cfg *AppConfig) encryptSensitiveFields(v *security.Vault) error {
	var err error
	if cfg.Database.Password != "" {
		cfg.Database.Password, err = v.Encrypt(cfg.Database.Password)
		if err != nil {
			return fmt.Errorf("could not encrypt database password: %w", err)
		}
	}
	if cfg.Database.URL != "" {
		cfg.Database.URL, err = v.Encrypt(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("could not encrypt database url: %w", err)
		}
	}
	if cfg.Events.AMQPURL != "" {
		cfg.Events.AMQPURL, err = v.Encrypt(cfg.Events.AMQPURL)
		if err != nil {
			return fmt.Errorf("could not encrypt amqp url: %w", err)
		}
	}
	return nil
}

// Plain-text values are left as-is so hand-edited files keep working
func (cfg *AppConfig) decryptSensitiveFields(v *security.Vault) {
	cfg.Database.Password = v.DecryptOrPlain(cfg.Database.Password)
	cfg.Database.URL = v.DecryptOrPlain(cfg.Database.URL)
	cfg.Events.AMQPURL = v.DecryptOrPlain(cfg.Events.AMQPURL)
}

// applyEnv overrides file values with environment variables
func (cfg *AppConfig) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				log.Printf("Config: ignoring %s=%q: %v", key, v, err)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				log.Printf("Config: ignoring %s=%q: %v", key, v, err)
				return
			}
			*dst = b
		}
	}

	setString("DB_DRIVER", &cfg.Database.Driver)
	setString("DATABASE_URL", &cfg.Database.URL)
	setString("DB_PATH", &cfg.Database.Path)
	setString("DB_HOST", &cfg.Database.Host)
	setInt("DB_PORT", &cfg.Database.Port)
	setString("DB_NAME", &cfg.Database.Database)
	setString("DB_USER", &cfg.Database.Username)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_SSLMODE", &cfg.Database.SSLMode)
	if cfg.Database.URL != "" && os.Getenv("DB_DRIVER") == "" {
		cfg.Database.Driver = "postgres"
	}

	setString("HTTP_ADDR", &cfg.Server.Addr)
	setBool("ENABLE_MDNS", &cfg.Server.EnableMDNS)

	setBool("PRINT_ENABLED", &cfg.Print.Enabled)
	setString("PRINT_SERVICE_ADDR", &cfg.Print.ServiceAddr)
	setString("KITCHEN_PRINTER", &cfg.Print.KitchenPrinter)
	setString("ADMIN_PRINTER", &cfg.Print.AdminPrinter)
	setInt("PRINT_JOB_DELAY_MS", &cfg.Print.JobDelayMs)

	setString("AMQP_URL", &cfg.Events.AMQPURL)
	setString("AMQP_EXCHANGE", &cfg.Events.Exchange)

	setInt("SESSION_IDLE_MINUTES", &cfg.Session.IdleTimeoutMinutes)
	setString("ADMIN_PIN_HASH", &cfg.Admin.PINHash)
	setString("LOG_DIR", &cfg.Log.Dir)
	setString("TZ_LOCATION", &cfg.Business.Timezone)
	setString("RESTAURANT_NAME", &cfg.Business.Name)
}
