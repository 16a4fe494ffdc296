package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variable names
const (
	EnvAddr          = "IOTVIEW_ADDR"
	EnvDB            = "IOTVIEW_DB"
	EnvJWTSecret     = "IOTVIEW_JWT_SECRET"
	EnvJWTExpiration = "IOTVIEW_JWT_EXPIRATION"
	EnvNoAuth        = "IOTVIEW_NO_AUTH"
	EnvHistorySize   = "IOTVIEW_HISTORY_SIZE"
	// Operator accounts
	EnvAdminPassword  = "IOTVIEW_ADMIN_PASSWORD"
	EnvViewerPassword = "IOTVIEW_VIEWER_PASSWORD"
	// MQTT settings
	EnvMQTTBroker   = "IOTVIEW_MQTT_BROKER"
	EnvMQTTClientID = "IOTVIEW_MQTT_CLIENT_ID"
	EnvMQTTUsername = "IOTVIEW_MQTT_USERNAME"
	EnvMQTTPassword = "IOTVIEW_MQTT_PASSWORD"
)

// Default values
const (
	DefaultAddr          = ":5000"
	DefaultDB            = "iotview.db"
	DefaultJWTExpiration = 24 * time.Hour
	DefaultNoAuth        = false
	DefaultHistorySize   = 50
	// MQTT defaults
	DefaultMQTTBroker   = "tcp://broker.emqx.io:1883"
	DefaultMQTTClientID = ""
	DefaultMQTTUsername = ""
	DefaultMQTTPassword = ""
)

// Config holds all application configuration.
// All access should be through getter methods for thread safety.
type Config struct {
	mu       sync.RWMutex
	filePath string
	dirty    bool // tracks if config was modified

	// Server settings
	addr string

	// Registry database
	dbPath string

	// Security settings
	jwtSecret      string
	jwtExpiration  time.Duration
	noAuth         bool
	adminPassword  string
	viewerPassword string

	// Dashboard settings
	historySize int

	// MQTT settings
	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPassword string
}

// Load loads configuration from .env file or creates it with defaults.
// Values from the process environment override file values.
func Load(filePath string) (*Config, error) {
	cfg := &Config{
		filePath: filePath,
	}

	// Set defaults first
	cfg.setDefaults()

	// Try to load existing file
	if err := cfg.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		// File doesn't exist - will be created with defaults
		cfg.dirty = true
	}

	// Environment variables override file values
	cfg.applyValues(envValues())

	// Generate JWT secret if empty
	if cfg.jwtSecret == "" {
		secret, err := generateSecureSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.jwtSecret = secret
		cfg.dirty = true
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Save if config was modified (new file or generated secret)
	if cfg.dirty {
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}

	return cfg, nil
}

// setDefaults initializes all fields with default values.
func (c *Config) setDefaults() {
	c.addr = DefaultAddr
	c.dbPath = DefaultDB
	c.jwtSecret = ""
	c.jwtExpiration = DefaultJWTExpiration
	c.noAuth = DefaultNoAuth
	c.historySize = DefaultHistorySize
	c.adminPassword = ""
	c.viewerPassword = ""
	// MQTT defaults
	c.mqttBroker = DefaultMQTTBroker
	c.mqttClientID = DefaultMQTTClientID
	c.mqttUsername = DefaultMQTTUsername
	c.mqttPassword = DefaultMQTTPassword
}

// loadFromFile reads configuration from .env file.
func (c *Config) loadFromFile() error {
	file, err := os.Open(c.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	values, err := ParseEnvFile(file)
	if err != nil {
		return err
	}

	c.applyValues(values)
	return nil
}

// envValues collects overrides from the process environment.
func envValues() map[string]string {
	keys := []string{
		EnvAddr, EnvDB, EnvJWTSecret, EnvJWTExpiration, EnvNoAuth,
		EnvHistorySize, EnvAdminPassword, EnvViewerPassword,
		EnvMQTTBroker, EnvMQTTClientID, EnvMQTTUsername, EnvMQTTPassword,
	}
	values := make(map[string]string)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			values[k] = v
		}
	}
	return values
}

// applyValues applies parsed key-value pairs to config.
func (c *Config) applyValues(values map[string]string) {
	if v, ok := values[EnvAddr]; ok && v != "" {
		c.addr = v
	}

	if v, ok := values[EnvDB]; ok && v != "" {
		c.dbPath = v
	}

	if v, ok := values[EnvJWTSecret]; ok && v != "" {
		c.jwtSecret = v
	}

	if v, ok := values[EnvJWTExpiration]; ok && v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			c.jwtExpiration = time.Duration(seconds) * time.Second
		}
	}

	if v, ok := values[EnvNoAuth]; ok {
		c.noAuth = parseBool(v)
	}

	if v, ok := values[EnvHistorySize]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.historySize = n
		}
	}

	if v, ok := values[EnvAdminPassword]; ok {
		c.adminPassword = v
	}
	if v, ok := values[EnvViewerPassword]; ok {
		c.viewerPassword = v
	}

	// MQTT settings
	if v, ok := values[EnvMQTTBroker]; ok && v != "" {
		c.mqttBroker = v
	}
	if v, ok := values[EnvMQTTClientID]; ok {
		c.mqttClientID = v
	}
	if v, ok := values[EnvMQTTUsername]; ok {
		c.mqttUsername = v
	}
	if v, ok := values[EnvMQTTPassword]; ok {
		c.mqttPassword = v
	}
}

// validate checks if configuration is valid.
func (c *Config) validate() error {
	// Validate server address
	if c.addr == "" {
		return errors.New("server address cannot be empty")
	}

	// Check if address format is valid
	host, port, err := net.SplitHostPort(c.addr)
	if err != nil {
		// Try with default host
		if _, err := strconv.Atoi(strings.TrimPrefix(c.addr, ":")); err != nil {
			return fmt.Errorf("invalid server address format: %s", c.addr)
		}
	} else {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		portNum, err := strconv.Atoi(port)
		if err != nil || portNum < 1 || portNum > 65535 {
			return fmt.Errorf("invalid port number: %s", port)
		}
		_ = host // host can be empty (bind to all interfaces)
	}

	// Validate broker URL scheme
	if c.mqttBroker == "" {
		return errors.New("MQTT broker address cannot be empty")
	}
	if !strings.Contains(c.mqttBroker, "://") {
		return fmt.Errorf("MQTT broker address must include a scheme (e.g. tcp://): %s", c.mqttBroker)
	}

	// Validate JWT expiration
	if c.jwtExpiration < time.Minute {
		return errors.New("JWT expiration must be at least 1 minute")
	}
	if c.jwtExpiration > 365*24*time.Hour {
		return errors.New("JWT expiration cannot exceed 1 year")
	}

	if c.historySize < 1 {
		return errors.New("history size must be at least 1")
	}

	return nil
}

// Save writes current configuration to .env file.
func (c *Config) Save() error {
	c.mu.RLock()
	values := c.toMap()
	filePath := c.filePath
	c.mu.RUnlock()

	if err := WriteEnvFile(filePath, values); err != nil {
		return err
	}

	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()

	return nil
}

// toMap converts config to key-value map for saving.
func (c *Config) toMap() map[string]string {
	return map[string]string{
		EnvAddr:           c.addr,
		EnvDB:             c.dbPath,
		EnvJWTSecret:      c.jwtSecret,
		EnvJWTExpiration:  strconv.Itoa(int(c.jwtExpiration.Seconds())),
		EnvNoAuth:         strconv.FormatBool(c.noAuth),
		EnvHistorySize:    strconv.Itoa(c.historySize),
		EnvAdminPassword:  c.adminPassword,
		EnvViewerPassword: c.viewerPassword,
		// MQTT settings
		EnvMQTTBroker:   c.mqttBroker,
		EnvMQTTClientID: c.mqttClientID,
		EnvMQTTUsername: c.mqttUsername,
		EnvMQTTPassword: c.mqttPassword,
	}
}

// Getters (thread-safe)

// Addr returns the server address.
func (c *Config) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.addr
}

// DBPath returns the path to the registry database file.
func (c *Config) DBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbPath
}

// JWTSecret returns the JWT secret key.
func (c *Config) JWTSecret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwtSecret
}

// JWTExpiration returns the JWT token expiration duration.
func (c *Config) JWTExpiration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwtExpiration
}

// NoAuth returns whether authentication is disabled.
func (c *Config) NoAuth() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.noAuth
}

// HistorySize returns the command history capacity.
func (c *Config) HistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historySize
}

// AdminPassword returns the admin account password (empty disables the account).
func (c *Config) AdminPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adminPassword
}

// ViewerPassword returns the viewer account password (empty disables the account).
func (c *Config) ViewerPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewerPassword
}

// FilePath returns the path to the .env file.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// MQTT Getters

// MQTTBroker returns the MQTT broker address.
func (c *Config) MQTTBroker() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttBroker
}

// MQTTClientID returns the MQTT client ID.
func (c *Config) MQTTClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttClientID
}

// MQTTUsername returns the MQTT username.
func (c *Config) MQTTUsername() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttUsername
}

// MQTTPassword returns the MQTT password.
func (c *Config) MQTTPassword() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mqttPassword
}

// Setters (thread-safe, auto-save)

// SetAddr sets the server address and saves to file. An invalid value
// is rejected without touching the stored configuration.
func (c *Config) SetAddr(addr string) error {
	c.mu.Lock()
	old := c.addr
	c.addr = addr
	if err := c.validate(); err != nil {
		c.addr = old
		c.mu.Unlock()
		return err
	}
	c.dirty = true
	c.mu.Unlock()

	return c.Save()
}

// SetMQTTBroker sets the broker address and saves to file.
func (c *Config) SetMQTTBroker(broker string) error {
	c.mu.Lock()
	old := c.mqttBroker
	c.mqttBroker = broker
	if err := c.validate(); err != nil {
		c.mqttBroker = old
		c.mu.Unlock()
		return err
	}
	c.dirty = true
	c.mu.Unlock()

	return c.Save()
}

// SetNoAuth sets the no-auth flag and saves to file.
func (c *Config) SetNoAuth(noAuth bool) error {
	c.mu.Lock()
	c.noAuth = noAuth
	c.dirty = true
	c.mu.Unlock()

	return c.Save()
}

// Helper functions

// generateSecureSecret generates a cryptographically secure random hex string.
func generateSecureSecret(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// parseBool parses a boolean string value.
// Accepts: true, false, 1, 0, yes, no (case-insensitive)
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// String returns a string representation of the config (without secrets).
func (c *Config) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	secretDisplay := "[not set]"
	if c.jwtSecret != "" {
		secretDisplay = "[set]"
	}

	return fmt.Sprintf(
		"Config{Addr: %q, DB: %q, Broker: %q, JWTSecret: %s, NoAuth: %v, HistorySize: %d}",
		c.addr, c.dbPath, c.mqttBroker, secretDisplay, c.noAuth, c.historySize,
	)
}
