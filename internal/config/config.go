// Package config loads the server configuration: built-in defaults, then an optional TOML
// file, then a .env file and the process environment. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tansive/minima-mcp/internal/store"
)

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// DefaultConfigFile is read from the working directory when no file is named. Its absence
// is not an error.
const DefaultConfigFile = "minima-mcp.toml"

const DefaultPackageLimit int64 = 100 << 20

// NodeConfig describes the Minima node and how to reach its MDS interface.
type NodeConfig struct {
	Host         string `toml:"host" validate:"required"`
	Port         int    `toml:"port" validate:"min=1,max=65535"`
	Password     string `toml:"password"`
	UseHTTP      bool   `toml:"use_http"`
	VerifyTLS    bool   `toml:"verify_tls"`
	Timeout      string `toml:"timeout" validate:"duration"`
	Retries      int    `toml:"retries" validate:"min=-1,max=10"` // -1 disables retries
	RetryBackoff string `toml:"retry_backoff" validate:"duration"`
	AutoConfirm  bool   `toml:"auto_confirm"` // confirm pending commands on the caller's behalf
}

// MCPConfig holds the MCP transport settings.
type MCPConfig struct {
	Transport      string   `toml:"transport" validate:"oneof=stdio http"`
	HostName       string   `toml:"hostname"`
	Port           int      `toml:"port" validate:"min=1,max=65535"`
	HandleCORS     bool     `toml:"handle_cors"`
	AllowedOrigins []string `toml:"allowed_origins"`
	Stateless      bool     `toml:"stateless"`
}

type LogConfig struct {
	Level   string `toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Console bool   `toml:"console"`
}

// StoreConfig selects where subscriptions, watches and transaction builder sessions live.
type StoreConfig struct {
	Backend       string `toml:"backend" validate:"oneof=memory bolt redis"`
	Path          string `toml:"path" validate:"required_if=Backend bolt"`
	RedisAddr     string `toml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db" validate:"min=0"`
	KeyPrefix     string `toml:"key_prefix"`
}

type EventsConfig struct {
	PollInterval   string `toml:"poll_interval" validate:"duration"` // "0" disables polling
	HistorySize    int    `toml:"history_size" validate:"min=1,max=100000"`
	WebhookTimeout string `toml:"webhook_timeout" validate:"duration"`
	WebhookRetries int    `toml:"webhook_retries" validate:"min=0,max=10"`
}

// MQTTConfig enables the MQTT event sink when Broker is set.
type MQTTConfig struct {
	Broker      string `toml:"broker" validate:"omitempty,url"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	QoS         int    `toml:"qos" validate:"min=0,max=2"`
}

type MiniDappConfig struct {
	MaxPackageSize  int64  `toml:"max_package_size" validate:"min=1"`
	DefaultCategory string `toml:"default_category"`
	// StorePublicBase is the URL the store output directory is published under.
	StorePublicBase string `toml:"store_public_base" validate:"omitempty,url"`
}

// ConfigParam holds all configuration parameters.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	Node     NodeConfig     `toml:"node"`
	MCP      MCPConfig      `toml:"mcp"`
	Log      LogConfig      `toml:"log"`
	Store    StoreConfig    `toml:"store"`
	Events   EventsConfig   `toml:"events"`
	MQTT     MQTTConfig     `toml:"mqtt"`
	MiniDapp MiniDappConfig `toml:"minidapp"`
}

var cfg *ConfigParam

// Config returns the configuration installed by the last successful LoadConfig.
func Config() *ConfigParam {
	return cfg
}

// Default returns the configuration used when nothing is configured.
func Default() *ConfigParam {
	return &ConfigParam{
		FormatVersion: ConfigFormatVersion,
		Node: NodeConfig{
			Host:         mds.DefaultHost,
			Port:         mds.DefaultPort,
			Timeout:      "30s",
			Retries:      3,
			RetryBackoff: "500ms",
			AutoConfirm:  true,
		},
		MCP: MCPConfig{
			Transport: "stdio",
			HostName:  "127.0.0.1",
			Port:      8628,
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Backend:   "memory",
			KeyPrefix: "minima-mcp",
		},
		Events: EventsConfig{
			PollInterval:   "10s",
			HistorySize:    1000,
			WebhookTimeout: "10s",
			WebhookRetries: 3,
		},
		MQTT: MQTTConfig{
			ClientID:    "minima-mcp",
			TopicPrefix: "minima/events",
		},
		MiniDapp: MiniDappConfig{
			MaxPackageSize:  DefaultPackageLimit,
			DefaultCategory: "Utility",
		},
	}
}

// LoadConfig builds the configuration and installs it as the process configuration.
// An empty filename reads DefaultConfigFile if it exists. envFile names a dotenv file whose
// variables are loaded into the environment without overriding ones already set; a
// missing envFile is ignored.
func LoadConfig(filename, envFile string) (*ConfigParam, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigRead.MsgErr("error reading env file "+envFile, err)
		}
	}

	c := Default()
	optional := filename == ""
	if optional {
		filename = DefaultConfigFile
	}
	if err := c.decodeFile(filename, optional); err != nil {
		return nil, err
	}
	c.applyEnv(os.LookupEnv)

	if err := ValidateConfig(c); err != nil {
		return nil, err
	}
	cfg = c
	return c, nil
}

func (c *ConfigParam) decodeFile(filename string, optional bool) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return ErrConfigRead.MsgErr("error reading config file "+filename, err)
	}
	md, err := toml.Decode(string(content), c)
	if err != nil {
		return ErrConfigParse.MsgErr("error parsing config file "+filename, err)
	}
	for _, key := range md.Undecoded() {
		log.Warn().Str("key", key.String()).Str("file", filename).Msg("unknown configuration key ignored")
	}
	return nil
}

// Environment variables recognised as overrides.
const (
	EnvHost         = "MINIMA_HOST"
	EnvPort         = "MINIMA_PORT"
	EnvPassword     = "MINIMA_MDS_PASSWORD"
	EnvUseHTTP      = "MINIMA_USE_HTTP"
	EnvTimeout      = "MINIMA_TIMEOUT"
	EnvMCPTransport = "MINIMA_MCP_TRANSPORT"
	EnvMCPPort      = "MINIMA_MCP_PORT"
	EnvLogLevel     = "MINIMA_LOG_LEVEL"
)

type lookupFunc func(string) (string, bool)

func (c *ConfigParam) applyEnv(lookup lookupFunc) {
	setString(lookup, EnvHost, &c.Node.Host)
	setInt(lookup, EnvPort, &c.Node.Port)
	setString(lookup, EnvPassword, &c.Node.Password)
	setBool(lookup, EnvUseHTTP, &c.Node.UseHTTP)
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		// Bare numbers are seconds.
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			v += "s"
		}
		c.Node.Timeout = v
	}
	setString(lookup, EnvMCPTransport, &c.MCP.Transport)
	setInt(lookup, EnvMCPPort, &c.MCP.Port)
	setString(lookup, EnvLogLevel, &c.Log.Level)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup lookupFunc, key string, dst *int) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("variable", key).Str("value", v).Msg("ignoring non-numeric environment override")
		return
	}
	*dst = n
}

func setBool(lookup lookupFunc, key string, dst *bool) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		log.Warn().Str("variable", key).Str("value", v).Msg("ignoring non-boolean environment override")
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidateConfig checks the format version and every field constraint.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return ErrInvalidConfig.Msgf("unsupported config file format version: %s", c.FormatVersion)
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return ErrInvalidConfig.MsgErr("invalid configuration", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return ErrInvalidConfig.Msg("invalid configuration: " + strings.Join(msgs, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ConfigParam.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "duration":
		return fmt.Sprintf("%s: invalid duration %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// ParseDuration accepts Go duration strings plus whole days ("2d"). A bare "0" is zero.
func ParseDuration(input string) (time.Duration, error) {
	if input == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration: %s", input)
		}
		return d, nil
	}
	if len(input) < 2 || input[len(input)-1] != 'd' {
		return 0, fmt.Errorf("invalid duration: %q", input)
	}
	n, err := strconv.Atoi(input[:len(input)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of days: %q", input)
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

func mustDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		// ValidateConfig rejects these before a configuration is handed out.
		panic(err)
	}
	return d
}

// MDSOptions converts the node section into client options.
func (n NodeConfig) MDSOptions() mds.Options {
	retries := n.Retries
	if retries == 0 {
		retries = -1
	}
	return mds.Options{
		Host:               n.Host,
		Port:               n.Port,
		Password:           n.Password,
		Timeout:            mustDuration(n.Timeout),
		UseHTTP:            n.UseHTTP,
		VerifyTLS:          n.VerifyTLS,
		DisableAutoConfirm: !n.AutoConfirm,
		Retry: mds.RetryPolicy{
			MaxRetries: retries,
			Backoff:    mustDuration(n.RetryBackoff),
		},
	}
}

func (e EventsConfig) PollEvery() time.Duration       { return mustDuration(e.PollInterval) }
func (e EventsConfig) WebhookDeadline() time.Duration { return mustDuration(e.WebhookTimeout) }

// ListenAddr is the host:port the HTTP transport binds to.
func (m MCPConfig) ListenAddr() string {
	return m.HostName + ":" + strconv.Itoa(m.Port)
}

func (s StoreConfig) Options() store.Options {
	return store.Options{
		Backend:       s.Backend,
		Path:          s.Path,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
		KeyPrefix:     s.KeyPrefix,
	}
}
