package cli

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/api"
	"github.com/telekom/proxmox-multicluster/pkg/audit"
	"github.com/telekom/proxmox-multicluster/pkg/ratelimit"
)

type Config struct {
	// Application flags
	Debug bool

	// API server flags
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	EnableHTTP2   bool
	CORSOrigins   string

	// Rate limit flags
	APIRate        float64
	APIBurst       int
	MutationRate   float64
	MutationBurst  int
	ShutdownPeriod string

	// ValidateOnStartup probes every cluster once before serving
	ValidateOnStartup bool

	Audit AuditConfig
}

type AuditConfig struct {
	QueueSize int

	// Kafka sink flags; the sink is enabled when brokers are set
	KafkaBrokers       string
	KafkaTopic         string
	KafkaCompression   string
	KafkaTLS           bool
	KafkaCAFile        string
	KafkaSASLMechanism string
	KafkaUsername      string
	KafkaPassword      string
}

// Parse reads the process flags.
func Parse() *Config {
	config, err := ParseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine uses ExitOnError
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return config
}

// ParseArgs defines the server flags on fs and parses args. Every flag falls
// back to an environment variable.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	config := &Config{}
	apiDefaults := ratelimit.DefaultAPIConfig()
	mutationDefaults := ratelimit.DefaultMutationConfig()

	fs.BoolVar(&config.Debug, "debug", getEnvBool("DEBUG", false), "Enable debug level logging")

	// API server configuration
	fs.StringVar(&config.ListenAddress, "listen-address", getEnvString("LISTEN_ADDRESS", ":8080"),
		"The address the API server binds to (host:port)")
	fs.StringVar(&config.TLSCertFile, "tls-cert-file", getEnvString("TLS_CERT_FILE", ""),
		"Certificate file for serving TLS. TLS is enabled when both cert and key are set")
	fs.StringVar(&config.TLSKeyFile, "tls-key-file", getEnvString("TLS_KEY_FILE", ""),
		"Key file for serving TLS")
	fs.BoolVar(&config.EnableHTTP2, "enable-http2", getEnvBool("ENABLE_HTTP2", false),
		"If set, HTTP/2 will be enabled for the TLS server")
	fs.StringVar(&config.CORSOrigins, "cors-origins", getEnvString("CORS_ORIGINS", "http://localhost:5173"),
		"Comma separated origins allowed by CORS in debug mode")
	fs.StringVar(&config.ShutdownPeriod, "shutdown-timeout", getEnvString("SHUTDOWN_TIMEOUT", "10s"),
		"Grace period for in-flight requests on shutdown (e.g., '10s')")
	fs.BoolVar(&config.ValidateOnStartup, "validate-on-startup", getEnvBool("PROXMOX_CLUSTER_VALIDATION", true),
		"Probe every configured cluster once at startup and log the result")

	// Rate limits
	fs.Float64Var(&config.APIRate, "api-rate", getEnvFloat("API_RATE", apiDefaults.Rate),
		"Requests per second allowed per client IP on /api")
	fs.IntVar(&config.APIBurst, "api-burst", getEnvInt("API_BURST", apiDefaults.Burst),
		"Burst size per client IP on /api")
	fs.Float64Var(&config.MutationRate, "mutation-rate", getEnvFloat("MUTATION_RATE", mutationDefaults.Rate),
		"Mutating requests per second allowed per client IP and cluster")
	fs.IntVar(&config.MutationBurst, "mutation-burst", getEnvInt("MUTATION_BURST", mutationDefaults.Burst),
		"Burst size for mutating requests per client IP and cluster")

	// Audit configuration
	fs.IntVar(&config.Audit.QueueSize, "audit-queue-size", getEnvInt("AUDIT_QUEUE_SIZE", audit.DefaultRecorderConfig().QueueSize),
		"Number of audit events buffered before new events are dropped")
	fs.StringVar(&config.Audit.KafkaBrokers, "audit-kafka-brokers", getEnvString("AUDIT_KAFKA_BROKERS", ""),
		"Comma separated Kafka brokers. Leave empty to log audit events only")
	fs.StringVar(&config.Audit.KafkaTopic, "audit-kafka-topic", getEnvString("AUDIT_KAFKA_TOPIC", "proxmox-audit"),
		"Kafka topic audit events are written to")
	fs.StringVar(&config.Audit.KafkaCompression, "audit-kafka-compression", getEnvString("AUDIT_KAFKA_COMPRESSION", "snappy"),
		"Kafka compression codec: none, gzip, snappy, lz4 or zstd")
	fs.BoolVar(&config.Audit.KafkaTLS, "audit-kafka-tls", getEnvBool("AUDIT_KAFKA_TLS", false),
		"Connect to Kafka with TLS")
	fs.StringVar(&config.Audit.KafkaCAFile, "audit-kafka-ca-file", getEnvString("AUDIT_KAFKA_CA_FILE", ""),
		"PEM CA bundle used to verify the Kafka brokers")
	fs.StringVar(&config.Audit.KafkaSASLMechanism, "audit-kafka-sasl-mechanism", getEnvString("AUDIT_KAFKA_SASL_MECHANISM", ""),
		"SASL mechanism: PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty disables SASL")
	fs.StringVar(&config.Audit.KafkaUsername, "audit-kafka-username", getEnvString("AUDIT_KAFKA_USERNAME", ""),
		"SASL username")
	// no flag: the password is read from the environment only
	config.Audit.KafkaPassword = getEnvString("AUDIT_KAFKA_PASSWORD", "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		// Debug and logging
		"debug", c.Debug,
		// API server configuration
		"listen_address", c.ListenAddress,
		"tls_cert_file", c.TLSCertFile,
		"tls_key_file", c.TLSKeyFile,
		"enable_http2", c.EnableHTTP2,
		"cors_origins", c.CORSOrigins,
		"shutdown_timeout", c.ShutdownPeriod,
		"validate_on_startup", c.ValidateOnStartup,
		// Rate limits
		"api_rate", c.APIRate,
		"api_burst", c.APIBurst,
		"mutation_rate", c.MutationRate,
		"mutation_burst", c.MutationBurst,
		// Audit
		"audit_queue_size", c.Audit.QueueSize,
		"audit_kafka_brokers", c.Audit.KafkaBrokers,
		"audit_kafka_topic", c.Audit.KafkaTopic,
		"audit_kafka_tls", c.Audit.KafkaTLS,
		"audit_kafka_sasl_mechanism", c.Audit.KafkaSASLMechanism,
	)
}

// ServerConfig converts the flags into the API server configuration.
func (c *Config) ServerConfig(log *zap.SugaredLogger) api.ServerConfig {
	cfg := api.DefaultServerConfig()
	cfg.ListenAddress = c.ListenAddress
	cfg.TLSCertFile = c.TLSCertFile
	cfg.TLSKeyFile = c.TLSKeyFile
	cfg.Debug = c.Debug
	cfg.CORSOrigins = splitList(c.CORSOrigins)
	cfg.RateLimit.Rate = c.APIRate
	cfg.RateLimit.Burst = c.APIBurst
	cfg.ShutdownTimeout = ParseShutdownTimeout(c.ShutdownPeriod, log)
	if !c.EnableHTTP2 {
		cfg.TLSOptions = append(cfg.TLSOptions, DisableHTTP2)
	}
	return cfg
}

// MutationLimit returns the rate limit applied to mutating routes.
func (c *Config) MutationLimit() ratelimit.Config {
	cfg := ratelimit.DefaultMutationConfig()
	cfg.Rate = c.MutationRate
	cfg.Burst = c.MutationBurst
	return cfg
}

// RecorderConfig returns the audit recorder configuration.
func (c *Config) RecorderConfig() audit.RecorderConfig {
	cfg := audit.DefaultRecorderConfig()
	if c.Audit.QueueSize > 0 {
		cfg.QueueSize = c.Audit.QueueSize
	}
	return cfg
}

// KafkaSinkConfig returns the Kafka sink configuration and whether the sink
// is enabled at all.
func (c *Config) KafkaSinkConfig() (audit.KafkaSinkConfig, bool, error) {
	brokers := splitList(c.Audit.KafkaBrokers)
	if len(brokers) == 0 {
		return audit.KafkaSinkConfig{}, false, nil
	}
	cfg := audit.KafkaSinkConfig{
		Name:             "kafka",
		Brokers:          brokers,
		Topic:            c.Audit.KafkaTopic,
		CompressionCodec: c.Audit.KafkaCompression,
	}
	if c.Audit.KafkaTLS {
		cfg.TLS = &audit.KafkaTLSConfig{Enabled: true}
		if c.Audit.KafkaCAFile != "" {
			ca, err := os.ReadFile(c.Audit.KafkaCAFile)
			if err != nil {
				return audit.KafkaSinkConfig{}, false, fmt.Errorf("read kafka CA file: %w", err)
			}
			cfg.TLS.CACert = ca
		}
	}
	if c.Audit.KafkaSASLMechanism != "" {
		cfg.SASL = &audit.KafkaSASLConfig{
			Mechanism: c.Audit.KafkaSASLMechanism,
			Username:  c.Audit.KafkaUsername,
			Password:  c.Audit.KafkaPassword,
		}
	}
	return cfg, true, nil
}

// DisableHTTP2 is used to configure TLS options to disable HTTP/2.
// This is important because HTTP/2 has known vulnerabilities (CVE-2023-44487, CVE-2024-3156).
func DisableHTTP2(c *tls.Config) {
	c.NextProtos = []string{"http/1.1"}
}

func ParseShutdownTimeout(value string, log *zap.SugaredLogger) time.Duration {
	timeout, err := parseDuration("shutdown-timeout", value, api.DefaultServerConfig().ShutdownTimeout)
	if err != nil {
		log.Warn(err)
	}
	return timeout
}

func parseDuration(name, value string, def time.Duration) (time.Duration, error) {
	duration := def
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			duration = d
		} else {
			return duration, fmt.Errorf("invalid %s %q; using default %s: %w", name, value, def.String(), err)
		}
	}

	return duration, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvString returns the value of an environment variable, or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}
