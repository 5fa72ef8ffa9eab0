// Package config carrega a configuração do gateway a partir de variáveis de
// ambiente, opcionalmente lidas de um arquivo .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("config: invalid")

// Tipos de store de mensagens.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StorePebble = "pebble"
	StoreKafka  = "kafka"
)

// Algoritmos de rate limit.
const (
	AlgorithmSlidingWindow = "sliding-window"
	AlgorithmTokenBucket   = "token-bucket"
)

// Destinos de dead letter.
const (
	DeadLettersOff    = "off"
	DeadLettersMemory = "memory"
	DeadLettersRedis  = "redis"
)

type Config struct {
	HTTP        HTTPConfig
	Logging     LoggingConfig
	Store       StoreConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Queue       QueueConfig
	RateLimit   RateLimitConfig
	RateStats   RateStatsConfig
	Concurrency ConcurrencyConfig
}

type HTTPConfig struct {
	ListenAddr string
	// UpstreamURL é o serviço de IA (chat em stream e resumo). Vazio: o chat
	// só enfileira e responde 202.
	UpstreamURL     string
	ShutdownTimeout time.Duration
	// AdminToken vazio desliga as rotas de administração.
	AdminToken string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Kind      string
	Prefix    string
	PebbleDir string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type QueueConfig struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	DeadLetters        string
	DeadLetterCapacity int
}

type Rule struct {
	Limit  int
	Window time.Duration
}

type RateLimitConfig struct {
	Algorithm string
	Summary   Rule
	// Chat.Limit == 0 desliga o limite do chat.
	Chat         Rule
	KeyHeader    string
	TrustXFF     bool
	AddHeaders   bool
	IdleTTL      time.Duration
	CleanupEvery time.Duration
}

type RateStatsConfig struct {
	Enabled   bool
	Backend   string
	Prefix    string
	TTL       time.Duration
	TrackKeys bool
}

type ConcurrencyConfig struct {
	Max     int
	Timeout time.Duration
}

// Load lê os arquivos .env informados (ou ".env" se nenhum), ignorando os
// que não existem, e monta a Config a partir do ambiente. Variáveis já
// definidas no ambiente têm precedência sobre o arquivo.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv monta a Config só a partir do ambiente, sem validar.
func FromEnv() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddr:      getenvDefault("LISTEN_ADDR", ":8080"),
			UpstreamURL:     strings.TrimSpace(os.Getenv("UPSTREAM_URL")),
			ShutdownTimeout: getenvDurationDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
			AdminToken:      os.Getenv("ADMIN_TOKEN"),
		},
		Logging: LoggingConfig{
			Level:  getenvDefault("LOG_LEVEL", "info"),
			Format: getenvDefault("LOG_FORMAT", "json"),
		},
		Store: StoreConfig{
			Kind:      strings.ToLower(getenvDefault("MESSAGE_STORE", StoreMemory)),
			Prefix:    getenvDefault("STORE_PREFIX", "pagewise"),
			PebbleDir: getenvDefault("PEBBLE_DIR", "data/messages"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvIntDefault("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenvDefault("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenvDefault("KAFKA_TOPIC", "chat-messages"),
		},
		Queue: QueueConfig{
			MaxAttempts:        getenvIntDefault("QUEUE_MAX_ATTEMPTS", 5),
			BaseDelay:          getenvDurationDefault("QUEUE_BASE_DELAY", 500*time.Millisecond),
			DeadLetters:        strings.ToLower(getenvDefault("DEAD_LETTERS", DeadLettersOff)),
			DeadLetterCapacity: getenvIntDefault("DEAD_LETTER_CAPACITY", 1000),
		},
		RateLimit: RateLimitConfig{
			Algorithm: strings.ToLower(getenvDefault("RATE_ALGORITHM", AlgorithmSlidingWindow)),
			Summary: Rule{
				Limit:  getenvIntDefault("SUMMARY_RATE_LIMIT", 5),
				Window: getenvDurationDefault("SUMMARY_RATE_WINDOW", time.Minute),
			},
			Chat: Rule{
				Limit:  getenvIntDefault("CHAT_RATE_LIMIT", 0),
				Window: getenvDurationDefault("CHAT_RATE_WINDOW", time.Minute),
			},
			KeyHeader:    getenvDefault("RATE_KEY_HEADER", "X-User-Id"),
			TrustXFF:     getenvBoolDefault("TRUST_XFF", false),
			AddHeaders:   getenvBoolDefault("ADD_RATELIMIT_HEADERS", false),
			IdleTTL:      getenvDurationDefault("RATE_IDLE_TTL", time.Minute),
			CleanupEvery: getenvDurationDefault("RATE_CLEANUP_EVERY", time.Minute),
		},
		RateStats: RateStatsConfig{
			Enabled:   getenvBoolDefault("RATE_STATS_ENABLED", false),
			Backend:   strings.ToLower(getenvDefault("RATE_STATS_BACKEND", "memory")),
			Prefix:    getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats"),
			TTL:       getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour),
			TrackKeys: getenvBoolDefault("RATE_STATS_TRACK_KEYS", false),
		},
		Concurrency: ConcurrencyConfig{
			Max:     getenvIntDefault("CONCURRENCY_MAX", 100),
			Timeout: getenvDurationDefault("CONCURRENCY_TIMEOUT", 0),
		},
	}
}

// NeedsRedis informa se algum componente selecionado usa Redis.
func (c Config) NeedsRedis() bool {
	return c.Store.Kind == StoreRedis ||
		c.Queue.DeadLetters == DeadLettersRedis ||
		(c.RateStats.Enabled && c.RateStats.Backend == "redis")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func (c Config) Validate() error {
	if c.HTTP.UpstreamURL != "" {
		u, err := url.Parse(c.HTTP.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("UPSTREAM_URL %q is not an absolute URL", c.HTTP.UpstreamURL)
		}
	}

	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("SHUTDOWN_TIMEOUT must be > 0")
	}

	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StorePebble:
		if strings.TrimSpace(c.Store.PebbleDir) == "" {
			return invalid("PEBBLE_DIR is required when MESSAGE_STORE=pebble")
		}
	case StoreKafka:
		if len(c.Kafka.Brokers) == 0 || strings.TrimSpace(c.Kafka.Topic) == "" {
			return invalid("KAFKA_BROKERS and KAFKA_TOPIC are required when MESSAGE_STORE=kafka")
		}
	default:
		return invalid("unknown MESSAGE_STORE %q", c.Store.Kind)
	}

	switch c.Queue.DeadLetters {
	case DeadLettersOff, DeadLettersMemory, DeadLettersRedis:
	default:
		return invalid("unknown DEAD_LETTERS %q", c.Queue.DeadLetters)
	}
	if c.Queue.MaxAttempts <= 0 {
		return invalid("QUEUE_MAX_ATTEMPTS must be > 0")
	}
	if c.Queue.BaseDelay <= 0 {
		return invalid("QUEUE_BASE_DELAY must be > 0")
	}

	if c.RateStats.Enabled && c.RateStats.Backend != "memory" && c.RateStats.Backend != "redis" {
		return invalid("unknown RATE_STATS_BACKEND %q", c.RateStats.Backend)
	}
	if c.NeedsRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		return invalid("REDIS_ADDR is required by the selected store, dead letters or stats backend")
	}

	switch c.RateLimit.Algorithm {
	case AlgorithmSlidingWindow, AlgorithmTokenBucket:
	default:
		return invalid("unknown RATE_ALGORITHM %q", c.RateLimit.Algorithm)
	}
	if c.RateLimit.Summary.Limit <= 0 || c.RateLimit.Summary.Window <= 0 {
		return invalid("SUMMARY_RATE_LIMIT and SUMMARY_RATE_WINDOW must be > 0")
	}
	if c.RateLimit.Chat.Limit < 0 {
		return invalid("CHAT_RATE_LIMIT must be >= 0")
	}
	if c.RateLimit.Chat.Limit > 0 && c.RateLimit.Chat.Window <= 0 {
		return invalid("CHAT_RATE_WINDOW must be > 0")
	}

	if c.Concurrency.Max < 0 {
		return invalid("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
