package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config определяет структуру конфигурации всего приложения целиком
type Config struct {
	Feeds      `yaml:"feeds"`
	Matcher    `yaml:"matcher"`
	Run        `yaml:"run"`
	Retry      `yaml:"retry"`
	Storage    `yaml:"storage"`
	Notifier   `yaml:"notifier"`
	Kafka      `yaml:"kafka"`
	HTTPServer `yaml:"http_server"`
	Metrics    `yaml:"metrics"`
	Logger     `yaml:"logger"`
}

// Feeds содержит адреса источников открытых данных муниципалитета
// в OrdersURL и DetailURL подставляются {year} и {order}
type Feeds struct {
	AggregateURL string        `yaml:"aggregate_url"`
	OrdersURL    string        `yaml:"orders_url"`
	DetailURL    string        `yaml:"detail_url"`
	FiscalYear   int           `yaml:"fiscal_year"` // 0 - текущий год
	Timeout      time.Duration `yaml:"timeout"`
}

// Matcher содержит параметры привязки дельты к заказам
type Matcher struct {
	Keywords      []string `yaml:"keywords"`
	Tolerance     string   `yaml:"tolerance"`
	MaxCandidates int      `yaml:"max_candidates"`
}

// Run содержит ограничения одного запуска
type Run struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Retry содержит политику повторов для сетевых вызовов
type Retry struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	JitterFactor   float64       `yaml:"jitter_factor"`
}

// Storage выбирает хранилище состояния: postgres или sqlite
type Storage struct {
	Driver   string `yaml:"driver"`
	Postgres `yaml:"postgres"`
	SQLite   `yaml:"sqlite"`
}

// Postgres содержит конфигурацию для подключения к базе данных
type Postgres struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// SQLite содержит путь к файлу состояния
type SQLite struct {
	Path string `yaml:"path"`
}

// Notifier выбирает способ доставки уведомлений: kafka или webhook
type Notifier struct {
	Driver       string        `yaml:"driver"`
	WebhookURL   string        `yaml:"webhook_url"`
	WebhookToken string        `yaml:"webhook_token"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Kafka содержит конфигурацию для подключения к кафке
type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// HTTPServer содержит конфигурацию для HTTP-сервера статуса
type HTTPServer struct {
	Port    string        `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// Metrics содержит адрес Pushgateway; пустой адрес выключает отправку
type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Logger содержит конфигурацию для логгера
type Logger struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MustLoad загружает конфигурацию из файла по указанному пути
// в случае ошибки программа завершается с фатальной ошибкой
func MustLoad(configPath string) *Config {
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	return cfg
}

// Load читает yaml-файл, подмешивает секреты из окружения (и .env, если он есть)
// и проставляет значения по умолчанию
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	// значения, для которых ноль осмыслен (0 повторов, точное совпадение сумм),
	// проставляются до разбора файла: явный ноль в yaml их перекрывает
	cfg := Config{
		Matcher: Matcher{Tolerance: "1.00"},
		Retry:   Retry{MaxRetries: 3},
	}
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal config: %w", op, err)
	}

	// .env не обязателен, секреты могут прийти из окружения процесса
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: failed to read .env: %w", op, err)
	}
	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

// ToleranceDecimal возвращает допуск привязки в виде decimal
func (m Matcher) ToleranceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(m.Tolerance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FiscalYearAt возвращает год фида заказов: явно заданный или год момента now
func (f Feeds) FiscalYearAt(now time.Time) int {
	if f.FiscalYear > 0 {
		return f.FiscalYear
	}
	return now.Year()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("NOTIFIER_WEBHOOK_TOKEN"); v != "" {
		c.Notifier.WebhookToken = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) setDefaults() {
	if c.Feeds.Timeout == 0 {
		c.Feeds.Timeout = 30 * time.Second
	}
	if c.Feeds.DetailURL == "" {
		c.Feeds.DetailURL = "https://www.bahia.gob.ar/compras/data/oc/{year}/{order}"
	}
	if c.Run.Timeout == 0 {
		c.Run.Timeout = 10 * time.Minute
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = 10 * time.Second
	}
	if c.Retry.JitterFactor == 0 {
		c.Retry.JitterFactor = 0.25
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "pautabot.db"
	}
	if c.Notifier.Driver == "" {
		c.Notifier.Driver = "kafka"
	}
	if c.Notifier.Timeout == 0 {
		c.Notifier.Timeout = 15 * time.Second
	}
	if c.Kafka.WriteTimeout == 0 {
		c.Kafka.WriteTimeout = 10 * time.Second
	}
	if c.HTTPServer.Port == "" {
		c.HTTPServer.Port = ":8080"
	}
	if c.HTTPServer.Timeout == 0 {
		c.HTTPServer.Timeout = 5 * time.Second
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "pautabot"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "INFO"
	}
}

func (c *Config) validate() error {
	if c.Feeds.AggregateURL == "" || c.Feeds.OrdersURL == "" {
		return errors.New("feeds.aggregate_url and feeds.orders_url are required")
	}
	tolerance, err := decimal.NewFromString(c.Matcher.Tolerance)
	if err != nil {
		return fmt.Errorf("matcher.tolerance: %w", err)
	}
	if tolerance.IsNegative() {
		return errors.New("matcher.tolerance must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must not be negative")
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Notifier.Driver {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka.brokers and kafka.topic are required for the kafka notifier")
		}
	case "webhook":
		if c.Notifier.WebhookURL == "" {
			return errors.New("notifier.webhook_url is required for the webhook notifier")
		}
	default:
		return fmt.Errorf("unknown notifier.driver %q", c.Notifier.Driver)
	}
	return nil
}
