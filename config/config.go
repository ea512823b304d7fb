package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Config es la configuración completa del servicio.
type Config struct {
	Protocol ProtocolConfig `yaml:"protocol"`
	Storage  StorageConfig  `yaml:"storage"`
	HTTP     HTTPConfig     `yaml:"http"`
	Events   EventsConfig   `yaml:"events"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
}

// ProtocolConfig son los valores con los que -init inicializa el protocolo.
type ProtocolConfig struct {
	Authority      string          `yaml:"authority"`
	Treasury       string          `yaml:"treasury"`
	Fees           domain.FeeRates `yaml:"fees"`
	RequireLicense bool            `yaml:"require_license"`
	TokenDecimals  int32           `yaml:"token_decimals"` // solo para mostrar cantidades
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// HTTPConfig controla la API HTTP.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	RatePerSec     float64  `yaml:"rate_per_sec"` // por caller
	Burst          int      `yaml:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Faucet         bool     `yaml:"faucet"` // solo para desarrollo
}

// EventsConfig controla la publicación de eventos en AMQP. Sin URL no se publica.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// MonitorConfig controla el loop de auditoría de mercados.
type MonitorConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	Workers         int `yaml:"workers"` // 0 = NumCPU*2
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Protocol.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: protocol.fees: %w", err)
	}
	return &cfg, nil
}

// MonitorInterval devuelve el intervalo de auditoría como time.Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FORTUNA_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("FORTUNA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FORTUNA_AMQP_URL"); v != "" {
		cfg.Events.AMQPURL = v
	}
	if v := os.Getenv("FORTUNA_AUTHORITY"); v != "" {
		cfg.Protocol.Authority = v
	}
	if v := os.Getenv("FORTUNA_TREASURY"); v != "" {
		cfg.Protocol.Treasury = v
	}
	if v := os.Getenv("FORTUNA_FAUCET"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.HTTP.Faucet = on
		}
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
// Las fees a cero toman los defaults solo si las tres vienen vacías: una fee
// explícita en 0 junto a otras distintas de 0 se respeta.
func setDefaults(cfg *Config) {
	if cfg.Protocol.Fees == (domain.FeeRates{}) {
		cfg.Protocol.Fees = domain.DefaultFeeRates()
	}
	if cfg.Protocol.TokenDecimals <= 0 {
		cfg.Protocol.TokenDecimals = 6
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "fortuna.db"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RatePerSec <= 0 {
		cfg.HTTP.RatePerSec = 10
	}
	if cfg.HTTP.Burst <= 0 {
		cfg.HTTP.Burst = 20
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"*"}
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "fortuna.events"
	}
	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
