package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/adapter/out/kafka"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
	"github.com/JoeShih716/go-bank-api/pkg/database"
	"github.com/JoeShih716/go-bank-api/pkg/logger"
	"github.com/JoeShih716/go-bank-api/pkg/tracing"
)

// StoreDriver 帳戶儲存層種類
type StoreDriver string

const (
	StoreDriverMemory StoreDriver = "memory"
	StoreDriverSQL    StoreDriver = "sql"
)

type Config struct {
	HTTP     HTTPConfig         `yaml:"http"`
	GRPC     GRPCConfig         `yaml:"grpc"`
	Store    StoreConfig        `yaml:"store"`
	Core     usecase.CoreConfig `yaml:"core"`
	Security SecurityConfig     `yaml:"security"`
	Journal  JournalConfig      `yaml:"journal"`
	Log      logger.Config      `yaml:"log"`
	Tracing  tracing.Config     `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORS            bool          `yaml:"cors"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type StoreConfig struct {
	Driver   StoreDriver     `yaml:"driver"`
	Database database.Config `yaml:"database"`
	// AutoMigrate 啟動時建立/更新資料表
	AutoMigrate bool `yaml:"autoMigrate"`
}

type SecurityConfig struct {
	// BcryptCost 帳戶密碼雜湊成本
	BcryptCost int `yaml:"bcryptCost"`
}

type JournalConfig struct {
	// WALPath 空字串代表不寫檔
	WALPath string       `yaml:"walPath"`
	Kafka   kafka.Config `yaml:"kafka"`
}

// Load 讀取設定
//
// 順序: .env (若存在) → YAML 檔 → BANK_* 環境變數覆蓋 → 預設值
//
// 參數:
//
//	path: YAML 檔路徑；檔案不存在時只使用環境變數與預設值
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, cfg.Validate()
}

// Validate 檢查設定是否可用
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverSQL:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == StoreDriverSQL {
		if _, err := c.Store.Database.DSN(); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":50051"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverMemory
	}
	cfg.Store.Database = cfg.Store.Database.WithDefaults()
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "go-bank-api"
	}
}

// applyEnv 以 BANK_* 環境變數覆蓋設定 (密碼之類不適合放在 YAML 的值)
func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("BANK_HTTP_ADDR", &cfg.HTTP.Addr)
	setString("BANK_GRPC_ADDR", &cfg.GRPC.Addr)
	setString("BANK_DB_DRIVER", &cfg.Store.Database.Driver)
	setString("BANK_DB_HOST", &cfg.Store.Database.Host)
	setString("BANK_DB_USER", &cfg.Store.Database.User)
	setString("BANK_DB_PASSWORD", &cfg.Store.Database.Password)
	setString("BANK_DB_NAME", &cfg.Store.Database.DBName)
	setString("BANK_LOG_LEVEL", &cfg.Log.Level)
	setString("BANK_JOURNAL_WAL_PATH", &cfg.Journal.WALPath)
	setString("BANK_KAFKA_TOPIC", &cfg.Journal.Kafka.Topic)

	if v, ok := os.LookupEnv("BANK_STORE_DRIVER"); ok {
		cfg.Store.Driver = StoreDriver(v)
	}
	if v, ok := os.LookupEnv("BANK_DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BANK_DB_PORT: %w", err)
		}
		cfg.Store.Database.Port = port
	}
	if v, ok := os.LookupEnv("BANK_KAFKA_BROKERS"); ok {
		cfg.Journal.Kafka.Brokers = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
