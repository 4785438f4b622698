package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Events   EventsConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LedgerConfig 帳本規則參數
type LedgerConfig struct {
	ChainID           int64
	OwnerAddress      string
	ClaimWindow       time.Duration // 得獎者領獎期限，超過後創建者可申請退款
	RequireSignatures bool          // 是否要求請求附帶錢包簽章
	SignatureMaxAge   time.Duration
	AllowDeposits     bool // 開發環境用：允許直接儲值帳戶
}

// EventsConfig 事件扇出設定
type EventsConfig struct {
	UseRedisStream bool
	ConsumerGroup  string
	BufferSize     int
}

const DefaultClaimWindow = 60 * 24 * time.Hour

var AppConfig *Config

func LoadConfig() *Config {
	// .env 不存在時直接使用環境變數
	_ = godotenv.Load()

	AppConfig = &Config{
		Server:   GetServerConfig(),
		Database: GetDatabaseConfig(),
		Redis:    GetRedisConfig(),
		Ledger:   GetLedgerConfig(),
		Events:   GetEventsConfig(),
	}

	return AppConfig
}

func LoadTestConfig() *Config {
	testConfig := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5433", // 測試 DB 用 5433 port
		User:     "postgres",
		Password: "postgres",
		DBName:   "test_db",
		SSLMode:  "disable",
	}

	testRedisConfig := RedisConfig{
		Host:     "localhost",
		Port:     "6380", // 測試 Redis 用 6380 port
		Password: "",
		DB:       1,
	}

	return &Config{
		Server:   ServerConfig{Addr: ":0"},
		Database: *testConfig,
		Redis:    testRedisConfig,
		Ledger: LedgerConfig{
			ChainID:         11155111,
			OwnerAddress:    "0x00000000000000000000000000000000000000aa",
			ClaimWindow:     DefaultClaimWindow,
			SignatureMaxAge: 5 * time.Minute,
			AllowDeposits:   true,
		},
		Events: EventsConfig{
			ConsumerGroup: "event-fanout-test",
			BufferSize:    64,
		},
	}
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr: getEnv("SERVER_ADDR", ":8080"),
	}
}

func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		DBName:   getEnv("DB_NAME", "postgres"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}
}

func GetRedisConfig() RedisConfig {
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		panic(err)
	}

	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

func GetLedgerConfig() LedgerConfig {
	chainID, err := strconv.ParseInt(getEnv("LEDGER_CHAIN_ID", "11155111"), 10, 64)
	if err != nil {
		panic(err)
	}

	return LedgerConfig{
		ChainID:           chainID,
		OwnerAddress:      getEnv("LEDGER_OWNER_ADDRESS", ""),
		ClaimWindow:       getDuration("LEDGER_CLAIM_WINDOW", DefaultClaimWindow),
		RequireSignatures: getBool("LEDGER_REQUIRE_SIGNATURES", true),
		SignatureMaxAge:   getDuration("LEDGER_SIGNATURE_MAX_AGE", 5*time.Minute),
		AllowDeposits:     getBool("LEDGER_ALLOW_DEPOSITS", false),
	}
}

func GetEventsConfig() EventsConfig {
	bufferSize, err := strconv.Atoi(getEnv("EVENTS_BUFFER_SIZE", "1024"))
	if err != nil {
		panic(err)
	}

	return EventsConfig{
		UseRedisStream: getBool("EVENTS_USE_REDIS_STREAM", true),
		ConsumerGroup:  getEnv("EVENTS_CONSUMER_GROUP", ""),
		BufferSize:     bufferSize,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		panic(err)
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(err)
	}
	return d
}
