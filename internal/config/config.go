package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）与看板事件 Topic
	KafkaBrokers []string
	KafkaTopic   string

	// Redis Stream outbox（扫码原子入流，Relay 异步转 Kafka）
	ScanEventStream   string
	ScanEventGroup    string
	ScanEventConsumer string

	// 扫码接口限流、去重窗口与补货节拍
	ScanRateLimit   int
	ScanRateWindow  time.Duration
	ScanDedupeTTL   time.Duration
	ReplenishPeriod time.Duration

	// 布局缓存的保存时长（0 表示永不过期）
	LayoutCacheTTL time.Duration

	// 管理接口的简单管理员令牌
	AdminToken string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DBPath:            getEnv("DB_PATH", "milk_run.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           0,
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "milk-run-scan-events"),
		ScanEventStream:   getEnv("SCAN_EVENT_STREAM", "milk_run:scan_events"),
		ScanEventGroup:    getEnv("SCAN_EVENT_GROUP", "milk-run-relay-group"),
		ScanEventConsumer: getEnv("SCAN_EVENT_CONSUMER", "milk-run-relay-1"),
		ScanRateLimit:     30,
		ScanRateWindow:    time.Second,
		ScanDedupeTTL:     2 * time.Second,
		ReplenishPeriod:   time.Second,
		LayoutCacheTTL:    0,
		AdminToken:        getEnv("ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("SCAN_RATE_LIMIT", cfg.ScanRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SCAN_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("SCAN_RATE_LIMIT must be > 0")
	}
	cfg.ScanRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("SCAN_RATE_WINDOW_SEC", int(cfg.ScanRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SCAN_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("SCAN_RATE_WINDOW_SEC must be > 0")
	}
	cfg.ScanRateWindow = time.Duration(rateWindowSec) * time.Second

	dedupeSec, err := getEnvInt("SCAN_DEDUPE_SEC", int(cfg.ScanDedupeTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SCAN_DEDUPE_SEC: %w", err)
	}
	if dedupeSec < 0 {
		return AppConfig{}, fmt.Errorf("SCAN_DEDUPE_SEC must be >= 0")
	}
	cfg.ScanDedupeTTL = time.Duration(dedupeSec) * time.Second

	layoutTTLHour, err := getEnvInt("LAYOUT_CACHE_TTL_HOUR", int(cfg.LayoutCacheTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid LAYOUT_CACHE_TTL_HOUR: %w", err)
	}
	if layoutTTLHour < 0 {
		return AppConfig{}, fmt.Errorf("LAYOUT_CACHE_TTL_HOUR must be >= 0")
	}
	cfg.LayoutCacheTTL = time.Duration(layoutTTLHour) * time.Hour

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.ScanEventStream == "" {
		return AppConfig{}, fmt.Errorf("SCAN_EVENT_STREAM must not be empty")
	}
	if cfg.ScanEventGroup == "" {
		return AppConfig{}, fmt.Errorf("SCAN_EVENT_GROUP must not be empty")
	}
	if cfg.ScanEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("SCAN_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
