package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Redis struct {
		// 多于一个地址时使用集群客户端
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
		DB       int      `mapstructure:"db"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN     string `mapstructure:"dsn"`
		Verbose bool   `mapstructure:"verbose"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers   []string      `mapstructure:"brokers"`
		Topic     string        `mapstructure:"topic"`
		QueueSize int           `mapstructure:"queueSize"`
		Workers   int           `mapstructure:"workers"`
		MaxRetry  int           `mapstructure:"maxRetry"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`
	Collab struct {
		HistoryCap         int           `mapstructure:"historyCap"`
		PresenceTTL        time.Duration `mapstructure:"presenceTTL"`
		SnapshotEvery      int           `mapstructure:"snapshotEvery"`
		SnapshotKeep       int           `mapstructure:"snapshotKeep"`
		MaxTransformWindow uint64        `mapstructure:"maxTransformWindow"`
		SemaphoreSize      int           `mapstructure:"semaphoreSize"`
		// 字段名 -> 冲突策略（join/keep_local/take_remote）
		FieldStrategies map[string]string `mapstructure:"fieldStrategies"`
		DefaultStrategy string            `mapstructure:"defaultStrategy"`
	} `mapstructure:"collab"`
	Cors struct {
		Enabled        bool     `mapstructure:"enabled"`
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 8081)
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.topic", "doc-ops")
	v.SetDefault("kafka.queueSize", 10_000)
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("kafka.maxRetry", 3)
	v.SetDefault("kafka.timeout", 2*time.Second)
	v.SetDefault("auth.secret", "dev-secret")
	v.SetDefault("collab.historyCap", 1024)
	v.SetDefault("collab.presenceTTL", 600*time.Second)
	v.SetDefault("collab.snapshotEvery", 100)
	v.SetDefault("collab.snapshotKeep", 5)
	v.SetDefault("collab.maxTransformWindow", 0)
	v.SetDefault("collab.semaphoreSize", 100)
	v.SetDefault("collab.defaultStrategy", "join")
	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:5173"})
}

// Load 读取 collabConfig.yaml，找不到文件时只用默认值和环境变量。
// 环境变量前缀 COLLAB_，层级用下划线，如 COLLAB_MYSQL_DSN
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		// 兼容从项目根目录或 backend 目录启动
		paths = []string{"./backend/config", "./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)
	v.SetEnvPrefix("COLLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
