package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN 给 gorm 使用
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL 给 golang-migrate 使用
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ChainConfig 描述一条 Substrate 链
type ChainConfig struct {
	ID          string `mapstructure:"id"`
	RpcUrl      string `mapstructure:"rpc_url"`
	SS58Prefix  uint16 `mapstructure:"ss58_prefix"`
	Decimals    int32  `mapstructure:"decimals"`
	Symbol      string `mapstructure:"symbol"`
	ExplorerUrl string `mapstructure:"explorer_url"`
}

type SignerConfig struct {
	KeystoreDir        string        `mapstructure:"keystore_dir"`
	RelayRequestTopic  string        `mapstructure:"relay_request_topic"`
	RelayResponseTopic string        `mapstructure:"relay_response_topic"`
	RelayTimeout       time.Duration `mapstructure:"relay_timeout"`
	// LedgerKnownSpecVersion 设备固件已知的最新 runtime 版本
	LedgerKnownSpecVersion uint32 `mapstructure:"ledger_known_spec_version"`
}

type LifecycleConfig struct {
	DefaultExpiry    time.Duration `mapstructure:"default_expiry"`
	FeeCacheTTL      time.Duration `mapstructure:"fee_cache_ttl"`
	ConstantsRefresh string        `mapstructure:"constants_refresh"` // cron spec, e.g. "@every 10m"
	AccountLockTTL   time.Duration `mapstructure:"account_lock_ttl"`
	FlowRetention    time.Duration `mapstructure:"flow_retention"`
}

var Global Config

// Chain 按 ID 查找链配置
func (c *Config) Chain(id string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置 (DB_PASSWORD 覆盖 db.password)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s, chains: %d", Global.App.Env, len(Global.Chains))
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "wallet_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("chains", []map[string]interface{}{
		{
			"id":           "polkadot",
			"rpc_url":      "wss://rpc.polkadot.io",
			"ss58_prefix":  0,
			"decimals":     10,
			"symbol":       "DOT",
			"explorer_url": "https://polkadot.subscan.io",
		},
	})

	viper.SetDefault("signer.keystore_dir", "keystore")
	viper.SetDefault("signer.relay_request_topic", "wallet_sign_requests")
	viper.SetDefault("signer.relay_response_topic", "wallet_sign_responses")
	viper.SetDefault("signer.relay_timeout", 5*time.Minute)
	viper.SetDefault("signer.ledger_known_spec_version", 0)

	viper.SetDefault("lifecycle.default_expiry", 10*time.Minute)
	viper.SetDefault("lifecycle.fee_cache_ttl", 30*time.Second)
	viper.SetDefault("lifecycle.constants_refresh", "@every 10m")
	viper.SetDefault("lifecycle.account_lock_ttl", 15*time.Minute)
	viper.SetDefault("lifecycle.flow_retention", time.Hour)
}
