package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Business  BusinessConfig  `mapstructure:"business"`
	Log       LogConfig       `mapstructure:"log"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig 数据库配置，driver 可选 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Group   string           `mapstructure:"group"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	TransactionCompleted string `mapstructure:"transaction_completed"`
}

// ProvidersConfig 支付渠道密钥，建议通过 .env / 环境变量注入
type ProvidersConfig struct {
	VNPay VNPayConfig `mapstructure:"vnpay"`
	MoMo  MoMoConfig  `mapstructure:"momo"`
}

type VNPayConfig struct {
	TmnCode    string `mapstructure:"tmn_code"`
	HashSecret string `mapstructure:"hash_secret"`
}

type MoMoConfig struct {
	PartnerCode string `mapstructure:"partner_code"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
}

// GoldPackage 金币充值套餐
type GoldPackage struct {
	ID          string `mapstructure:"id" json:"id"`
	Gold        int64  `mapstructure:"gold" json:"gold"`
	AmountMoney int64  `mapstructure:"amount_money" json:"amount_money"`
}

// VipPlan VIP 套餐；gold_price > 0 时允许用金币购买
type VipPlan struct {
	ID          string `mapstructure:"id" json:"id"`
	Tier        string `mapstructure:"tier" json:"tier"`
	Days        int    `mapstructure:"days" json:"days"`
	AmountMoney int64  `mapstructure:"amount_money" json:"amount_money"`
	GoldPrice   int64  `mapstructure:"gold_price" json:"gold_price"`
}

type BusinessConfig struct {
	PendingTimeoutMinutes int           `mapstructure:"pending_timeout_minutes"`
	CompensateAfterSecond int           `mapstructure:"compensate_after_seconds"`
	MaxRetryCount         int           `mapstructure:"max_retry_count"`
	MinPayout             int64         `mapstructure:"min_payout"`
	RedeemRateLimit       int64         `mapstructure:"redeem_rate_limit"`
	StoreTimeout          time.Duration `mapstructure:"store_timeout"`
	SweepCron             string        `mapstructure:"sweep_cron"`
	GoldPackages          []GoldPackage `mapstructure:"gold_packages"`
	VipPlans              []VipPlan     `mapstructure:"vip_plans"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

var GlobalConfig *Config

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// GoldPackage 按 ID 查找金币套餐
func (b *BusinessConfig) GoldPackage(id string) (GoldPackage, bool) {
	for _, p := range b.GoldPackages {
		if p.ID == id {
			return p, true
		}
	}
	return GoldPackage{}, false
}

// VipPlan 按 ID 查找 VIP 套餐
func (b *BusinessConfig) VipPlan(id string) (VipPlan, bool) {
	for _, p := range b.VipPlans {
		if p.ID == id {
			return p, true
		}
	}
	return VipPlan{}, false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("kafka.group", "monetcore-commission")
	v.SetDefault("kafka.topic.transaction_completed", "monetization.transaction.completed")
	v.SetDefault("business.pending_timeout_minutes", 30)
	v.SetDefault("business.compensate_after_seconds", 60)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.min_payout", 100000)
	v.SetDefault("business.redeem_rate_limit", 10)
	v.SetDefault("business.store_timeout", 5*time.Second)
	v.SetDefault("business.sweep_cron", "0 */1 * * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load 读取配置文件，环境变量 MONET_* 覆盖同名配置项
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MONET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = cfg
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Business.MinPayout < 0 {
		return errors.New("business.min_payout 不能为负数")
	}
	if c.Business.StoreTimeout <= 0 {
		return errors.New("business.store_timeout 必须大于0")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.enabled 为 true 时必须配置 kafka.brokers")
	}
	for _, p := range c.Business.GoldPackages {
		if p.Gold <= 0 || p.AmountMoney <= 0 {
			return fmt.Errorf("金币套餐 %s 配置错误", p.ID)
		}
	}
	for _, p := range c.Business.VipPlans {
		if p.Days <= 0 {
			return fmt.Errorf("VIP 套餐 %s 天数必须大于0", p.ID)
		}
	}
	return nil
}
