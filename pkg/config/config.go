package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Consul   ConsulConfig   `mapstructure:"consul"`
	Mysql    MysqlConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jwt      JwtConfig      `mapstructure:"jwt"`
	Tracer   TracerConfig   `mapstructure:"tracer"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	GroupBuy GroupBuyConfig `mapstructure:"groupbuy"`
}

type ServiceConfig struct {
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	GrpcPort int    `mapstructure:"grpc_port"`
	Env      string `mapstructure:"env"`
}

type ConsulConfig struct {
	Address string `mapstructure:"address"`
}

type MysqlConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DbName       string `mapstructure:"dbname"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type JwtConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type TracerConfig struct {
	// Endpoint is the OTLP HTTP collector (host:4318). Empty disables export.
	Endpoint string `mapstructure:"endpoint"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type GroupBuyConfig struct {
	Window         time.Duration `mapstructure:"window"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// IdempotencyLease bounds how long a key may stay reserved by an unfinished request.
	IdempotencyLease time.Duration `mapstructure:"idempotency_lease"`
	JoinQPS          float64       `mapstructure:"join_qps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "optifish-groupbuy")
	v.SetDefault("service.port", 3000)
	v.SetDefault("service.grpc_port", 3001)
	v.SetDefault("service.env", "development")

	v.SetDefault("consul.address", "")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.dbname", "optifish")
	v.SetDefault("mysql.max_open_conns", 5)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "optifish")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("tracer.endpoint", "")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "optifish.groupbuy")

	v.SetDefault("groupbuy.window", 5*time.Minute)
	v.SetDefault("groupbuy.sweep_interval", time.Duration(0))
	v.SetDefault("groupbuy.idempotency_ttl", 24*time.Hour)
	v.SetDefault("groupbuy.idempotency_lease", 30*time.Second)
	v.SetDefault("groupbuy.join_qps", 50.0)
}

// LoadConfig reads config.yaml from path, then .env, then the process
// environment (mysql.host -> MYSQL_HOST). A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.Jwt.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}
	return &config, nil
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Service.Env, "production")
}
