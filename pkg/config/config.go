package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"offerwall/pkg/hashistack/secretmanager"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Path           string `mapstructure:"PATH"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		Tracing        bool   `mapstructure:"TRACING"`
		Metrics        struct {
			Enable bool   `mapstructure:"ENABLE"`
			Port   uint32 `mapstructure:"PORT"`
		} `mapstructure:"METRICS"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	Auth struct {
		JWTSecret string `mapstructure:"JWT_SECRET"`
		Issuer    string `mapstructure:"ISSUER"`
	} `mapstructure:"AUTH"`
	Payout struct {
		MinimumAmount string  `mapstructure:"MINIMUM_AMOUNT"`
		FeePercentage float64 `mapstructure:"FEE_PERCENTAGE"`
		DefaultMethod string  `mapstructure:"DEFAULT_METHOD"`
	} `mapstructure:"PAYOUT"`
	Providers struct {
		Lootably struct {
			PostbackSecret string `mapstructure:"POSTBACK_SECRET"`
		} `mapstructure:"LOOTABLY"`
	} `mapstructure:"PROVIDERS"`
	Callback struct {
		SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
		StaleAfter    time.Duration `mapstructure:"STALE_AFTER"`
		BatchSize     int           `mapstructure:"BATCH_SIZE"`
	} `mapstructure:"CALLBACK"`
	Worker struct {
		Concurrency int `mapstructure:"CONCURRENCY"`
	} `mapstructure:"WORKER"`
	Vault struct {
		Enable    bool   `mapstructure:"ENABLE"`
		MountPath string `mapstructure:"MOUNT_PATH"`
	} `mapstructure:"VAULT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Secrets secretmanager.Reader `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "offerwall")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("OTEL.PROTOCOL", "grpc")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.PATH", "offerwall.db")
	v.SetDefault("DATABASE.AUTO_MIGRATE", true)
	v.SetDefault("DATABASE.METRICS.PORT", 9100)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("AUTH.ISSUER", "offerwall")
	v.SetDefault("PAYOUT.MINIMUM_AMOUNT", "5.00")
	v.SetDefault("PAYOUT.FEE_PERCENTAGE", 2.0)
	v.SetDefault("PAYOUT.DEFAULT_METHOD", "paypal")
	v.SetDefault("CALLBACK.SWEEP_INTERVAL", time.Minute)
	v.SetDefault("CALLBACK.STALE_AFTER", 5*time.Minute)
	v.SetDefault("CALLBACK.BATCH_SIZE", 100)
	v.SetDefault("WORKER.CONCURRENCY", 10)
	v.SetDefault("VAULT.MOUNT_PATH", "secret")

	// env-only keys must be known to viper before Unmarshal picks them up
	for _, key := range []string{
		"APP_VERSION", "PYROSCOPE.ADDR", "TLS.ENABLE", "TLS.CERT_PATH", "TLS.KEY_PATH", "OTEL.ADDR", "OTEL.INSECURE",
		"DATABASE.HOST", "DATABASE.PORT", "DATABASE.DBNAME", "DATABASE.USER", "DATABASE.PASSWORD",
		"DATABASE.TRACING", "DATABASE.METRICS.ENABLE", "REDIS.PASSWORD", "REDIS.DB",
		"AUTH.JWT_SECRET", "PROVIDERS.LOOTABLY.POSTBACK_SECRET", "VAULT.ENABLE",
	} {
		v.SetDefault(key, "")
	}
}

// LoadConfig reads .env, config.yaml and the process environment, in that
// order of increasing precedence. Secrets are overridden from Vault when a
// client is wired and VAULT.ENABLE is set.
func LoadConfig(p Params) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p.Secrets != nil && cfg.Vault.Enable {
		if err := loadSecrets(context.Background(), p.Secrets, &cfg); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func loadSecrets(ctx context.Context, secrets secretmanager.Reader, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	data, err := secrets.ReadKV(ctx, cfg.Vault.MountPath, cfg.AppEnv)
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		return fmt.Errorf("read vault secrets: %w", err)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, current string) string {
		if val, ok := data[key].(string); ok && val != "" {
			return val
		}
		return current
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Auth.JWTSecret = get("jwt_secret", cfg.Auth.JWTSecret)
	cfg.Providers.Lootably.PostbackSecret = get("lootably_postback_secret", cfg.Providers.Lootably.PostbackSecret)

	return nil
}
