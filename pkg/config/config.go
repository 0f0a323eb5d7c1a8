package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "etcd3"
	backendAddr  = "127.0.0.1:2379"
	backendPath  = "/config/aura-payments.yaml"
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Timezone   string `mapstructure:"TIMEZONE"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc | http
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
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
		Metrics bool `mapstructure:"METRICS"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Paystack struct {
		BaseURL   string        `mapstructure:"BASE_URL"`
		SecretKey string        `mapstructure:"SECRET_KEY"`
		Timeout   time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"PAYSTACK"`
	Webhook struct {
		// Secrets maps a provider name to its signing secret.
		Secrets map[string]string `mapstructure:"SECRETS"`
	} `mapstructure:"WEBHOOK"`
	RateLimit struct {
		Limit  int           `mapstructure:"LIMIT"`
		Window time.Duration `mapstructure:"WINDOW"`
	} `mapstructure:"RATE_LIMIT"`
	Workers Workers `mapstructure:"WORKERS"`
}

type Workers struct {
	LeaseTTL time.Duration `mapstructure:"LEASE_TTL"`
	Refund   struct {
		Cron             string        `mapstructure:"CRON"`
		BatchSize        int           `mapstructure:"BATCH_SIZE"`
		DeadLetterBatch  int           `mapstructure:"DEAD_LETTER_BATCH"`
		DeadLetterWindow time.Duration `mapstructure:"DEAD_LETTER_WINDOW"`
		MaxAttempts      int           `mapstructure:"MAX_ATTEMPTS"`
	} `mapstructure:"REFUND"`
	Dispute struct {
		Cron           string        `mapstructure:"CRON"`
		BatchSize      int           `mapstructure:"BATCH_SIZE"`
		TTL            time.Duration `mapstructure:"TTL"`
		EscalateAfter  time.Duration `mapstructure:"ESCALATE_AFTER"`
		EvidencePrefix string        `mapstructure:"EVIDENCE_PREFIX"`
	} `mapstructure:"DISPUTE"`
	Finance struct {
		Cron         string  `mapstructure:"CRON"`
		ProcessorFee float64 `mapstructure:"PROCESSOR_FEE"`
		PlatformFee  float64 `mapstructure:"PLATFORM_FEE"`
	} `mapstructure:"FINANCE"`
	SLA struct {
		Cron        string        `mapstructure:"CRON"`
		Window      time.Duration `mapstructure:"WINDOW"`
		OnTimeAfter time.Duration `mapstructure:"ON_TIME_AFTER"`
		Concurrency int           `mapstructure:"CONCURRENCY"`
	} `mapstructure:"SLA"`
}

// ApplyDefaults fills zero values with the production defaults.
func (w *Workers) ApplyDefaults() {
	if w.LeaseTTL == 0 {
		w.LeaseTTL = 10 * time.Minute
	}
	if w.Refund.Cron == "" {
		w.Refund.Cron = "*/15 * * * *"
	}
	if w.Refund.BatchSize == 0 {
		w.Refund.BatchSize = 50
	}
	if w.Refund.DeadLetterBatch == 0 {
		w.Refund.DeadLetterBatch = 10
	}
	if w.Refund.DeadLetterWindow == 0 {
		w.Refund.DeadLetterWindow = 24 * time.Hour
	}
	if w.Refund.MaxAttempts == 0 {
		w.Refund.MaxAttempts = 5
	}
	if w.Dispute.Cron == "" {
		w.Dispute.Cron = "0 * * * *"
	}
	if w.Dispute.BatchSize == 0 {
		w.Dispute.BatchSize = 50
	}
	if w.Dispute.TTL == 0 {
		w.Dispute.TTL = 14 * 24 * time.Hour
	}
	if w.Dispute.EscalateAfter == 0 {
		w.Dispute.EscalateAfter = 3 * 24 * time.Hour
	}
	if w.Dispute.EvidencePrefix == "" {
		w.Dispute.EvidencePrefix = "disputes"
	}
	if w.Finance.Cron == "" {
		w.Finance.Cron = "0 1 * * *"
	}
	if w.Finance.ProcessorFee == 0 {
		w.Finance.ProcessorFee = 0.0135
	}
	if w.Finance.PlatformFee == 0 {
		w.Finance.PlatformFee = 0.15
	}
	if w.SLA.Cron == "" {
		w.SLA.Cron = "30 2 * * *"
	}
	if w.SLA.Window == 0 {
		w.SLA.Window = 30 * 24 * time.Hour
	}
	if w.SLA.OnTimeAfter == 0 {
		w.SLA.OnTimeAfter = 14 * 24 * time.Hour
	}
	if w.SLA.Concurrency == 0 {
		w.SLA.Concurrency = 4
	}
}

// WebhookSecret returns the signing secret configured for provider.
func (c *Config) WebhookSecret(provider string) string {
	if v, ok := c.Webhook.Secrets[strings.ToLower(provider)]; ok && v != "" {
		return v
	}
	if strings.EqualFold(provider, "paystack") {
		return c.Paystack.SecretKey
	}
	return ""
}

// Location returns the configured business timezone, UTC when unset or invalid.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		zap.L().Warn("invalid timezone, falling back to UTC", zap.String("timezone", c.Timezone), zap.Error(err))
		return time.UTC
	}
	return loc
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Lifecycle fx.Lifecycle  `optional:"true"`
	Vault     *vault.Client `optional:"true"`
}

func LoadConfig(p Params) *Config {
	_ = godotenv.Load()

	config.SetConfigName("config")
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}
	cfg.Workers.ApplyDefaults()

	if p.Vault != nil {
		applySecrets(context.Background(), p.Vault, &cfg)
	}

	configHolder.Store(&cfg)
	return &cfg
}

// LoadRemote reads config from a remote key/value store and keeps a watcher
// bound to the fx lifecycle so it stops with the application.
func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}
	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.String("backend", backend), zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}
	cfg.Workers.ApplyDefaults()

	if p.Vault != nil {
		applySecrets(context.Background(), p.Vault, &cfg)
	}
	configHolder.Store(&cfg)

	if p.Lifecycle != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					watchRemote(ctx, p.Vault)
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				<-done
				return nil
			},
		})
	}

	return &cfg
}

// Current returns the most recently loaded config.
func Current() *Config {
	cfg, _ := configHolder.Load().(*Config)
	return cfg
}

func watchRemote(ctx context.Context, vc *vault.Client) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := config.WatchRemoteConfig(); err != nil {
			zap.L().Error("unable to read remote config", zap.Error(err))
			continue
		}

		var next Config
		if err := config.Unmarshal(&next); err != nil {
			zap.L().Error("unable to unmarshal remote config", zap.Error(err))
			continue
		}
		next.Workers.ApplyDefaults()
		if vc != nil {
			applySecrets(ctx, vc, &next)
		}
		configHolder.Store(&next)
	}
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	cfg.Database.User = get("postgres_user")
	cfg.Database.Password = get("postgres_password")
	cfg.Redis.Password = get("redis_password")
	cfg.Paystack.SecretKey = get("paystack_secret_key")
	cfg.Minio.AccessKey = get("minio_access_key")
	cfg.Minio.SecretKey = get("minio_secret_key")
	if v := get("webhook_secret_paystack"); v != "" {
		if cfg.Webhook.Secrets == nil {
			cfg.Webhook.Secrets = map[string]string{}
		}
		cfg.Webhook.Secrets["paystack"] = v
	}
}
