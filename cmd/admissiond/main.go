package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"tenantgate/internal/admin"
	"tenantgate/internal/admission"
	"tenantgate/internal/cache"
	"tenantgate/internal/device"
	"tenantgate/internal/graceful"
	"tenantgate/internal/resp"
	"tenantgate/internal/validate"
	"tenantgate/pkg/config"
	"tenantgate/pkg/log"
	"tenantgate/pkg/log/zap"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Admin  admin.Config `mapstructure:"admin"`
	API    APIConfig    `mapstructure:"api"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Policy PolicyConfig `mapstructure:"policy"`
	Pool   PoolConfig   `mapstructure:"pool"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Prod bool   `mapstructure:"isProd"`
}

type APIConfig struct {
	Base           string        `mapstructure:"base" env:"API_BASE"`
	ValidatePath   string        `mapstructure:"validatePath"`
	BindDevicePath string        `mapstructure:"bindDevicePath"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Host     string        `mapstructure:"host" env:"CACHE_HOST"`
	Port     int           `mapstructure:"port" env:"CACHE_PORT"`
	Password string        `mapstructure:"password" env:"CACHE_PASSWORD"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PolicyConfig struct {
	ValidTTL         time.Duration `mapstructure:"validTtl"`
	NegativeTTL      time.Duration `mapstructure:"negativeTtl"`
	DeviceSessionTTL time.Duration `mapstructure:"deviceSessionTtl"`
	MaxDevices       int           `mapstructure:"maxDevices" env:"MAX_DEVICES"`
	BlockDuration    time.Duration `mapstructure:"blockDuration"`
}

type PoolConfig struct {
	MaxConns int `mapstructure:"maxConns" env:"CACHE_MAX_CONNS"`
}

// Validate enforces the options the daemon cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.API.Base == "" {
		errs = append(errs, errors.New("api.base is required"))
	}
	if c.Cache.Host == "" {
		errs = append(errs, errors.New("cache.host is required"))
	}
	if c.Cache.Port == 0 {
		errs = append(errs, errors.New("cache.port is required"))
	}
	return errors.Join(errs...)
}

func main() {
	cfg := mustLoadConfig()
	initLogger(cfg.App)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Initializing admission controller...")

	cacheAddr := net.JoinHostPort(cfg.Cache.Host, strconv.Itoa(cfg.Cache.Port))
	pool := cache.NewPool(resp.Config{
		Addr:     cacheAddr,
		Password: cfg.Cache.Password,
		Timeout:  cfg.Cache.Timeout,
	}, cfg.Pool.MaxConns)
	store := cache.New(pool, log.Default())

	authority := validate.NewAPIClient(validate.APIConfig{
		Base:           cfg.API.Base,
		ValidatePath:   cfg.API.ValidatePath,
		BindDevicePath: cfg.API.BindDevicePath,
		Timeout:        cfg.API.Timeout,
	})
	validator := validate.NewValidator(store, authority, validate.Config{
		ValidTTL:    cfg.Policy.ValidTTL,
		NegativeTTL: cfg.Policy.NegativeTTL,
	}, log.Default())

	enforcer := device.NewEnforcer(store, validator, device.Config{
		MaxDevices:    cfg.Policy.MaxDevices,
		SessionTTL:    cfg.Policy.DeviceSessionTTL,
		BlockDuration: cfg.Policy.BlockDuration,
	}, log.Default())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	gate := admission.NewGate(store, validator, enforcer, admission.NewMetrics(registry), log.Default())

	adminServer := admin.NewServer(cfg.Admin, gate, store, registry, log.Default())

	if err := store.Ping(ctx); err != nil {
		log.Warnf("Cache backend not reachable at startup: %v", err)
	}

	mgr := graceful.NewManager(graceful.WithTimeout(10 * time.Second))
	mgr.Register(adminServer)
	mgr.Register(pool)

	go func() {
		if err := adminServer.Start(ctx); err != nil {
			log.Errorf("Admin server exited: %v", err)
			cancel()
		}
	}()

	if err := mgr.Wait(ctx); err != nil {
		log.Errorf("Shutdown finished with errors: %v", err)
	}

	log.Info("Admission controller stopped")
}

func mustLoadConfig() *Config {
	return config.MustLoad[Config]("cfg/admissiond.yml",
		config.WithEnvMapper[Config](applyConfigMapping))
}

func initLogger(cfg AppConfig) {
	logger, err := zap.New(
		zap.WithName(cfg.Name),
		zap.WithProd(cfg.Prod),
	)
	if err != nil {
		log.Errorf("Failed to initialize zap logger: %v", err)
		return
	}

	log.SetLogger(logger)
}

func applyConfigMapping(v *viper.Viper) error {
	bindings := map[string]string{
		"admin.port":        "ADMIN_PORT",
		"api.base":          "API_BASE",
		"cache.host":        "CACHE_HOST",
		"cache.port":        "CACHE_PORT",
		"cache.password":    "CACHE_PASSWORD",
		"policy.maxDevices": "MAX_DEVICES",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}
