package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/backend"
	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/dashboardapi"
	"github.com/StayVida/SV-HotelOwner-Dashboard/internal/session"
	"github.com/StayVida/SV-HotelOwner-Dashboard/pkg/dashboard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagListenAddr     = "listen-addr"
	flagBackendURL     = "backend-url"
	flagAPIKey         = "api-key"
	flagBackendTimeout = "backend-timeout"
	flagAllowedOrigins = "allowed-origins"
	flagCookieName     = "session-cookie-name"
	flagSessionTTL     = "session-ttl"
	flagSecureCookies  = "secure-cookies"
	flagDatabaseURL    = "database-url"
	flagStoreDriver    = "store-driver"
	flagLogDevelopment = "log-development"
	envPrefix          = "DASHBOARD"
	metricsNamespace   = "stayvida_dashboard"

	defaultDatabaseURL = "sqlite:///tmp/stayvida-dashboard.db"
	storeDriverGorm    = "gorm"
	storeDriverPGX     = "pgx"
)

type runtimeConfig struct {
	API            dashboardapi.Config
	DatabaseURL    string
	StoreDriver    string
	LogDevelopment bool
}

// persistence is satisfied by both store implementations.
type persistence interface {
	dashboard.IntentStore
	session.Store
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboardd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "dashboardd",
		Short:         "StayVida hotel-owner dashboard API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagBackendURL, "", "StayVida backend base URL (required)")
	cmd.Flags().String(flagAPIKey, "", "StayVida backend API key (required)")
	cmd.Flags().Duration(flagBackendTimeout, 0, "backend request timeout (e.g. 10s)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagCookieName, "", "session cookie name")
	cmd.Flags().Duration(flagSessionTTL, 0, "lifetime of sessions whose token carries no expiry")
	cmd.Flags().Bool(flagSecureCookies, false, "mark the session cookie Secure")
	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "sqlite path or PostgreSQL connection string")
	cmd.Flags().String(flagStoreDriver, storeDriverGorm, "store implementation for PostgreSQL: gorm or pgx")
	cmd.Flags().Bool(flagLogDevelopment, false, "use a human-readable development logger")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flagNames := []string{
		flagListenAddr, flagBackendURL, flagAPIKey, flagBackendTimeout, flagAllowedOrigins,
		flagCookieName, flagSessionTTL, flagSecureCookies, flagDatabaseURL, flagStoreDriver, flagLogDevelopment,
	}
	for _, flagName := range flagNames {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	if !v.IsSet(flagBackendURL) {
		return fmt.Errorf("%s is required", flagBackendURL)
	}
	if !v.IsSet(flagAPIKey) {
		return fmt.Errorf("%s is required", flagAPIKey)
	}

	cfg.API = dashboardapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		BackendURL:        strings.TrimSpace(v.GetString(flagBackendURL)),
		APIKey:            strings.TrimSpace(v.GetString(flagAPIKey)),
		BackendTimeout:    v.GetDuration(flagBackendTimeout),
		AllowedOrigins:    dashboardapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagCookieName)),
		SessionTTL:        v.GetDuration(flagSessionTTL),
		SecureCookies:     v.GetBool(flagSecureCookies),
	}
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreDriver)))
	switch cfg.StoreDriver {
	case "":
		cfg.StoreDriver = storeDriverGorm
	case storeDriverGorm, storeDriverPGX:
	default:
		return fmt.Errorf("unsupported %s %q", flagStoreDriver, cfg.StoreDriver)
	}
	cfg.LogDevelopment = v.GetBool(flagLogDevelopment)

	return cfg.API.Validate()
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL, cfg.StoreDriver)
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := backend.NewPrometheusCollector(metricsNamespace, registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.API.BackendURL,
		APIKey:  cfg.API.APIKey,
		Timeout: cfg.API.BackendTimeout,
	}, backend.WithCollector(collector), backend.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("backend client init: %w", err)
	}

	service, err := dashboard.NewService(client, store, dashboard.WithOperationLogger(dashboardapi.NewZapOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("dashboard service init: %w", err)
	}
	sessions, err := session.NewManager(store, session.WithTTL(cfg.API.SessionTTL), session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("session manager init: %w", err)
	}

	logger.Info("dashboard starting",
		zap.String("listen_addr", cfg.API.ListenAddr),
		zap.String("store_driver", cfg.StoreDriver),
	)
	return dashboardapi.Run(ctx, cfg.API, dashboardapi.Dependencies{
		Service:       service,
		Sessions:      sessions,
		Authenticator: client,
		Gatherer:      registry,
		Logger:        logger,
	})
}
