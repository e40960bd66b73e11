package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/appops/pkg/api"
	"github.com/Mindburn-Labs/appops/pkg/appops"
	"github.com/Mindburn-Labs/appops/pkg/audit"
	"github.com/Mindburn-Labs/appops/pkg/auth"
	"github.com/Mindburn-Labs/appops/pkg/authz"
	"github.com/Mindburn-Labs/appops/pkg/config"
	"github.com/Mindburn-Labs/appops/pkg/observability"
	"github.com/Mindburn-Labs/appops/pkg/packages"
	"github.com/Mindburn-Labs/appops/pkg/registry"
	"github.com/Mindburn-Labs/appops/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// engine is the assembled service with everything that must be released on
// shutdown.
type engine struct {
	svc       *appops.Service
	telemetry *observability.Provider
	closers   []func() error
}

// close flushes the mode store first, then releases the persister and
// telemetry.
func (e *engine) close(ctx context.Context) error {
	var errs []error
	if err := e.svc.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush modes: %w", err))
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if e.telemetry != nil {
		if err := e.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runServeCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	cmd.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	cmd.StringVar(&cfg.DeviceProfile, "profile", cfg.DeviceProfile, "Device profile YAML")
	storeBackend := cmd.String("store", string(cfg.Store), "Mode store backend (memory|file|sqlite|postgres|redis|s3|gcs)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg.Store = store.Backend(*storeBackend)

	slog.SetDefault(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	logger := slog.Default().With("component", "appopsd")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, audit.NewLoggerWithWriter(stdout))
	if err != nil {
		logger.ErrorContext(ctx, "startup failed", "error", err)
		return 1
	}

	var validator *auth.TokenValidator
	if cfg.JWTSecret == "" {
		logger.WarnContext(ctx, "APPOPS_JWT_SECRET not set; every authenticated route will answer 401")
	} else {
		validator = auth.NewTokenValidator([]byte(cfg.JWTSecret))
	}
	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	srv := api.NewServer(eng.svc, api.ServerOptions{
		Validator: validator,
		Limiter:   limiter,
		Telemetry: eng.telemetry,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", "addr", cfg.Addr, "store", string(cfg.Store))
		errCh <- server.ListenAndServe()
	}()

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := eng.close(shutdownCtx); err != nil {
		logger.Error("engine shutdown", "error", err)
		code = 1
	}
	return code
}

// newEngine opens the persister, loads persisted modes, applies the device
// profile and wires telemetry.
func newEngine(ctx context.Context, cfg *config.Config, auditLog audit.Logger) (*engine, error) {
	eng := &engine{}

	var profile *config.DeviceProfile
	if cfg.DeviceProfile != "" {
		p, err := config.LoadDeviceProfile(cfg.DeviceProfile)
		if err != nil {
			return nil, err
		}
		profile = p
	} else {
		profile = &config.DeviceProfile{}
	}

	dir := packages.NewInMemoryDirectory(packages.Platform...)
	for _, p := range profile.Packages {
		if err := dir.Install(packages.Package{Name: p.Name, UID: p.UID}); err != nil {
			return nil, fmt.Errorf("install %s: %w", p.Name, err)
		}
	}
	restrictions, err := authz.NewRestrictions(profile.Restrictions)
	if err != nil {
		return nil, fmt.Errorf("restrictions: %w", err)
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.Telemetry
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.TLS = observability.TLSConfig{
		Insecure: cfg.OTLPInsecure,
		CAFile:   cfg.OTLPCAFile,
		CertFile: cfg.OTLPCertFile,
		KeyFile:  cfg.OTLPKeyFile,
	}
	telemetry, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	eng.telemetry = telemetry
	metrics, err := observability.NewEngineMetrics(telemetry.Meter())
	if err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, fmt.Errorf("engine metrics: %w", err)
	}

	persister, closePersister, err := store.OpenPersister(ctx, cfg.Backend())
	if err != nil {
		_ = telemetry.Shutdown(ctx)
		return nil, err
	}
	eng.closers = append(eng.closers, closePersister)

	catalog := registry.Default()
	modes := store.NewModeStore(catalog, persister, cfg.WriteDelay)
	eng.svc = appops.New(appops.Options{
		Catalog:      catalog,
		Store:        modes,
		Directory:    dir,
		Restrictions: restrictions,
		Recorder:     metrics,
		Audit:        auditLog,
	})

	if err := eng.svc.Load(ctx); err != nil {
		_ = eng.close(ctx)
		return nil, fmt.Errorf("load modes: %w", err)
	}
	// Profile modes seed a fresh device only; persisted modes win.
	if modes.Table().Len() == 0 {
		if err := seedModes(ctx, eng.svc, profile.Modes); err != nil {
			_ = eng.close(ctx)
			return nil, err
		}
	}
	return eng, nil
}

func seedModes(ctx context.Context, svc *appops.Service, overrides []config.ModeOverride) error {
	system := auth.System()
	for _, o := range overrides {
		mode, err := registry.ParseMode(o.Mode)
		if err != nil {
			return fmt.Errorf("profile mode for %s: %w", o.Op, err)
		}
		if o.Package == "" {
			err = svc.SetUidMode(ctx, system, o.Op, o.UID, mode)
		} else {
			err = svc.SetMode(ctx, system, o.Op, o.UID, o.Package, mode)
		}
		if err != nil {
			return fmt.Errorf("profile mode for %s uid %d: %w", o.Op, o.UID, err)
		}
	}
	return nil
}
