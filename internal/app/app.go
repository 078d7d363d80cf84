package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/config"
	"github.com/Yahiasherif002/stock-alerts-project/internal/dispatch"
	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/evaluate"
	"github.com/Yahiasherif002/stock-alerts-project/internal/events"
	"github.com/Yahiasherif002/stock-alerts-project/internal/ingest"
	"github.com/Yahiasherif002/stock-alerts-project/internal/notifier"
	"github.com/Yahiasherif002/stock-alerts-project/internal/provider"
	"github.com/Yahiasherif002/stock-alerts-project/internal/service"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProvider(name string) (provider.Provider, error) {
	pc := a.Config.Providers
	switch name {
	case "twelvedata":
		return provider.NewTwelveData(provider.TwelveDataOptions{
			APIKey:    pc.TwelveData.APIKey,
			BaseURL:   pc.TwelveData.BaseURL,
			Timeout:   pc.RequestTimeout,
			UserAgent: pc.UserAgent,
		}, a.Logger), nil
	case "fmp":
		return provider.NewFMP(provider.FMPOptions{
			APIKey:    pc.FMP.APIKey,
			BaseURL:   pc.FMP.BaseURL,
			Timeout:   pc.RequestTimeout,
			UserAgent: pc.UserAgent,
		}, a.Logger), nil
	case "alphavantage":
		return provider.NewAlphaVantage(provider.AlphaVantageOptions{
			APIKey:    pc.AlphaVantage.APIKey,
			BaseURL:   pc.AlphaVantage.BaseURL,
			Timeout:   pc.RequestTimeout,
			UserAgent: pc.UserAgent,
		}, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (a *App) newGateway() (*provider.Gateway, error) {
	providers := make([]provider.Provider, 0, len(a.Config.Providers.Order))
	for _, name := range a.Config.Providers.Order {
		p, err := a.newProvider(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return provider.NewGateway(providers, provider.GatewayOptions{
		Cooldown: a.Config.Providers.Cooldown,
	}, a.Logger), nil
}

func (a *App) newNotifier() notifier.Notifier {
	if a.Config.Notify.Channel == "telegram" {
		cfg := a.Config.Notify.Telegram
		return notifier.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return notifier.NewConsoleNotifier(nil, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the engine around the given repository.
func (a *App) newService(repo storage.Repository) (*service.Service, error) {
	gateway, err := a.newGateway()
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(0, a.Logger)
	ingestor := ingest.New(gateway, repo, bus, ingest.Options{
		Workers: a.Config.Ingest.Workers,
	}, a.Logger)
	evaluator := evaluate.New(repo, evaluate.Options{
		Workers: a.Config.Evaluate.Workers,
	}, a.Logger)
	dispatcher := dispatch.New(repo, a.newNotifier(), dispatch.Options{
		MaxAttempts:    a.Config.Dispatch.MaxAttempts,
		InitialBackoff: a.Config.Dispatch.InitialBackoff,
		MaxBackoff:     a.Config.Dispatch.MaxBackoff,
	}, a.Logger)

	return service.New(a.Config, repo, ingestor, evaluator, dispatcher, bus, a.Logger), nil
}

// Run executes the long-running ingestion and evaluation engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("environment", a.Config.App.Environment).
		Int("symbols", len(a.Config.Symbols)).
		Msg("starting alert engine")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert engine stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol string
	Limit  int
}

// TriggersOptions configure the triggers command.
type TriggersOptions struct {
	Limit int
}

// SeedOptions configure database seeding.
type SeedOptions struct {
	AlertsOwner string
}

// CleanupOptions configure retention pruning.
type CleanupOptions struct {
	Days    int
	Samples bool
}

// SimulateOptions 描述一次模拟告警的参数。
type SimulateOptions struct {
	Symbol    string
	Price     decimal.Decimal
	Threshold decimal.Decimal
	Condition domain.Condition
	Kind      domain.AlertKind
	Duration  time.Duration
}
