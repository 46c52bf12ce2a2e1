package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/alerting"
	"metalwatch/internal/config"
	"metalwatch/internal/fetcher"
	"metalwatch/internal/ingest"
	"metalwatch/internal/scheduler"
	"metalwatch/internal/server"
	"metalwatch/internal/storage"
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

func (a *App) newQuoters() (fetcher.Quoter, fetcher.Quoter, fetcher.FXFetcher) {
	providers := a.Config.Providers

	goldAPI := fetcher.NewGoldAPI(fetcher.GoldAPIOptions{
		BaseURL:   providers.GoldAPI.BaseURL,
		Timeout:   providers.GoldAPI.RequestTimeout,
		UserAgent: providers.GoldAPI.UserAgent,
	}, a.Logger)

	var primary fetcher.Quoter = goldAPI
	if providers.Chainlink.RPCURL != "" && len(providers.Chainlink.Feeds) > 0 {
		chainlink := fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:  providers.Chainlink.RPCURL,
			Feeds:   providers.Chainlink.Feeds,
			Timeout: providers.Chainlink.RequestTimeout,
		}, a.Logger)

		routes := make(map[string]fetcher.Quoter, len(providers.Chainlink.Feeds))
		for symbol := range providers.Chainlink.Feeds {
			routes[symbol] = chainlink
		}
		primary = fetcher.NewRouter(routes, goldAPI)
	}

	var special fetcher.Quoter
	if providers.MetalPriceAPI.APIKey != "" {
		special = fetcher.NewMetalPriceAPI(fetcher.MetalPriceAPIOptions{
			BaseURL: providers.MetalPriceAPI.BaseURL,
			APIKey:  providers.MetalPriceAPI.APIKey,
			Timeout: providers.MetalPriceAPI.RequestTimeout,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("providers.metalpriceapi.api_key not set; platinum updates disabled")
	}

	var fx fetcher.FXFetcher
	if providers.ExchangeRate.APIKey != "" {
		fx = fetcher.NewExchangeRateAPI(fetcher.ExchangeRateOptions{
			BaseURL: providers.ExchangeRate.BaseURL,
			APIKey:  providers.ExchangeRate.APIKey,
			Timeout: providers.ExchangeRate.RequestTimeout,
		}, a.Logger)
	} else {
		a.Logger.Warn().Msg("providers.exchangerate.api_key not set; fx updates disabled")
	}

	return primary, special, fx
}

func (a *App) newIngest(store storage.PriceAppender) *ingest.Service {
	primary, special, fx := a.newQuoters()

	commodities := make([]ingest.Instrument, 0, len(a.Config.Tracking.Commodities)+1)
	for _, inst := range a.Config.Tracking.Commodities {
		commodities = append(commodities, ingest.Instrument{Symbol: inst.Symbol, Name: inst.Name})
	}

	return ingest.New(ingest.Options{
		Quoter:        primary,
		Special:       special,
		FX:            fx,
		Store:         store,
		Commodities:   commodities,
		SpecialSymbol: a.Config.Tracking.SpecialSymbol,
		SpecialName:   a.Config.Tracking.SpecialName,
		Currencies:    a.Config.Tracking.Currencies,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	tg := a.Config.Alerting.Telegram
	if tg.BotToken == "" || tg.ChatID == "" {
		a.Logger.Warn().Msg("telegram credentials not configured; alert delivery disabled")
		return nil
	}
	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.RequestTimeout, a.Logger)
}

func (a *App) newEvaluator(store *storage.Store) *alerting.Evaluator {
	return alerting.NewEvaluator(alerting.Options{
		History:  store,
		Ledger:   store,
		Notifier: a.newNotifier(),
		Windows:  alerting.DefaultWindows(),
		Locker:   store,
		LockKey:  a.Config.Alerting.AdvisoryLockKey,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
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

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

// Run executes the sequential orchestration mode: every scheduler tick runs
// the commodity, platinum, and fx updates in order, then evaluates alerts
// when alerting is enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newIngest(store)
	var evaluator *alerting.Evaluator
	if a.Config.Alerting.Enabled {
		evaluator = a.newEvaluator(store)
	}

	a.Logger.Info().Msg("starting update loop")
	err = sched.Run(ctx, func(ctx context.Context, tick time.Time) error {
		for _, task := range []string{ingest.TaskCommodities, ingest.TaskPlatinum, ingest.TaskFX} {
			if err := svc.RunTask(ctx, task); err != nil {
				a.Logger.Error().Err(err).Str("task", task).Msg("update task failed")
			}
		}
		if evaluator != nil {
			if _, err := evaluator.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("alert evaluation failed")
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("update loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("update loop stopped")
	return nil
}

// Serve runs the HTTP trigger surface until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.New(server.Options{
		ListenAddr: a.Config.Server.ListenAddr,
		Ingest:     a.newIngest(store),
		Evaluator:  a.newEvaluator(store),
	}, a.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down trigger server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// UpdatePrices executes a single ingestion run for the given task.
func (a *App) UpdatePrices(ctx context.Context, task string) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	return a.newIngest(store).RunTask(ctx, task)
}

// EvaluateAlerts executes a single alert evaluation run.
func (a *App) EvaluateAlerts(ctx context.Context) (int, error) {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return 0, err
	}
	defer closeStore()

	return a.newEvaluator(store).Run(ctx)
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
	Limit int
}

// ImportOptions configure the CSV backfill.
type ImportOptions struct {
	Path   string
	Cutoff time.Time
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Symbol   string
	OldPrice decimal.Decimal
	NewPrice decimal.Decimal
}
