package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/asdmr/chronor/internal/clock"
	"github.com/asdmr/chronor/internal/config"
	"github.com/asdmr/chronor/internal/scheduler"
	"github.com/asdmr/chronor/internal/store"
	"github.com/asdmr/chronor/internal/telegram"
	"github.com/asdmr/chronor/internal/tracker"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	sched   *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting chronor",
		zap.String("http", a.cfg.HTTPAddr),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	clk := clock.New()
	trk := tracker.New(repo, clk, a.log, tracker.Defaults{
		TZ:              a.cfg.DefaultTZ,
		PollStartHour:   a.cfg.PollStartHour,
		PollEndHour:     a.cfg.PollEndHour,
		ReportHour:      a.cfg.ReportHour,
		PollIntervalMin: a.cfg.PollIntervalMin,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.router = telegram.NewRouter(a.bot, a.log, trk, clk, a.cfg.OwnerID)
	a.sched = scheduler.New(repo, a.log, a.router, clk,
		time.Duration(a.cfg.SendTimeoutSec)*time.Second, a.cfg.TickConcurrency)
	a.router.SetTicker(a.sched)

	if err := a.sched.Start(ctx); err != nil {
		a.log.Error("scheduler start failed", zap.Error(err))
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			a.sched.Stop()

			// Create a short-lived shutdown context and cancel it immediately after use.
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()

			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.repo != nil {
				_ = a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}
