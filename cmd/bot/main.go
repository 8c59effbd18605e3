// Command bot runs the clan registration bridge: the Discord gateway, the
// slash-command layer, the hourly verification loop, and a small HTTP
// listener for health and metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"clanbridge/internal/announce"
	"clanbridge/internal/approval"
	"clanbridge/internal/clan"
	"clanbridge/internal/guild"
	"clanbridge/internal/platform/config"
	"clanbridge/internal/platform/httpserver"
	"clanbridge/internal/platform/logger"
	"clanbridge/internal/platform/metrics"
	"clanbridge/internal/reconcile"
	"clanbridge/internal/registry"
	"clanbridge/internal/schedule"
	"clanbridge/internal/storage"
	discordtransport "clanbridge/internal/transport/discord"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(cfg.DataDir, log.With("component", "storage"))
	if err != nil {
		return err
	}
	settings := registry.LoadConfig(store, log.With("component", "registry"))
	ledger := registry.LoadLedger(store, log.With("component", "registry"))
	m := metrics.New()

	session := clan.NewSession(
		clan.NewHTTPClient(cfg.ClanEmail, cfg.ClanPassword),
		clan.WithLogger(log.With("component", "clan")),
	)

	ds, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return err
	}
	ds.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	g := guild.NewDiscord(ds)

	announcer := announce.New(g, func() string {
		if s := settings.Current(); s != nil {
			return s.LogChannelID
		}
		return ""
	}, log.With("component", "announce"))

	engine := reconcile.New(settings, ledger, session, g, announcer,
		reconcile.WithLogger(log.With("component", "reconcile")),
		reconcile.WithMetrics(m),
	)
	approvals := approval.New(settings, ledger, session, g, announcer, engine,
		approval.WithLogger(log.With("component", "approval")),
		approval.WithMetrics(m),
	)
	verifier := schedule.New(settings, ledger, session, g, engine,
		schedule.WithLogger(log.With("component", "schedule")),
		schedule.WithMetrics(m),
		schedule.WithInterval(cfg.VerifyInterval),
		schedule.WithPacing(cfg.VerifyPacing),
	)

	setup := discordtransport.NewSetup(settings, g, session, announcer, log.With("component", "setup"))
	handler := discordtransport.NewHandler(setup, approvals,
		discordtransport.WithLogger(log.With("component", "commands")),
	)
	handler.Bind(ds)

	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()
	log.Info("discord gateway connected")

	srv := httpserver.New(cfg.HealthAddr)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		// A failed bootstrap is not fatal: every caller tolerates a dead
		// session and triggers an async reset on the next auth error.
		if err := session.Connect(ctx); err != nil {
			log.Error("clan API session bootstrap failed", "error", err)
		}
		return nil
	})

	group.Go(func() error {
		return ignoreCancel(announcer.Run(ctx))
	})

	group.Go(func() error {
		return ignoreCancel(verifier.Run(ctx))
	})

	group.Go(func() error {
		log.Info("http listener started", "addr", cfg.HealthAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("clanbridge running")
	return group.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
