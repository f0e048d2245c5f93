package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/topmerg/rude-qa-bot/internal/bot"
	"github.com/topmerg/rude-qa-bot/internal/config"
	"github.com/topmerg/rude-qa-bot/internal/duration"
	"github.com/topmerg/rude-qa-bot/internal/handlers"
	"github.com/topmerg/rude-qa-bot/internal/handlers/moderation"
	"github.com/topmerg/rude-qa-bot/internal/infra"
	"github.com/topmerg/rude-qa-bot/internal/notification"
	"github.com/topmerg/rude-qa-bot/internal/observability"
	"github.com/topmerg/rude-qa-bot/internal/storage"
)

// Overridden at build time via -ldflags "-X main.version=...".
var version = "devel"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.RqFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}
	defer observability.Shutdown(context.Background())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		infra.GoRecoverable(-1, "process_updates", func() {
			runUpdatesLoop(ctx, cfg)
		})
		return nil
	})
	g.Go(func() error {
		select {
		case <-infra.MonitorExecutable(ctx):
			log.Errorln("executable file was modified, shutting down")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	_ = g.Wait()
	log.Infoln("bye")
}

func runUpdatesLoop(ctx context.Context, cfg config.Config) {
	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()
	log.WithField("account", botAPI.Self.UserName).Infoln("authorized")

	notify, err := notification.NewProvider()
	if err != nil {
		log.WithError(err).Fatalln("cant load notification templates")
	}

	service := bot.NewService(botAPI, cfg.ChatID)
	restrictions := storage.NewRestrictionStorage()
	newbies := storage.NewNewbieStorage()
	restrictor := moderation.NewRestrictor(service, restrictions, newbies, notify, duration.OfSeconds(cfg.PunishmentSeconds))

	gatekeeper, err := handlers.NewGatekeeper(service, newbies, notify, restrictor, cfg.SoftKickCooldownSeconds)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize gatekeeper")
	}
	bot.RegisterUpdateHandler("commands", handlers.NewCommander(service, restrictor, cfg.MinRestrictSeconds, cfg.SelfDestructSeconds, version))
	bot.RegisterUpdateHandler("gatekeeper", gatekeeper)

	go infra.GoRecoverable(-1, "gatekeeper_sweep", func() {
		gatekeeper.Sweep(ctx)
	})

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)

	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
	for {
		select {
		case err := <-errorChan:
			log.WithError(err).Fatalln("bot api get updates error")
		case update := <-updateChan:
			go infra.GoRecoverable(1, "handle_update", func() {
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			})
		case <-ctx.Done():
			log.WithError(ctx.Err()).Errorln("no more updates")
			return
		}
	}
}
