package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merchbot/internal/auth"
	"merchbot/internal/config"
	"merchbot/internal/database"
	"merchbot/internal/ingest"
	"merchbot/internal/leaselock"
	"merchbot/internal/lifecycle"
	"merchbot/internal/locales"
	"merchbot/internal/mediagroups"
	"merchbot/internal/publisher"
	"merchbot/internal/reaper"
	"merchbot/internal/scheduler"
	"merchbot/internal/scores"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize localization bundle
	locales.Init("ru")

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Connect to MongoDB
	client, db, err := database.ConnectDB(cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()

	// Create repository instances
	listingRepo := database.NewMongoListingRepository(db)
	mediaRepo := database.NewMongoMediaRepository(db)
	slotRepo := database.NewMongoScheduleSlotRepository(db)
	channelRepo := database.NewMongoChannelRepository(db)
	leaseRepo := database.NewMongoLeaseRepository(db)
	planRepo := database.NewMongoPlanRepository(db)
	reviewRepo := database.NewMongoReviewRepository(db)
	scoreRepo := database.NewMongoScoreRepository(db)
	postLogger := database.NewMongoPostLogger(db)

	// Application lifecycle context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Bot Initialization ---
	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	// The publication channel is runtime configuration and may not exist
	// yet; everything resolves it lazily and idles until it does.
	operatorChecker, err := auth.NewOperatorChecker(bot, channelRepo)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create operator checker: %v", err)
	}

	localizer := locales.NewLocalizer("ru")

	// --- Core components ---
	machine := lifecycle.NewMachine(listingRepo, mediaRepo)

	pipeline := publisher.NewPipeline(
		listingRepo,
		mediaRepo,
		channelRepo,
		planRepo,
		machine,
		bot,
		ratelimit.New(20),
		[]publisher.PostAction{
			publisher.NewPostLogAction(postLogger),
			publisher.NewNotifyMerchantAction(bot, localizer),
		},
		cfg.DefaultPlanDays,
		cfg.StaleApprovedAfter,
	)

	expirationReaper := reaper.NewReaper(listingRepo, machine, bot, localizer, cfg.ExpiryNotifyEnabled, cfg.ArchiveAfterDays)
	scoreRecalculator := scores.NewRecalculator(reviewRepo, scoreRepo)

	dispatcher := scheduler.NewDispatcher(
		slotRepo,
		func(jobCtx context.Context) {
			if err := pipeline.PublishDue(jobCtx); err != nil {
				log.Printf("[Main] Publish firing failed: %v", err)
				sentry.CaptureException(err)
			}
		},
		cfg.SlotPollInterval,
		cfg.MisfireGrace,
	)
	if err := dispatcher.RegisterDailyJob("expiry-sweep", scheduler.SlotKey{Hour: 1}, expirationReaper.HandleExpired); err != nil {
		log.Fatalf("Failed to register expiry sweep: %v", err)
	}
	if cfg.ArchiveEnabled {
		if err := dispatcher.RegisterDailyJob("archive-sweep", scheduler.SlotKey{Hour: 2}, expirationReaper.ArchiveStale); err != nil {
			log.Fatalf("Failed to register archive sweep: %v", err)
		}
	}
	if err := dispatcher.RegisterDailyJob("score-recompute", scheduler.SlotKey{Hour: 3}, scoreRecalculator.Recalculate); err != nil {
		log.Fatalf("Failed to register score recompute: %v", err)
	}

	// --- Ingestion (lease gated) ---
	owner, err := leaselock.CurrentOwner()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to identify lease owner: %v", err)
	}
	lock := leaselock.NewLock(leaseRepo, owner, cfg.LeaseTTL, nil)

	router, err := ingest.NewRouter(bot, machine, listingRepo, operatorChecker, localizer)
	if err != nil {
		log.Fatalf("Failed to create command router: %v", err)
	}

	mediaGroupMgr := mediagroups.NewManager()
	loop, err := ingest.NewLoop(ingest.LoopDeps{
		Bot:           bot,
		Updates:       bot,
		Lock:          lock,
		RetryInterval: cfg.LeaseRetryInterval,
		Router:        router,
		Listings:      listingRepo,
		Media:         mediaRepo,
		MediaGroupMgr: mediaGroupMgr,
		Localizer:     localizer,
		Debug:         cfg.Debug,
	})
	if err != nil {
		log.Fatalf("Failed to create ingestion loop: %v", err)
	}

	// --- Start ---
	if err := dispatcher.Start(ctx); err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start dispatcher: %v", err)
	}
	go loop.Run(ctx)

	log.Printf("Worker started as %s", owner)

	// Wait for SIGINT / SIGTERM
	<-ctx.Done()

	log.Println("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	dispatcher.Stop(shutdownCtx)
	mediaGroupMgr.Shutdown()
	lock.Release(shutdownCtx)

	log.Println("Shutdown complete.")
}
