package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/campaign-engine/internal/audience"
	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/controller"
	"github.com/unclebandit/campaign-engine/internal/db"
	"github.com/unclebandit/campaign-engine/internal/dispatch"
	"github.com/unclebandit/campaign-engine/internal/logger"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/prefs"
	"github.com/unclebandit/campaign-engine/internal/queue"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/rules"
	"github.com/unclebandit/campaign-engine/internal/schedule"
	"github.com/unclebandit/campaign-engine/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New()
	defer log.Sync()

	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatalw("failed to connect to DB", "err", err)
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	recipientRepo := &repository.RecipientRepository{DB: database}
	audienceRepo := &repository.AudienceRepository{DB: database}
	templateRepo := &repository.TemplateRepository{DB: database}
	prefRepo := &repository.PreferenceRepository{DB: database}
	poolRepo := &repository.PoolRepository{DB: database, PageSize: cfg.PoolPageSize}

	// AMQP carries waves to the worker; without a broker the server handles
	// its own waves in-process
	var q queue.Queue
	if amqpQ, err := queue.DialAMQP(cfg.AMQPURL, log); err == nil {
		defer amqpQ.Close()
		q = amqpQ
	} else {
		log.Warnw("⚠️ AMQP unavailable, using in-memory queue", "err", err)
		q = queue.NewInMemoryQueue(log)
	}

	mock := &dispatch.MockSender{SuccessRate: 0.9}
	senders := dispatch.SenderRegistry{
		model.ChannelInApp: mock,
		model.ChannelEmail: mock,
		model.ChannelSMS:   mock,
		model.ChannelPush:  mock,
	}

	dispatcher := &dispatch.Dispatcher{
		Recipients:  recipientRepo,
		Prefs:       prefRepo,
		Attrs:       poolRepo,
		Senders:     senders,
		Gate:        prefs.NewGate(cfg.PrefsDefaultAllow),
		Workers:     cfg.DispatchWorkers,
		MaxRetries:  cfg.SendMaxRetries,
		BackoffBase: cfg.SendBackoffBase,
		Log:         log,
	}

	campaignService := &service.CampaignService{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Audiences:  audienceRepo,
		Templates:  templateRepo,
		Queue:      q,
		Resolver:   audience.NewResolver(rules.NewEvaluator(log), log),
		Dispatcher: dispatcher,
		Attrs:      poolRepo,
		NewScanner: func() audience.RecipientSource { return poolRepo.Scanner() },
		Log:        log,
	}
	dispatcher.Probe = campaignService.CampaignStatus

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, ok := q.(*queue.InMemoryQueue); ok {
		if err := q.Subscribe(queue.TopicWaves, func(body []byte) error {
			return campaignService.HandleWave(ctx, body)
		}); err != nil {
			log.Fatalw("failed to subscribe to wave queue", "err", err)
		}
	}

	scheduler := schedule.NewScheduler(campaignRepo, campaignService.StartRun, cfg.SchedulerTick, log)
	go scheduler.Run(ctx)

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	audienceController := &controller.AudienceController{
		Audiences:       audienceRepo,
		CampaignService: campaignService,
	}

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaignDetails)
	r.Put("/campaigns/{id}", campaignController.UpdateCampaign)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Get("/campaigns/{id}/metrics", campaignController.GetMetrics)
	r.Get("/campaigns/{id}/recipients", campaignController.ListRecipients)
	r.Post("/campaigns/{id}/preview", campaignController.PersonalizedPreview)

	// Audience routes
	r.Post("/audiences", audienceController.CreateAudience)
	r.Get("/audiences/{id}", audienceController.GetAudience)
	r.Post("/audiences/{id}/resolve", audienceController.ResolveAudience)

	r.Handle("/metrics", promhttp.Handler())

	log.Infow("🚀 server running", "addr", cfg.HTTPAddr)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalw("server stopped", "err", err)
	}
}
