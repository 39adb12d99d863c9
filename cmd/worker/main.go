package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/unclebandit/campaign-engine/internal/audience"
	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/db"
	"github.com/unclebandit/campaign-engine/internal/dispatch"
	"github.com/unclebandit/campaign-engine/internal/logger"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/prefs"
	"github.com/unclebandit/campaign-engine/internal/queue"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/rules"
	"github.com/unclebandit/campaign-engine/internal/service"
)

// The worker consumes campaign waves and drives the dispatcher. It shares
// the service wiring with the server but exposes nothing over HTTP.
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

	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		log.Fatalw("failed to connect to AMQP", "err", err)
	}
	defer q.Close()

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

	if err := q.Subscribe(queue.TopicWaves, func(body []byte) error {
		return campaignService.HandleWave(ctx, body)
	}); err != nil {
		log.Fatalw("failed to subscribe to wave queue", "err", err)
	}

	log.Infow("worker running, waiting for waves...")
	<-ctx.Done()
}
