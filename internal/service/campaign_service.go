package service

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-engine/internal/analytics"
	"github.com/unclebandit/campaign-engine/internal/audience"
	"github.com/unclebandit/campaign-engine/internal/dispatch"
	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/queue"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/schedule"
	"github.com/unclebandit/campaign-engine/internal/throttle"
)

// CampaignService orchestrates the engine: audience resolution, the
// campaign status machine, wave publication and completion bookkeeping.
type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Audiences  repository.AudienceRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Queue      queue.Queue
	Resolver   *audience.Resolver
	Dispatcher *dispatch.Dispatcher
	Attrs      dispatch.AttributeSource
	// NewScanner starts a streaming pass over the recipient pool.
	NewScanner func() audience.RecipientSource
	Log        *zap.SugaredLogger

	// Now is swappable for tests.
	Now func() time.Time

	// limiters is the per-campaign single point of truth for "sends this
	// window", shared by every wave of a campaign in this process.
	limitersMu sync.Mutex
	limiters   map[string]*throttle.Limiter
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) limiterFor(c *model.Campaign) *throttle.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	if s.limiters == nil {
		s.limiters = make(map[string]*throttle.Limiter)
	}
	l, ok := s.limiters[c.ID]
	if !ok {
		l = throttle.NewLimiter(c.Schedule.Throttling)
		s.limiters[c.ID] = l
	}
	return l
}

// ==================== campaign CRUD ====================

type CreateCampaignInput struct {
	Name          string                 `json:"name"`
	Channels      []model.Channel        `json:"channels"`
	AudienceID    string                 `json:"audience_id"`
	TemplateID    *string                `json:"template_id,omitempty"`
	CustomContent *string                `json:"custom_content,omitempty"`
	Category      string                 `json:"category"`
	Schedule      model.CampaignSchedule `json:"schedule"`
}

func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("campaign name is required")
	}
	if len(in.Channels) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	for _, ch := range in.Channels {
		switch ch {
		case model.ChannelInApp, model.ChannelEmail, model.ChannelSMS, model.ChannelPush:
		default:
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}
	if in.TemplateID == nil && in.CustomContent == nil {
		return nil, fmt.Errorf("either template_id or custom_content is required")
	}
	if _, err := s.Audiences.GetByID(in.AudienceID); err != nil {
		return nil, err
	}
	if err := validateSchedule(&in.Schedule); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:          in.Name,
		Status:        model.CampaignDraft,
		Channels:      in.Channels,
		AudienceID:    in.AudienceID,
		TemplateID:    in.TemplateID,
		CustomContent: in.CustomContent,
		Category:      in.Category,
		Schedule:      in.Schedule,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func validateSchedule(sc *model.CampaignSchedule) error {
	switch sc.Type {
	case model.ScheduleImmediate:
		return nil
	case model.ScheduleScheduled:
		if sc.ScheduledAt == nil {
			return fmt.Errorf("scheduled campaigns need scheduled_at")
		}
		return nil
	case model.ScheduleRecurring:
		rec := sc.Recurrence
		if rec == nil {
			return fmt.Errorf("recurring campaigns need a recurrence")
		}
		switch rec.Frequency {
		case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
		default:
			return fmt.Errorf("unknown recurrence frequency %q", rec.Frequency)
		}
		if rec.Interval < 1 {
			return fmt.Errorf("recurrence interval must be >= 1")
		}
		return nil
	}
	return fmt.Errorf("unknown schedule type %q", sc.Type)
}

// UpdateCampaign edits a draft. Anything past draft is immutable except
// through the lifecycle operations.
func (s *CampaignService) UpdateCampaign(id string, in CreateCampaignInput) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, fmt.Errorf("only draft campaigns can be edited, status is %s", c.Status)
	}
	if err := validateSchedule(&in.Schedule); err != nil {
		return nil, err
	}
	if in.AudienceID != "" && in.AudienceID != c.AudienceID {
		if _, err := s.Audiences.GetByID(in.AudienceID); err != nil {
			return nil, err
		}
		c.AudienceID = in.AudienceID
	}
	c.Name = in.Name
	c.Channels = in.Channels
	c.TemplateID = in.TemplateID
	c.CustomContent = in.CustomContent
	c.Category = in.Category
	c.Schedule = in.Schedule
	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(page, pageSize int, status, channel string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Campaigns.ListCampaigns(offset, pageSize, status, channel)
	if err != nil {
		return nil, nil, err
	}
	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

type CampaignDetails struct {
	Campaign model.Campaign        `json:"campaign"`
	Metrics  model.CampaignMetrics `json:"metrics"`
}

func (s *CampaignService) GetCampaignDetails(id string) (*CampaignDetails, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	metrics, err := s.GetMetrics(id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *c, Metrics: metrics}, nil
}

// ==================== lifecycle ====================

// StartCampaign is the approval step. Immediate campaigns begin sending at
// once; scheduled and recurring ones arm the scheduler. A recurring
// schedule whose end date already passed completes as a logged no-op.
func (s *CampaignService) StartCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, &appErrors.ErrInvalidTransition{From: string(c.Status), To: "start"}
	}

	switch c.Schedule.Type {
	case model.ScheduleImmediate:
		if err := s.StartRun(ctx, c); err != nil {
			return nil, err
		}
		return c, nil

	case model.ScheduleScheduled:
		if err := schedule.Apply(c, model.CampaignScheduled); err != nil {
			return nil, err
		}
		return c, s.Campaigns.Update(c)

	case model.ScheduleRecurring:
		firstFire := s.now()
		if c.Schedule.ScheduledAt != nil {
			firstFire = *c.Schedule.ScheduledAt
		}
		rec := c.Schedule.Recurrence
		if rec.EndDate != nil && firstFire.After(*rec.EndDate) {
			// SchedulingConflict: the series can never fire
			if s.Log != nil {
				s.Log.Infow("recurring schedule already past its end date, completing as no-op",
					"campaign_id", c.ID, "end_date", rec.EndDate)
			}
			c.Status = model.CampaignSent
			return c, s.Campaigns.Update(c)
		}
		c.Schedule.ScheduledAt = &firstFire
		if err := schedule.Apply(c, model.CampaignScheduled); err != nil {
			return nil, err
		}
		return c, s.Campaigns.Update(c)
	}
	return nil, fmt.Errorf("unknown schedule type %q", c.Schedule.Type)
}

// StartRun fires one occurrence: resolve, snapshot, publish the wave.
// Resolution happens before any status change, so a pool outage leaves the
// campaign in draft or scheduled exactly as it was.
func (s *CampaignService) StartRun(ctx context.Context, c *model.Campaign) error {
	if _, err := s.templateFor(c); err != nil {
		return s.failCampaign(c, err)
	}

	aud, err := s.Audiences.GetByID(c.AudienceID)
	if err != nil {
		return err
	}
	res, err := s.Resolver.Resolve(ctx, aud, s.NewScanner())
	if err != nil {
		if s.Log != nil {
			s.Log.Warnw("⚠️ audience resolution failed, campaign untouched", "campaign_id", c.ID, "err", err)
		}
		return err
	}
	if err := s.Audiences.UpdateCache(aud.ID, res.Size, *aud.LastCalculatedAt); err != nil {
		return err
	}

	if err := schedule.Apply(c, model.CampaignSending); err != nil {
		return err
	}
	now := s.now()
	c.LastFiredAt = &now
	if err := s.Campaigns.Update(c); err != nil {
		return err
	}

	// snapshot: the authoritative recipient set for this run, immune to
	// later audience drift
	rows := make([]*model.CampaignRecipient, len(res.Recipients))
	userIDs := make([]string, len(res.Recipients))
	for i, rec := range res.Recipients {
		rows[i] = &model.CampaignRecipient{
			CampaignID: c.ID,
			UserID:     rec.UserID,
			Channels:   c.Channels,
		}
		userIDs[i] = rec.UserID
	}
	if err := s.Recipients.SnapshotBatch(rows); err != nil {
		return err
	}

	if s.Log != nil {
		s.Log.Infow("🚀 campaign run started", "campaign_id", c.ID, "recipients", len(userIDs))
	}
	if len(userIDs) == 0 {
		return s.finishRun(c)
	}
	return s.publishWave(c.ID, userIDs)
}

func (s *CampaignService) publishWave(campaignID string, userIDs []string) error {
	body, err := queue.WaveJob{CampaignID: campaignID, UserIDs: userIDs}.Encode()
	if err != nil {
		return err
	}
	return s.Queue.Publish(queue.TopicWaves, body)
}

// HandleWave consumes one wave job: slice to the throttle budget, dispatch,
// requeue the deferred remainder for the next window, close out the run
// when nothing is left.
func (s *CampaignService) HandleWave(ctx context.Context, body []byte) error {
	job, err := queue.DecodeWaveJob(body)
	if err != nil {
		if s.Log != nil {
			s.Log.Warnw("⚠️ invalid wave job", "err", err)
		}
		return nil // malformed payloads are dropped, not retried
	}

	c, err := s.Campaigns.GetByID(job.CampaignID)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignSending {
		// cancelled, paused or already finished: pending rows stay pending,
		// resume or the next occurrence picks them up
		return nil
	}

	tmpl, err := s.templateFor(c)
	if err != nil {
		return s.failCampaign(c, err)
	}

	limiter := s.limiterFor(c)
	wave, deferred := schedule.SliceWave(job.UserIDs, limiter)

	res := s.Dispatcher.Run(ctx, c, tmpl, wave, limiter)
	deferred = append(res.DeferredUsers, deferred...)

	if s.Log != nil {
		s.Log.Infow("wave dispatched", "campaign_id", c.ID,
			"sent", res.Dispatched, "failed", res.Failed, "suppressed", res.Suppressed,
			"skipped", res.Skipped, "deferred", len(deferred))
	}

	// re-check: the wave may have stopped early on pause/cancel
	cur, err := s.Campaigns.GetByID(c.ID)
	if err != nil {
		return err
	}
	if cur.Status != model.CampaignSending {
		return nil
	}

	if len(deferred) > 0 {
		s.requeueDeferred(cur, limiter, deferred)
		return nil
	}
	return s.finishRun(cur)
}

// requeueDeferred puts throttle leftovers back on the queue once the
// rolling window frees up. Deferral is not an error and drops nothing.
func (s *CampaignService) requeueDeferred(c *model.Campaign, limiter *throttle.Limiter, userIDs []string) {
	wait := time.Until(limiter.NextWindow())
	if wait < 0 {
		wait = 0
	}
	if s.Log != nil {
		s.Log.Infow("throttle budget exhausted, deferring to next window",
			"campaign_id", c.ID, "deferred", len(userIDs), "wait", wait)
	}
	campaignID := c.ID
	time.AfterFunc(wait, func() {
		if err := s.publishWave(campaignID, userIDs); err != nil && s.Log != nil {
			s.Log.Errorw("failed to requeue deferred wave", "campaign_id", campaignID, "err", err)
		}
	})
}

// finishRun closes one occurrence: terminal sent for one-shot campaigns,
// re-armed for the next occurrence of a recurring one. The next fire time
// is anchored to the previous fire, not to now, so the series never drifts.
func (s *CampaignService) finishRun(c *model.Campaign) error {
	rec := c.Schedule.Recurrence
	if c.Schedule.Type == model.ScheduleRecurring && rec != nil {
		anchor := s.now()
		if c.LastFiredAt != nil {
			anchor = *c.LastFiredAt
		}
		if next, ok := schedule.NextOccurrence(rec, anchor); ok {
			if err := schedule.Apply(c, model.CampaignScheduled); err != nil {
				return err
			}
			c.Schedule.ScheduledAt = &next
			if s.Log != nil {
				s.Log.Infow("recurring campaign re-armed", "campaign_id", c.ID, "next_fire", next)
			}
			return s.Campaigns.Update(c)
		}
	}
	if err := schedule.Apply(c, model.CampaignSent); err != nil {
		return err
	}
	if s.Log != nil {
		s.Log.Infow("✅ campaign completed", "campaign_id", c.ID)
	}
	return s.Campaigns.Update(c)
}

func (s *CampaignService) failCampaign(c *model.Campaign, cause error) error {
	if c.Status != model.CampaignSending {
		if err := schedule.Apply(c, model.CampaignSending); err != nil {
			return cause
		}
	}
	if err := schedule.Apply(c, model.CampaignFailed); err != nil {
		return cause
	}
	if s.Log != nil {
		s.Log.Errorw("campaign failed", "campaign_id", c.ID, "err", cause)
	}
	if err := s.Campaigns.Update(c); err != nil {
		return err
	}
	return cause
}

func (s *CampaignService) PauseCampaign(id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := schedule.Apply(c, model.CampaignPaused); err != nil {
		return nil, err
	}
	return c, s.Campaigns.Update(c)
}

// ResumeCampaign re-enters the pre-pause state. A campaign that was mid-
// send gets its still-pending recipients republished as a fresh wave;
// already-sent recipients keep their state.
func (s *CampaignService) ResumeCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := schedule.Resume(c); err != nil {
		return nil, err
	}
	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	if c.Status == model.CampaignSending {
		pending, err := s.Recipients.PendingUserIDs(c.ID)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			return c, s.finishRun(c)
		}
		if err := s.publishWave(c.ID, pending); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *CampaignService) CancelCampaign(id string) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := schedule.Apply(c, model.CampaignCancelled); err != nil {
		return nil, err
	}
	return c, s.Campaigns.Update(c)
}

// CampaignStatus backs the dispatcher's probe so in-flight workers see
// pause/cancel between recipients.
func (s *CampaignService) CampaignStatus(id string) model.CampaignStatus {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return model.CampaignSending // fail open: a read glitch must not stall a wave
	}
	return c.Status
}

// ==================== audiences, metrics, recipients ====================

// ResolveAudienceSize runs a resolution purely to refresh the size cache.
func (s *CampaignService) ResolveAudienceSize(ctx context.Context, audienceID string) (*model.AudienceDefinition, error) {
	aud, err := s.Audiences.GetByID(audienceID)
	if err != nil {
		return nil, err
	}
	res, err := s.Resolver.Resolve(ctx, aud, s.NewScanner())
	if err != nil {
		return nil, err
	}
	if err := s.Audiences.UpdateCache(aud.ID, res.Size, *aud.LastCalculatedAt); err != nil {
		return nil, err
	}
	return aud, nil
}

func (s *CampaignService) GetMetrics(campaignID string) (model.CampaignMetrics, error) {
	rows, err := s.Recipients.ListAll(campaignID)
	if err != nil {
		return model.CampaignMetrics{}, err
	}
	return analytics.Aggregate(rows), nil
}

func (s *CampaignService) ListRecipients(campaignID string, page, pageSize int) ([]*model.CampaignRecipient, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	rows, total, err := s.Recipients.ListByCampaign(campaignID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, nil, err
	}
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return rows, pagination, nil
}

// ==================== templates ====================

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

func extractVariables(body string) []string {
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		names = appendUnique(names, m[1])
	}
	return names
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// templateFor resolves the campaign's content. A missing template makes
// continuing meaningless: the caller turns it into a terminal failure.
func (s *CampaignService) templateFor(c *model.Campaign) (*model.MessageTemplate, error) {
	if c.TemplateID != nil {
		t, err := s.Templates.GetByID(*c.TemplateID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("template %s not found", *c.TemplateID)
		}
		return t, nil
	}
	if c.CustomContent != nil {
		return &model.MessageTemplate{
			Body:      *c.CustomContent,
			Variables: extractVariables(*c.CustomContent),
		}, nil
	}
	return nil, fmt.Errorf("campaign %s has neither template nor custom content", c.ID)
}

// RenderPreview renders the campaign content against one recipient.
func (s *CampaignService) RenderPreview(campaignID, userID string, overrideBody *string) (string, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return "", err
	}
	tmpl, err := s.templateFor(c)
	if err != nil {
		return "", err
	}
	if overrideBody != nil && *overrideBody != "" {
		tmpl = &model.MessageTemplate{Body: *overrideBody, Variables: extractVariables(*overrideBody)}
	}

	attrs, err := s.Attrs.Attributes(userID)
	if err != nil {
		return "", err
	}
	vars := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		vars[k] = v
	}
	vars["campaign_name"] = c.Name

	rendered, _ := dispatch.RenderTemplate(tmpl.Body, tmpl.Variables, vars)
	return rendered, nil
}
