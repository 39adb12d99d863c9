package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/prefs"
	"github.com/unclebandit/campaign-engine/internal/throttle"
)

// RecipientStore is the dispatcher's view of campaign_recipients rows.
type RecipientStore interface {
	Get(campaignID, userID string) (*model.CampaignRecipient, error)
	Update(r *model.CampaignRecipient) error
}

// PreferenceStore yields a recipient's notification preferences, nil when
// no record exists.
type PreferenceStore interface {
	Get(userID string) (*model.NotificationPreference, error)
}

// AttributeSource yields the attribute map used for template rendering.
type AttributeSource interface {
	Attributes(userID string) (map[string]any, error)
}

// StatusProbe reports the campaign's current status so in-flight workers
// can observe pause/cancel between recipients.
type StatusProbe func(campaignID string) model.CampaignStatus

// Result summarizes one dispatch wave.
type Result struct {
	Dispatched int // at least one channel send succeeded
	Failed     int // every channel exhausted its retries
	Suppressed int // every channel gated off by preferences
	Skipped    int // already at sent-or-later from an earlier attempt
	Deferred   int // throttle budget ran out, recipient stays pending

	// DeferredUsers lists the deferred recipients so the scheduler can put
	// them into the next window's wave.
	DeferredUsers []string
}

// Dispatcher drives recipients through the delivery state machine on a
// bounded worker pool. Fields are wired by the caller in main.
type Dispatcher struct {
	Recipients  RecipientStore
	Prefs       PreferenceStore
	Attrs       AttributeSource
	Senders     Sender
	Gate        *prefs.Gate
	Probe       StatusProbe
	Workers     int
	MaxRetries  int
	BackoffBase time.Duration
	Log         *zap.SugaredLogger

	locks keyedMutex
	// Now is swappable for tests.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run dispatches one wave. Ordering between recipients is not guaranteed;
// ordering within one recipient-channel pair is strict. Cancellation is
// observed before each next recipient, never mid-send: an in-flight send
// completes and keeps its state, undispatched recipients remain pending.
func (d *Dispatcher) Run(ctx context.Context, campaign *model.Campaign, tmpl *model.MessageTemplate, userIDs []string, limiter *throttle.Limiter) Result {
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}

	// pre-filled and closed so a worker that stops early (pause/cancel)
	// never wedges a producer
	jobs := make(chan string, len(userIDs))
	for _, id := range userIDs {
		jobs <- id
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var res Result

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				if ctx.Err() != nil {
					return
				}
				if d.Probe != nil {
					switch d.Probe(campaign.ID) {
					case model.CampaignCancelled, model.CampaignPaused:
						return
					}
				}
				outcome := d.dispatchRecipient(ctx, campaign, tmpl, userID, limiter)
				mu.Lock()
				switch outcome {
				case outcomeSent:
					res.Dispatched++
				case outcomeFailed:
					res.Failed++
				case outcomeSuppressed:
					res.Suppressed++
				case outcomeSkipped:
					res.Skipped++
				case outcomeDeferred:
					res.Deferred++
					res.DeferredUsers = append(res.DeferredUsers, userID)
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return res
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSent
	outcomeFailed
	outcomeSuppressed
	outcomeSkipped
	outcomeDeferred
)

func (d *Dispatcher) dispatchRecipient(ctx context.Context, campaign *model.Campaign, tmpl *model.MessageTemplate, userID string, limiter *throttle.Limiter) outcome {
	row, err := d.Recipients.Get(campaign.ID, userID)
	if err != nil || row == nil {
		if d.Log != nil {
			d.Log.Warnw("⚠️ failed to load recipient row", "campaign_id", campaign.ID, "user_id", userID, "err", err)
		}
		return outcomeNone
	}

	// at-most-once: a recipient already at sent or later is never re-sent,
	// even when the whole wave job gets redelivered
	if model.StatusRank(row.Status) >= model.StatusRank(model.RecipientSent) || model.IsTerminalRecipientStatus(row.Status) {
		return outcomeSkipped
	}

	if !limiter.TryAcquire() {
		// not an error: the recipient defers to the next window
		return outcomeDeferred
	}

	attrs, err := d.Attrs.Attributes(userID)
	if err != nil {
		attrs = map[string]any{}
	}
	vars := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		vars[k] = v
	}
	vars["campaign_name"] = campaign.Name

	pref, err := d.Prefs.Get(userID)
	if err != nil {
		pref = nil
	}

	now := d.now()
	var allowed []model.Channel
	for _, ch := range row.Channels {
		if d.Gate.Allowed(userID, ch, campaign.Category, pref, now) {
			allowed = append(allowed, ch)
		} else {
			suppressedTotal.WithLabelValues(string(ch)).Inc()
		}
	}
	if len(allowed) == 0 {
		return outcomeSuppressed
	}

	// channel fan-out is independent: one channel failing never blocks the
	// others
	anySent := false
	lastReason := ""
	for _, ch := range allowed {
		sent, reason, missing := d.sendChannel(ctx, campaign, tmpl, row, ch, vars)
		if sent {
			anySent = true
		} else {
			lastReason = reason
		}
		for _, name := range missing {
			row.MissingVars = appendUnique(row.MissingVars, name)
		}
	}

	now = d.now()
	if anySent {
		row.Advance(model.RecipientSent, now)
	} else {
		row.FailureReason = lastReason
		row.Advance(model.RecipientFailed, now)
	}
	if err := d.Recipients.Update(row); err != nil && d.Log != nil {
		d.Log.Warnw("⚠️ failed to persist recipient row", "campaign_id", campaign.ID, "user_id", userID, "err", err)
	}

	if anySent {
		return outcomeSent
	}
	return outcomeFailed
}

// sendChannel performs one recipient-channel delivery with bounded retries
// and exponential backoff. The per-key lock serializes state for this pair
// so a duplicated job cannot interleave transitions.
func (d *Dispatcher) sendChannel(ctx context.Context, campaign *model.Campaign, tmpl *model.MessageTemplate, row *model.CampaignRecipient, ch model.Channel, vars map[string]any) (sent bool, reason string, missing []string) {
	unlock := d.locks.lock(row.UserID + "|" + string(ch))
	defer unlock()

	if row.ChannelStates == nil {
		row.ChannelStates = make(map[model.Channel]model.RecipientStatus)
	}
	if prior, ok := row.ChannelStates[ch]; ok {
		if model.StatusRank(prior) >= model.StatusRank(model.RecipientSent) {
			return prior != model.RecipientFailed, "", nil
		}
	}

	body, missingBody := RenderTemplate(tmpl.Body, tmpl.Variables, vars)
	subject, missingSubject := RenderTemplate(tmpl.Subject, tmpl.Variables, vars)
	html, missingHTML := RenderTemplate(tmpl.HTML, tmpl.Variables, vars)
	missing = append(missing, missingBody...)
	missing = append(missing, missingSubject...)
	missing = append(missing, missingHTML...)

	msg := RenderedMessage{Subject: subject, Body: body, HTML: html}

	var lastErr error
	for attempt := 0; attempt <= d.MaxRetries; attempt++ {
		if attempt > 0 {
			row.RetryCount++
			if !d.wait(ctx, d.BackoffBase<<(attempt-1)) {
				break
			}
		}
		lastErr = d.Senders.Send(ctx, ch, row.UserID, msg)
		if lastErr == nil {
			row.ChannelStates[ch] = model.RecipientSent
			sendsTotal.WithLabelValues(string(ch), "sent").Inc()
			return true, "", missing
		}
		if d.Log != nil {
			d.Log.Warnw("⚠️ send attempt failed", "campaign_id", campaign.ID, "user_id", row.UserID,
				"channel", ch, "attempt", attempt+1, "err", lastErr)
		}
	}

	row.ChannelStates[ch] = model.RecipientFailed
	sendsTotal.WithLabelValues(string(ch), "failed").Inc()
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return false, reason, missing
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
