package audience

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/rules"
)

// RecipientSource yields recipient attribute records in pages so the whole
// pool never has to sit in memory. A nil or empty page means the pool is
// exhausted.
type RecipientSource interface {
	NextPage(ctx context.Context) ([]model.PoolRecord, error)
}

// Resolution is the concrete recipient set for one audience definition.
type Resolution struct {
	Recipients []model.PoolRecord
	Size       int
}

type Resolver struct {
	eval *rules.Evaluator
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewResolver(eval *rules.Evaluator, log *zap.SugaredLogger) *Resolver {
	return &Resolver{eval: eval, log: log, now: time.Now}
}

// Resolve streams the pool through the filter tree. All-or-nothing: any
// source failure surfaces as ResolutionUnavailable with no partial result.
// On success the definition's size cache is refreshed; the authoritative
// set for a running campaign is still the snapshot taken at dispatch time.
func (r *Resolver) Resolve(ctx context.Context, def *model.AudienceDefinition, src RecipientSource) (*Resolution, error) {
	res := &Resolution{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.NewResolutionUnavailable(err)
		}
		page, err := src.NextPage(ctx)
		if err != nil {
			return nil, appErrors.NewResolutionUnavailable(err)
		}
		if len(page) == 0 {
			break
		}
		for _, rec := range page {
			if r.eval.EvaluateGroup(&def.Filters, rec.Attributes) {
				res.Recipients = append(res.Recipients, rec)
			}
		}
	}
	res.Size = len(res.Recipients)

	now := r.now()
	def.EstimatedSize = res.Size
	def.LastCalculatedAt = &now

	if r.log != nil {
		r.log.Infow("audience resolved", "audience_id", def.ID, "size", res.Size)
	}
	return res, nil
}
