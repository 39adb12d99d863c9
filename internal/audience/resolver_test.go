package audience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/campaign-engine/internal/audience"
	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/rules"
)

// MockSource pages through a fixed pool, optionally failing partway
type MockSource struct {
	pages   [][]model.PoolRecord
	idx     int
	failAt  int
	failErr error
}

func (m *MockSource) NextPage(ctx context.Context) ([]model.PoolRecord, error) {
	if m.failErr != nil && m.idx == m.failAt {
		return nil, m.failErr
	}
	if m.idx >= len(m.pages) {
		return nil, nil
	}
	page := m.pages[m.idx]
	m.idx++
	return page, nil
}

func berlinDef() *model.AudienceDefinition {
	return &model.AudienceDefinition{
		ID:   "aud-1",
		Name: "Berlin high scorers",
		Filters: model.FilterGroup{
			Operator: model.GroupAnd,
			Children: []model.FilterNode{
				{Rule: &model.FilterRule{Field: "city", Operator: model.OpEquals, Value: "Berlin"}},
				{Rule: &model.FilterRule{Field: "score", Operator: model.OpGreaterThan, Value: float64(50)}},
			},
		},
	}
}

func pool() [][]model.PoolRecord {
	return [][]model.PoolRecord{
		{
			{UserID: "u1", Attributes: map[string]any{"city": "Berlin", "score": float64(60)}},
			{UserID: "u2", Attributes: map[string]any{"city": "Berlin", "score": float64(40)}},
		},
		{
			{UserID: "u3", Attributes: map[string]any{"city": "Munich", "score": float64(90)}},
		},
	}
}

func TestResolveScenario(t *testing.T) {
	def := berlinDef()
	r := audience.NewResolver(rules.NewEvaluator(nil), nil)

	res, err := r.Resolve(context.Background(), def, &MockSource{pages: pool()})
	if err != nil {
		t.Fatal(err)
	}

	// exactly the first recipient matches
	assert.Equal(t, 1, res.Size)
	assert.Equal(t, "u1", res.Recipients[0].UserID)

	// size cache refreshed as a side effect
	assert.Equal(t, 1, def.EstimatedSize)
	assert.NotNil(t, def.LastCalculatedAt)
}

func TestResolveAllOrNothing(t *testing.T) {
	def := berlinDef()
	r := audience.NewResolver(rules.NewEvaluator(nil), nil)

	src := &MockSource{pages: pool(), failAt: 1, failErr: errors.New("pool down")}
	res, err := r.Resolve(context.Background(), def, src)

	assert.Nil(t, res, "no partial result on pool failure")
	var unavailable *appErrors.ErrResolutionUnavailable
	assert.True(t, errors.As(err, &unavailable))

	// cache stays untouched on failure
	assert.Equal(t, 0, def.EstimatedSize)
	assert.Nil(t, def.LastCalculatedAt)
}

func TestResolveEmptyPool(t *testing.T) {
	def := berlinDef()
	r := audience.NewResolver(rules.NewEvaluator(nil), nil)

	res, err := r.Resolve(context.Background(), def, &MockSource{})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, res.Size)
	assert.Equal(t, 0, def.EstimatedSize)
	assert.NotNil(t, def.LastCalculatedAt)
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := audience.NewResolver(rules.NewEvaluator(nil), nil)
	_, err := r.Resolve(ctx, berlinDef(), &MockSource{pages: pool()})

	var unavailable *appErrors.ErrResolutionUnavailable
	assert.True(t, errors.As(err, &unavailable))
}
