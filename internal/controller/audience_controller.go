package controller

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
	"github.com/unclebandit/campaign-engine/internal/service"
)

type AudienceController struct {
	Audiences       repository.AudienceRepositoryInterface
	CampaignService *service.CampaignService
}

func (c *AudienceController) CreateAudience(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string            `json:"name"`
		Filters model.FilterGroup `json:"filters"`
		Tags    []string          `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Name == "" {
		http.Error(w, "audience name is required", http.StatusBadRequest)
		return
	}

	aud := &model.AudienceDefinition{
		Name:    body.Name,
		Filters: body.Filters,
		Tags:    body.Tags,
	}
	if err := c.Audiences.Create(aud); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, aud)
}

func (c *AudienceController) GetAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	aud, err := c.Audiences.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aud)
}

// ResolveAudience runs a full resolution and returns the refreshed size.
func (c *AudienceController) ResolveAudience(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	aud, err := c.CampaignService.ResolveAudienceSize(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audience_id":        aud.ID,
		"estimated_size":     aud.EstimatedSize,
		"last_calculated_at": aud.LastCalculatedAt,
	})
}
