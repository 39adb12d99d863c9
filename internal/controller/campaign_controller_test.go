package controller_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/campaign-engine/internal/controller"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/service"
)

// --- Mock repositories ---

type MockCampaignRepo struct {
	campaigns []*model.Campaign
}

func (m *MockCampaignRepo) Create(c *model.Campaign) error { return nil }

func (m *MockCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	for _, c := range m.campaigns {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("campaign %s not found", id)
}

func (m *MockCampaignRepo) Update(c *model.Campaign) error { return nil }

func (m *MockCampaignRepo) ListCampaigns(offset, limit int, status, channel string) ([]*model.Campaign, int, error) {
	var filtered []*model.Campaign
	for _, c := range m.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		if channel != "" && !hasChannel(c, channel) {
			continue
		}
		filtered = append(filtered, c)
	}
	total := len(filtered)

	start := offset
	end := offset + limit
	if start > total {
		return []*model.Campaign{}, total, nil
	}
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (m *MockCampaignRepo) ListDue(until time.Time) ([]*model.Campaign, error) { return nil, nil }

func hasChannel(c *model.Campaign, channel string) bool {
	for _, ch := range c.Channels {
		if string(ch) == channel {
			return true
		}
	}
	return false
}

type MockAttrs struct{}

func (m *MockAttrs) Attributes(userID string) (map[string]any, error) {
	return map[string]any{
		"first_name": "Alice",
		"city":       "Nairobi",
	}, nil
}

func newRouter(ctrl *controller.CampaignController) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Post("/campaigns/{id}/preview", ctrl.PersonalizedPreview)
	return r
}

// --- Tests ---

func TestPersonalizedPreviewHandler(t *testing.T) {
	content := "Hi {first_name}, greetings from {city}!"
	repo := &MockCampaignRepo{campaigns: []*model.Campaign{
		{ID: "c1", Name: "Greetings", CustomContent: &content},
	}}
	svc := &service.CampaignService{
		Campaigns: repo,
		Attrs:     &MockAttrs{},
	}
	ctrl := &controller.CampaignController{CampaignService: svc}
	router := newRouter(ctrl)

	b, _ := json.Marshal(map[string]interface{}{"user_id": "u1"})
	req := httptest.NewRequest("POST", "/campaigns/c1/preview", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var res map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	msg, ok := res["rendered_message"].(string)
	if !ok {
		t.Fatalf("rendered_message not found or not a string")
	}
	if msg != "Hi Alice, greetings from Nairobi!" {
		t.Errorf("unexpected rendered message %q", msg)
	}
}

func TestPreviewRequiresUserID(t *testing.T) {
	ctrl := &controller.CampaignController{CampaignService: &service.CampaignService{}}
	router := newRouter(ctrl)

	req := httptest.NewRequest("POST", "/campaigns/c1/preview", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Result().StatusCode)
	}
}

func TestListCampaignsPagination(t *testing.T) {
	totalCampaigns := 25
	campaigns := []*model.Campaign{}
	for i := 1; i <= totalCampaigns; i++ {
		campaigns = append(campaigns, &model.Campaign{
			ID:       "c" + strconv.Itoa(i),
			Name:     "Campaign " + strconv.Itoa(i),
			Status:   model.CampaignDraft,
			Channels: []model.Channel{model.ChannelSMS},
		})
	}

	repo := &MockCampaignRepo{campaigns: campaigns}
	svc := &service.CampaignService{Campaigns: repo}
	ctrl := &controller.CampaignController{CampaignService: svc}
	router := newRouter(ctrl)

	pageSize := 10
	seen := map[string]bool{}
	totalPages := (totalCampaigns + pageSize - 1) / pageSize

	for page := 1; page <= totalPages; page++ {
		req := httptest.NewRequest(
			"GET",
			"/campaigns?page="+strconv.Itoa(page)+
				"&page_size="+strconv.Itoa(pageSize)+
				"&status=draft&channel=sms",
			nil,
		)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var res struct {
			Data       []model.Campaign `json:"data"`
			Pagination struct {
				Page       int `json:"page"`
				PageSize   int `json:"page_size"`
				TotalCount int `json:"total_count"`
				TotalPages int `json:"total_pages"`
			} `json:"pagination"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if res.Pagination.Page != page {
			t.Errorf("expected page %d, got %d", page, res.Pagination.Page)
		}
		if res.Pagination.PageSize != pageSize {
			t.Errorf("expected page size %d, got %d", pageSize, res.Pagination.PageSize)
		}
		if res.Pagination.TotalCount != totalCampaigns {
			t.Errorf("expected total count %d, got %d", totalCampaigns, res.Pagination.TotalCount)
		}
		if res.Pagination.TotalPages != totalPages {
			t.Errorf("expected total pages %d, got %d", totalPages, res.Pagination.TotalPages)
		}

		for _, c := range res.Data {
			if seen[c.ID] {
				t.Errorf("duplicate campaign ID %s across pages", c.ID)
			}
			seen[c.ID] = true
			if c.Status != model.CampaignDraft {
				t.Errorf("expected status draft, got %s", c.Status)
			}
		}
	}

	if len(seen) != totalCampaigns {
		t.Errorf("expected %d unique campaigns, got %d", totalCampaigns, len(seen))
	}
}
