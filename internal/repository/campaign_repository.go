package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	Update(c *model.Campaign) error
	ListCampaigns(offset, limit int, status, channel string) ([]*model.Campaign, int, error)
	ListDue(until time.Time) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, status, channels, audience_id, template_id, custom_content,
	category, schedule, scheduled_at, paused_from, last_fired_at, created_at, updated_at`

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	c.CreatedAt = time.Now()

	channels, err := toJSON(c.Channels)
	if err != nil {
		return err
	}
	schedule, err := toJSON(c.Schedule)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO campaigns (id, name, status, channels, audience_id, template_id, custom_content,
            category, schedule, scheduled_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err = r.DB.Exec(query, c.ID, c.Name, c.Status, channels, c.AudienceID, c.TemplateID,
		c.CustomContent, c.Category, schedule, c.Schedule.ScheduledAt, c.CreatedAt)
	return err
}

// Update persists everything the engine mutates: status, pause bookkeeping,
// schedule (a recurring campaign's next fire time moves), last fire time.
func (r *CampaignRepository) Update(c *model.Campaign) error {
	channels, err := toJSON(c.Channels)
	if err != nil {
		return err
	}
	schedule, err := toJSON(c.Schedule)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaigns
        SET name=$1, status=$2, channels=$3, template_id=$4, custom_content=$5, category=$6,
            schedule=$7, scheduled_at=$8, paused_from=$9, last_fired_at=$10, updated_at=NOW()
        WHERE id=$11
    `
	_, err = r.DB.Exec(query, c.Name, c.Status, channels, c.TemplateID, c.CustomContent,
		c.Category, schedule, c.Schedule.ScheduledAt, c.PausedFrom, c.LastFiredAt, c.ID)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status, channel string) ([]*model.Campaign, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	if channel != "" {
		// channels is a jsonb array, containment matches one element
		where += fmt.Sprintf(" AND channels @> $%d", argPos)
		member, err := toJSON([]string{channel})
		if err != nil {
			return nil, 0, err
		}
		args = append(args, member)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// ListDue returns scheduled campaigns whose fire time has arrived.
func (r *CampaignRepository) ListDue(until time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status=$1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
        ORDER BY scheduled_at
    `
	rows, err := r.DB.Query(query, model.CampaignScheduled, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var channels, schedule []byte
	var scheduledAt sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Status, &channels, &c.AudienceID, &c.TemplateID,
		&c.CustomContent, &c.Category, &schedule, &scheduledAt, &c.PausedFrom,
		&c.LastFiredAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(channels, &c.Channels); err != nil {
		return nil, err
	}
	if err := fromJSON(schedule, &c.Schedule); err != nil {
		return nil, err
	}
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
