package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-engine/internal/model"
)

type RecipientRepositoryInterface interface {
	SnapshotBatch(rows []*model.CampaignRecipient) error
	Get(campaignID, userID string) (*model.CampaignRecipient, error)
	Update(r *model.CampaignRecipient) error
	ListByCampaign(campaignID string, offset, limit int) ([]*model.CampaignRecipient, int, error)
	ListAll(campaignID string) ([]model.CampaignRecipient, error)
	PendingUserIDs(campaignID string) ([]string, error)
}

// RecipientRepository owns campaign_recipients rows: the dispatch-time
// snapshot of an audience. Rows are never deleted; they are the audit trail.
type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, user_id, channels, status, channel_states,
	sent_at, delivered_at, opened_at, clicked_at, converted_at,
	failure_reason, retry_count, missing_vars, created_at, updated_at`

// SnapshotBatch inserts the dispatch set. Idempotent: a row that already
// exists for (campaign, user) is left untouched, so re-running a snapshot
// never resets delivery state.
func (r *RecipientRepository) SnapshotBatch(rows []*model.CampaignRecipient) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
        INSERT INTO campaign_recipients (id, campaign_id, user_id, channels, status, retry_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
        ON CONFLICT (campaign_id, user_id) DO NOTHING
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.Status == "" {
			row.Status = model.RecipientPending
		}
		row.CreatedAt = now
		row.UpdatedAt = now
		channels, err := toJSON(row.Channels)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(row.ID, row.CampaignID, row.UserID, channels, row.Status, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *RecipientRepository) Get(campaignID, userID string) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE campaign_id=$1 AND user_id=$2`
	rec, err := scanRecipient(r.DB.QueryRow(query, campaignID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) Update(rec *model.CampaignRecipient) error {
	states, err := toJSON(rec.ChannelStates)
	if err != nil {
		return err
	}
	missing, err := toJSON(rec.MissingVars)
	if err != nil {
		return err
	}
	query := `
        UPDATE campaign_recipients
        SET status=$1, channel_states=$2, sent_at=$3, delivered_at=$4, opened_at=$5,
            clicked_at=$6, converted_at=$7, failure_reason=$8, retry_count=$9,
            missing_vars=$10, updated_at=NOW()
        WHERE id=$11
    `
	_, err = r.DB.Exec(query, rec.Status, states, rec.SentAt, rec.DeliveredAt, rec.OpenedAt,
		rec.ClickedAt, rec.ConvertedAt, rec.FailureReason, rec.RetryCount, missing, rec.ID)
	return err
}

func (r *RecipientRepository) ListByCampaign(campaignID string, offset, limit int) ([]*model.CampaignRecipient, int, error) {
	query := `SELECT ` + recipientColumns + `
        FROM campaign_recipients WHERE campaign_id=$1
        ORDER BY created_at, user_id LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*model.CampaignRecipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListAll loads every row of a campaign for the metrics fold.
func (r *RecipientRepository) ListAll(campaignID string) ([]model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE campaign_id=$1`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CampaignRecipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// PendingUserIDs lists recipients still awaiting dispatch, for resuming a
// paused campaign's wave.
func (r *RecipientRepository) PendingUserIDs(campaignID string) ([]string, error) {
	rows, err := r.DB.Query(
		`SELECT user_id FROM campaign_recipients WHERE campaign_id=$1 AND status=$2 ORDER BY user_id`,
		campaignID, model.RecipientPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRecipient(row rowScanner) (*model.CampaignRecipient, error) {
	var rec model.CampaignRecipient
	var channels, states, missing []byte
	err := row.Scan(&rec.ID, &rec.CampaignID, &rec.UserID, &channels, &rec.Status, &states,
		&rec.SentAt, &rec.DeliveredAt, &rec.OpenedAt, &rec.ClickedAt, &rec.ConvertedAt,
		&rec.FailureReason, &rec.RetryCount, &missing, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := fromJSON(channels, &rec.Channels); err != nil {
		return nil, err
	}
	if err := fromJSON(states, &rec.ChannelStates); err != nil {
		return nil, err
	}
	if err := fromJSON(missing, &rec.MissingVars); err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
