package repository

import (
	"database/sql"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// PreferenceRepository reads notification_preferences. The rows are owned
// by the recipient-facing product; this engine never writes them.
type PreferenceRepository struct {
	DB *sql.DB
}

// Get returns nil (not an error) when the user has no preference record;
// the gate's default policy applies then.
func (r *PreferenceRepository) Get(userID string) (*model.NotificationPreference, error) {
	query := `
        SELECT user_id, channels, do_not_disturb, timezone, unsubscribed_from
        FROM notification_preferences WHERE user_id=$1
    `
	var p model.NotificationPreference
	var channels, dnd, unsubscribed []byte
	var timezone sql.NullString
	err := r.DB.QueryRow(query, userID).Scan(&p.UserID, &channels, &dnd, &timezone, &unsubscribed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.Timezone = timezone.String
	if err := fromJSON(channels, &p.Channels); err != nil {
		return nil, err
	}
	if err := fromJSON(dnd, &p.DoNotDisturb); err != nil {
		return nil, err
	}
	if err := fromJSON(unsubscribed, &p.UnsubscribedFrom); err != nil {
		return nil, err
	}
	return &p, nil
}
