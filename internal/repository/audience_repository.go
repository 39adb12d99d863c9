package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-engine/internal/model"
)

type AudienceRepositoryInterface interface {
	Create(a *model.AudienceDefinition) error
	GetByID(id string) (*model.AudienceDefinition, error)
	UpdateCache(id string, size int, at time.Time) error
}

type AudienceRepository struct {
	DB *sql.DB
}

func (r *AudienceRepository) Create(a *model.AudienceDefinition) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()

	filters, err := toJSON(a.Filters)
	if err != nil {
		return err
	}
	tags, err := toJSON(a.Tags)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO audiences (id, name, filters, estimated_size, tags, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = r.DB.Exec(query, a.ID, a.Name, filters, a.EstimatedSize, tags, a.CreatedAt)
	return err
}

func (r *AudienceRepository) GetByID(id string) (*model.AudienceDefinition, error) {
	query := `
        SELECT id, name, filters, estimated_size, last_calculated_at, tags, created_at
        FROM audiences WHERE id=$1
    `
	var a model.AudienceDefinition
	var filters, tags []byte
	err := r.DB.QueryRow(query, id).Scan(&a.ID, &a.Name, &filters, &a.EstimatedSize,
		&a.LastCalculatedAt, &tags, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("audience %s not found", id)
		}
		return nil, err
	}
	if err := fromJSON(filters, &a.Filters); err != nil {
		return nil, err
	}
	if err := fromJSON(tags, &a.Tags); err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateCache refreshes the estimated size after a resolution.
func (r *AudienceRepository) UpdateCache(id string, size int, at time.Time) error {
	query := `UPDATE audiences SET estimated_size=$1, last_calculated_at=$2 WHERE id=$3`
	_, err := r.DB.Exec(query, size, at, id)
	return err
}

var _ AudienceRepositoryInterface = (*AudienceRepository)(nil)
