package repository

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-engine/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(t *model.MessageTemplate) error
	GetByID(id string) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) Create(t *model.MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	variables, err := toJSON(t.Variables)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO message_templates (id, channel, subject, body, html, variables)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = r.DB.Exec(query, t.ID, t.Channel, t.Subject, t.Body, t.HTML, variables)
	return err
}

func (r *TemplateRepository) GetByID(id string) (*model.MessageTemplate, error) {
	query := `SELECT id, channel, subject, body, html, variables FROM message_templates WHERE id=$1`
	var t model.MessageTemplate
	var variables []byte
	err := r.DB.QueryRow(query, id).Scan(&t.ID, &t.Channel, &t.Subject, &t.Body, &t.HTML, &variables)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := fromJSON(variables, &t.Variables); err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
