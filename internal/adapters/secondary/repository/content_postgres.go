package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

// DTO interne pour mapper le JSONB journal sans mettre de tags JSON sur le
// Domain.
type journalDTO struct {
	Weather     string `json:"weather"`
	Temperature string `json:"temperature"`
	Mood        string `json:"mood"`
}

type ContentPostgresRepo struct {
	db *pgxpool.Pool
}

func NewContentPostgresRepo(pool *pgxpool.Pool) ports.ContentRepository {
	return &ContentPostgresRepo{db: pool}
}

// FindByID lit un item (post ou take confondus, la vue content_items unifie
// les deux tables).
func (r *ContentPostgresRepo) FindByID(ctx context.Context, itemID string) (*domain.ContentItem, error) {
	q := `
		SELECT id, author_id, content_type, visibility, content_warning, journal, created_at
		FROM content_items
		WHERE id = $1
	`

	var (
		item        domain.ContentItem
		contentType string
		visibility  string
		warning     *string
		journalJSON []byte
	)
	err := r.db.QueryRow(ctx, q, itemID).Scan(
		&item.ID, &item.AuthorID, &contentType, &visibility, &warning, &journalJSON, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContentNotFound // Traduction technique -> Domaine
		}
		return nil, fmt.Errorf("db: find content: %w", err)
	}

	item.Type = domain.ContentType(contentType)
	item.Visibility = domain.Visibility(visibility)
	if warning != nil {
		item.ContentWarning = *warning
	}
	if len(journalJSON) > 0 {
		var dto journalDTO
		if err := json.Unmarshal(journalJSON, &dto); err == nil {
			item.Journal = &domain.JournalMeta{
				Weather:     dto.Weather,
				Temperature: dto.Temperature,
				Mood:        dto.Mood,
			}
		}
	}

	return &item, nil
}
