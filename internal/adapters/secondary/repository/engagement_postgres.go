package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

type EngagementPostgresRepo struct {
	db *pgxpool.Pool
}

func NewEngagementPostgresRepo(pool *pgxpool.Pool) ports.EngagementRepository {
	return &EngagementPostgresRepo{db: pool}
}

// UpsertReaction pose ou remplace LA réaction du viewer sur l'item.
// L'exclusivité (une seule réaction par viewer par item) est garantie par la
// contrainte unique (item_id, user_id) : le switch de kind est UN upsert
// atomique, jamais un delete + insert.
func (r *EngagementPostgresRepo) UpsertReaction(ctx context.Context, itemID, viewerID string, kind domain.ReactionKind) error {
	q := `
		INSERT INTO reactions (id, item_id, user_id, kind, created_at)
		VALUES (@id, @item_id, @user_id, @kind, @created_at)
		ON CONFLICT (item_id, user_id) DO UPDATE SET kind = EXCLUDED.kind
	`
	args := pgx.NamedArgs{
		"id":         uuid.NewString(),
		"item_id":    itemID,
		"user_id":    viewerID,
		"kind":       string(kind),
		"created_at": time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx, q, args)
	return r.handleError(err)
}

// DeleteReaction retire la réaction du viewer. Zéro ligne touchée = déjà
// retirée, pas une erreur (idempotence).
func (r *EngagementPostgresRepo) DeleteReaction(ctx context.Context, itemID, viewerID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM reactions WHERE item_id = $1 AND user_id = $2`, itemID, viewerID)
	return err
}

func (r *EngagementPostgresRepo) SetSave(ctx context.Context, itemID, viewerID string, saved bool) error {
	if saved {
		q := `
			INSERT INTO saves (id, item_id, user_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (item_id, user_id) DO NOTHING
		`
		_, err := r.db.Exec(ctx, q, uuid.NewString(), itemID, viewerID, time.Now().UTC())
		return r.handleError(err)
	}
	_, err := r.db.Exec(ctx, `DELETE FROM saves WHERE item_id = $1 AND user_id = $2`, itemID, viewerID)
	return err
}

func (r *EngagementPostgresRepo) SetRelay(ctx context.Context, itemID, viewerID string, relayed bool) error {
	if relayed {
		q := `
			INSERT INTO relays (id, item_id, user_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (item_id, user_id) DO NOTHING
		`
		_, err := r.db.Exec(ctx, q, uuid.NewString(), itemID, viewerID, time.Now().UTC())
		return r.handleError(err)
	}
	_, err := r.db.Exec(ctx, `DELETE FROM relays WHERE item_id = $1 AND user_id = $2`, itemID, viewerID)
	return err
}

// LoadState hydrate l'état complet d'un item pour un viewer : ses propres
// marques (réaction, save, relay) plus les compteurs publics.
func (r *EngagementPostgresRepo) LoadState(ctx context.Context, itemID, viewerID string) (*domain.EngagementState, error) {
	state := domain.NewEngagementState(itemID)

	var kind string
	err := r.db.QueryRow(ctx,
		`SELECT kind FROM reactions WHERE item_id = $1 AND user_id = $2`,
		itemID, viewerID,
	).Scan(&kind)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("db: load reaction: %w", err)
	}
	state.UserReaction = domain.ReactionKind(kind)

	err = r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM saves WHERE item_id = $1 AND user_id = $2),
		        EXISTS(SELECT 1 FROM relays WHERE item_id = $1 AND user_id = $2)`,
		itemID, viewerID,
	).Scan(&state.Saved, &state.Relayed)
	if err != nil {
		return nil, fmt.Errorf("db: load marks: %w", err)
	}

	counts, relays, comments, err := r.AuthoritativeCounts(ctx, itemID)
	if err != nil {
		return nil, err
	}
	state.Reactions = counts
	state.RelayCount = relays
	state.CommentCount = comments

	return state, nil
}

// AuthoritativeCounts renvoie les compteurs de référence depuis les tables
// sources. C'est la vérité que le rafraîchissement périodique impose aux
// sessions.
func (r *EngagementPostgresRepo) AuthoritativeCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, error) {
	counts := make(domain.ReactionCounts)

	rows, err := r.db.Query(ctx,
		`SELECT kind, COUNT(*) FROM reactions WHERE item_id = $1 GROUP BY kind`,
		itemID,
	)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("db: count reactions: %w", err)
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, 0, 0, fmt.Errorf("db: scan reaction count: %w", err)
		}
		counts[domain.ReactionKind(kind)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("db: count reactions: %w", err)
	}

	var relays, comments int
	err = r.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM relays WHERE item_id = $1),
		        (SELECT COUNT(*) FROM comments WHERE item_id = $1)`,
		itemID,
	).Scan(&relays, &comments)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("db: count relays/comments: %w", err)
	}

	return counts, relays, comments, nil
}

// handleError traduit les codes d'erreur PostgreSQL.
// Code 23505 (Unique Violation) = l'état voulu existe déjà : succès pour un
// coordinateur idempotent, pas une erreur à rollbacker.
func (r *EngagementPostgresRepo) handleError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil
	}
	return err
}
