package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/ports"
)

type RelationshipPostgresRepo struct {
	db *pgxpool.Pool
}

func NewRelationshipPostgresRepo(pool *pgxpool.Pool) ports.RelationshipRepository {
	return &RelationshipPostgresRepo{db: pool}
}

// LoadSnapshot charge la photo complète des relations du viewer en trois
// requêtes (blocages dans les deux sens, follows acceptés, comptes privés).
// Appelé UNE fois par session, puis servi depuis le cache en mémoire.
// viewerID vide = viewer anonyme : seuls les comptes privés sont pertinents.
func (r *RelationshipPostgresRepo) LoadSnapshot(ctx context.Context, viewerID string) (*domain.RelationshipSnapshot, error) {
	snap := domain.NewRelationshipSnapshot()

	if viewerID != "" {
		// Blocages, peu importe la direction : les deux sens cachent.
		q := `SELECT blocker_id, blocked_id FROM blocks WHERE blocker_id = $1 OR blocked_id = $1`
		rows, err := r.db.Query(ctx, q, viewerID)
		if err != nil {
			return nil, fmt.Errorf("db: load blocks: %w", err)
		}
		for rows.Next() {
			var blocker, blocked string
			if err := rows.Scan(&blocker, &blocked); err != nil {
				rows.Close()
				return nil, fmt.Errorf("db: scan block: %w", err)
			}
			if blocker == viewerID {
				snap.Blocked[blocked] = struct{}{}
			} else {
				snap.BlockedBy[blocker] = struct{}{}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("db: load blocks: %w", err)
		}

		// Seuls les follows ACCEPTÉS ouvrent du contenu ; un pending ne donne
		// rien.
		q = `SELECT following_id FROM follows WHERE follower_id = $1 AND status = 'accepted'`
		rows, err = r.db.Query(ctx, q, viewerID)
		if err != nil {
			return nil, fmt.Errorf("db: load follows: %w", err)
		}
		for rows.Next() {
			var followingID string
			if err := rows.Scan(&followingID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("db: scan follow: %w", err)
			}
			snap.FollowingAccepted[followingID] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("db: load follows: %w", err)
		}
	}

	q := `SELECT id FROM profiles WHERE is_private = TRUE`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("db: load private profiles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: scan profile: %w", err)
		}
		snap.PrivateAccounts[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: load private profiles: %w", err)
	}

	return snap, nil
}
