package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jupiterclapton/cenackle/services/interaction-service/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCountCache tient le snapshot des compteurs par item, alimenté par le
// rafraîchissement périodique. Redis est lu AVANT Postgres : un hit évite
// trois agrégations SQL par item affiché.
type RedisCountCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCountCache(client *redis.Client) *RedisCountCache {
	return &RedisCountCache{
		client: client,
		ttl:    5 * time.Minute,
	}
}

func countsKey(itemID string) string {
	return fmt.Sprintf("counts:%s", itemID)
}

// GetCounts lit le hash de l'item. Hash absent = (found=false), pas une
// erreur : l'appelant retombe sur Postgres.
func (c *RedisCountCache) GetCounts(ctx context.Context, itemID string) (domain.ReactionCounts, int, int, bool, error) {
	fields, err := c.client.HGetAll(ctx, countsKey(itemID)).Result()
	if err != nil {
		return nil, 0, 0, false, err
	}
	if len(fields) == 0 {
		return nil, 0, 0, false, nil
	}

	reactions := make(domain.ReactionCounts)
	var relays, comments int
	for field, raw := range fields {
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue // valeur corrompue, on l'ignore plutôt que de crasher
		}
		switch {
		case strings.HasPrefix(field, "reaction:"):
			kind := domain.ReactionKind(strings.TrimPrefix(field, "reaction:"))
			if kind.IsValid() {
				reactions[kind] = n
			}
		case field == "relays":
			relays = n
		case field == "comments":
			comments = n
		}
	}

	return reactions, relays, comments, true, nil
}

// SetCounts écrase le hash complet (Del + HSet + TTL dans un pipeline : pas
// de vieux kind fantôme qui survit à l'écriture).
func (c *RedisCountCache) SetCounts(ctx context.Context, itemID string, reactions domain.ReactionCounts, relays, comments int) error {
	key := countsKey(itemID)

	values := make(map[string]interface{}, len(reactions)+2)
	for kind, n := range reactions {
		values[fmt.Sprintf("reaction:%s", kind)] = n
	}
	values["relays"] = relays
	values["comments"] = comments

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
