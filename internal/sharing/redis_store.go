// Package sharing persists topic-scoped sharing grants: a founder opening
// one topic of their personal layer to another user. The document store
// only consumes the resulting Viewer.SharedTopics map; this store is how
// callers build it.
package sharing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps grants in Redis sets keyed by grantee. A member encodes
// "ownerID|topicSlug" so one round-trip loads everything shared with a
// user.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, prefix: "topic-share:"}, nil
}

// NewStoreWithClient builds a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "topic-share:"}
}

func (s *Store) key(granteeID string) string {
	return s.prefix + granteeID
}

func member(ownerID, topicSlug string) string {
	return ownerID + "|" + topicSlug
}

// Grant records that ownerID has shared topicSlug with granteeID.
// Granting twice is a no-op.
func (s *Store) Grant(ctx context.Context, ownerID, topicSlug, granteeID string) error {
	if ownerID == "" || topicSlug == "" || granteeID == "" {
		return fmt.Errorf("grant requires owner, topic, and grantee")
	}
	if err := s.client.SAdd(ctx, s.key(granteeID), member(ownerID, topicSlug)).Err(); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

// Revoke withdraws a grant. Revoking a grant that does not exist is a
// no-op.
func (s *Store) Revoke(ctx context.Context, ownerID, topicSlug, granteeID string) error {
	if err := s.client.SRem(ctx, s.key(granteeID), member(ownerID, topicSlug)).Err(); err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	return nil
}

// SharedWith loads every grant for a grantee as topic slug → sharer user
// IDs, the shape Viewer.SharedTopics expects.
func (s *Store) SharedWith(ctx context.Context, granteeID string) (map[string][]string, error) {
	members, err := s.client.SMembers(ctx, s.key(granteeID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}

	shared := make(map[string][]string)
	for _, m := range members {
		ownerID, topicSlug, ok := strings.Cut(m, "|")
		if !ok || ownerID == "" || topicSlug == "" {
			continue
		}
		shared[topicSlug] = append(shared[topicSlug], ownerID)
	}
	return shared, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
