// Package intake guards the inbound email pipeline: it decides whether a
// message has been seen before and which body variant should be handed to
// the extraction step.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
)

const (
	// DedupTTL is how long a canonical key stays in the fast-path cache.
	// The database remains the authoritative record well beyond this.
	DedupTTL = 24 * time.Hour

	dedupKeyPrefix = "mailtasker:seen:"
)

// EmailIdentity carries the fields that identify an inbound message for
// deduplication.
type EmailIdentity struct {
	MessageID *string
	From      *string
	To        *string
	Subject   *string
	SentAt    *time.Time
}

// CanonicalKey derives the dedup key for a message. The provider message ID
// wins when present; otherwise the key is a digest over sender, recipient,
// subject and send time, with missing fields folded in as empty strings.
func CanonicalKey(id EmailIdentity) string {
	if id.MessageID != nil && strings.TrimSpace(*id.MessageID) != "" {
		return "msgid:" + *id.MessageID
	}
	str := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	sentAt := ""
	if id.SentAt != nil {
		sentAt = id.SentAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(str(id.From) + "|" + str(id.To) + "|" + str(id.Subject) + "|" + sentAt))
	return "digest:" + hex.EncodeToString(sum[:])
}

// Gate performs duplicate detection with a Redis fast path backed by an
// authoritative database check.
type Gate struct {
	rdb    *redis.Client
	emails database.RawEmailRepositoryInterface
	logger *zap.Logger
}

func NewGate(rdb *redis.Client, emails database.RawEmailRepositoryInterface, log *zap.Logger) *Gate {
	return &Gate{rdb: rdb, emails: emails, logger: log}
}

// Seen reports whether the message identified by id has already been
// accepted. The cache marker is written by MarkAccepted only after the
// email row is durable, so a cache hit always corresponds to a stored
// record: a delivery that failed mid-flight never poisons its retries.
// Redis being down degrades to the database check alone.
func (g *Gate) Seen(ctx context.Context, id EmailIdentity) (bool, error) {
	key := dedupKeyPrefix + CanonicalKey(id)

	_, err := g.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, redis.Nil):
		g.logger.Warn("dedup_cache_unavailable",
			zap.Error(err),
		)
	}

	// The cache only remembers DedupTTL worth of messages, so a cache miss
	// still has to consult the stored record.
	if id.MessageID != nil && strings.TrimSpace(*id.MessageID) != "" {
		exists, err := g.emails.ExistsByMessageID(ctx, *id.MessageID)
		if err != nil {
			return false, fmt.Errorf("failed to check message id: %w", err)
		}
		return exists, nil
	}
	exists, err := g.emails.ExistsByCompositeKey(ctx, id.From, id.To, id.Subject, id.SentAt)
	if err != nil {
		return false, fmt.Errorf("failed to check composite key: %w", err)
	}
	return exists, nil
}

// MarkAccepted records the message in the fast-path cache. Call it only
// after the email row has been committed. Failures are logged and dropped,
// the database check in Seen keeps dedup correct without the cache.
func (g *Gate) MarkAccepted(ctx context.Context, id EmailIdentity) {
	key := dedupKeyPrefix + CanonicalKey(id)
	if err := g.rdb.Set(ctx, key, 1, DedupTTL).Err(); err != nil {
		g.logger.Warn("dedup_cache_unavailable",
			zap.Error(err),
		)
	}
}
