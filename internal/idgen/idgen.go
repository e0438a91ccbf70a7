// Package idgen mints distributed, monotonically-ordered 64-bit IDs
// without a central database sequence.
package idgen

import (
	"context"
	"fmt"
	"time"

	"github.com/sqkstwj/juzhondianping/internal/domain"
)

// epochAnchor is 2022-01-01T00:00:00Z. It is fixed for the lifetime of
// the system; moving it would make new IDs collide with ones already
// issued. 31 bits of seconds from this anchor last until 2090.
const epochAnchor int64 = 1640995200

// seqBits is the width of the per-day sequence. Same-day issuance
// beyond 2^32 per prefix is out of scope and not defended against.
const seqBits = 32

// counterRetention keeps day-partitioned counters around long enough
// to survive clock skew across callers before they self-delete.
const counterRetention = 72 * time.Hour

// SequenceStore issues per-day, per-prefix sequence numbers from the
// shared cache's atomic counter. The first caller of a day gets 1.
type SequenceStore struct {
	cache domain.Cache
}

// NewSequenceStore creates a SequenceStore.
func NewSequenceStore(cache domain.Cache) *SequenceStore {
	return &SequenceStore{cache: cache}
}

// Next returns the post-increment counter value for (prefix, day).
// Partitioning by calendar day bounds counter growth and lets old-day
// keys expire away on their own.
func (s *SequenceStore) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	key := fmt.Sprintf("seq:%s:%s", prefix, day.UTC().Format("20060102"))
	return s.cache.Increment(ctx, key, counterRetention)
}

// Generator composes a coarse timestamp with a daily sequence number
// into a single ordered ID:
//
//	| 1 sign bit | 31 bits: seconds since anchor | 32 bits: sequence |
//
// IDs are strictly increasing per prefix as long as the wall clock
// does not move backward. Different prefixes may produce numerically
// equal IDs; uniqueness only holds within a prefix.
type Generator struct {
	seq *SequenceStore

	// now is swappable for tests.
	now func() time.Time
}

// NewGenerator creates a Generator backed by the given cache.
func NewGenerator(cache domain.Cache) *Generator {
	return &Generator{
		seq: NewSequenceStore(cache),
		now: time.Now,
	}
}

// NextID mints the next ID for a business prefix such as "order".
func (g *Generator) NextID(ctx context.Context, prefix string) (int64, error) {
	now := g.now().UTC()
	elapsed := now.Unix() - epochAnchor

	seq, err := g.seq.Next(ctx, prefix, now)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %q: %w", prefix, err)
	}

	return elapsed<<seqBits | seq, nil
}

// Timestamp extracts the instant an ID was minted at, to second
// precision.
func Timestamp(id int64) time.Time {
	return time.Unix(id>>seqBits+epochAnchor, 0).UTC()
}

// Sequence extracts the within-day sequence component of an ID.
func Sequence(id int64) int64 {
	return id & (1<<seqBits - 1)
}
