package store

import (
	"github.com/pkg/errors"
)

// VectorStatus tracks whether a chunk's embedding has been persisted.
// Chunks stay out of retrieval until their vector is ready.
type VectorStatus string

const (
	// VectorStatusReady means the metadata row and the vector row were
	// committed together and the chunk is retrievable.
	VectorStatusReady VectorStatus = "ready"
	// VectorStatusPending means the metadata row exists but the vector is
	// missing (deferred write or detected orphan). Pending chunks are
	// excluded from the retrieval prefilter until backfilled.
	VectorStatusPending VectorStatus = "pending"
)

// Ordinal score bounds. Scores outside this range are rejected at write time.
const (
	MinScore = 1
	MaxScore = 5
)

// Chunk is the atomic retrievable unit: a fragment of personal text plus
// its weak labels. The embedding vector lives in the vector side of the
// store, joined by UID.
type Chunk struct {
	// ID is the database row identifier.
	ID int32
	// UID is the stable external identifier and the join key between the
	// metadata store and the vector index. Immutable once assigned.
	UID string
	// Source identifies the originating document or conversation.
	Source string
	// Timestamp is the unix time the content refers to. Zero means unknown.
	Timestamp int64
	// Text is immutable after the chunk is written. Corrections are new
	// chunks, never mutations.
	Text string

	// Weak labels.
	Emotion   string
	TimeScope string
	Intensity int
	VoiceMode string

	// Quality scores, each 1-5. ClicheScore is inverted at ranking time:
	// a low raw value is desirable.
	AuthenticityScore int
	SpecificityScore  int
	ClicheScore       int

	WordCount    int
	VectorStatus VectorStatus
	CreatedTs    int64
}

// Validate checks write-time invariants. Ordinal fields outside [1,5] are
// invalid input, not values to clamp.
func (c *Chunk) Validate() error {
	if c.UID == "" {
		return errors.Wrap(ErrConstraintViolation, "uid is required")
	}
	if c.Source == "" {
		return errors.Wrap(ErrConstraintViolation, "source is required")
	}
	if c.Text == "" {
		return errors.Wrap(ErrConstraintViolation, "text is required")
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"intensity", c.Intensity},
		{"authenticity_score", c.AuthenticityScore},
		{"specificity_score", c.SpecificityScore},
		{"cliche_score", c.ClicheScore},
	} {
		if f.value < MinScore || f.value > MaxScore {
			return errors.Wrapf(ErrConstraintViolation, "%s must be in [%d,%d], got %d", f.name, MinScore, MaxScore, f.value)
		}
	}
	return nil
}

// ContentEqual reports whether two chunks carry identical content and
// labels. Re-writing an identical chunk is a no-op; re-writing a different
// one under the same UID is a conflict.
func (c *Chunk) ContentEqual(other *Chunk) bool {
	if other == nil {
		return false
	}
	return c.UID == other.UID &&
		c.Source == other.Source &&
		c.Timestamp == other.Timestamp &&
		c.Text == other.Text &&
		c.Emotion == other.Emotion &&
		c.TimeScope == other.TimeScope &&
		c.Intensity == other.Intensity &&
		c.VoiceMode == other.VoiceMode &&
		c.AuthenticityScore == other.AuthenticityScore &&
		c.SpecificityScore == other.SpecificityScore &&
		c.ClicheScore == other.ClicheScore
}

// FindChunk specifies the conditions for the metadata prefilter. All
// supplied conditions are ANDed. Results are ordered by timestamp
// descending and capped at Limit.
type FindChunk struct {
	ID  *int32
	UID *string

	// Categorical equality filters.
	Source    *string
	Emotion   *string
	TimeScope *string
	VoiceMode *string

	// Ordinal range filters, inclusive.
	MinIntensity    *int
	MaxIntensity    *int
	MinAuthenticity *int
	MinSpecificity  *int
	MaxCliche       *int

	// Time range, inclusive unix seconds. Chunks with unknown timestamps
	// are excluded when either bound is set.
	TimestampAfter  *int64
	TimestampBefore *int64

	VectorStatus *VectorStatus

	Limit  int
	Offset int
}

// DeleteChunk specifies the conditions for deleting chunks. Deletion
// removes the metadata row and the vector row atomically.
type DeleteChunk struct {
	ID  *int32
	UID *string
}

// FindChunksPendingEmbedding finds chunks whose vector write was deferred
// or lost, for the backfill procedure.
type FindChunksPendingEmbedding struct {
	Model string
	Limit int
}
