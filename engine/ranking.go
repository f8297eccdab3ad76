package engine

import (
	"math"
	"sort"
	"time"

	"github.com/versecraft/lyricmem/store"
)

// RankWeights are the externally configurable term weights. Each is in
// [0, 1]; they need not sum to 1. Retrieval is reproducible given
// (data, query, weights) alone, so these are passed per call rather than
// held as process state.
type RankWeights struct {
	Time     float64 `json:"time"`
	Metadata float64 `json:"metadata"`
	Vector   float64 `json:"vector"`
	Quality  float64 `json:"quality"`
}

// DefaultRankWeights favor semantic similarity, with metadata and recency
// as secondary signals.
func DefaultRankWeights() RankWeights {
	return RankWeights{
		Time:     0.10,
		Metadata: 0.15,
		Vector:   0.75,
		Quality:  0.15,
	}
}

// Valid reports whether every weight is in [0, 1].
func (w RankWeights) Valid() bool {
	for _, v := range []float64{w.Time, w.Metadata, w.Vector, w.Quality} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// RankConfig holds the scoring constants that are configuration rather than
// per-query intent.
type RankConfig struct {
	// Lambda is the exponential recency decay rate per second.
	Lambda float64
	// CategoricalBonus is the contribution of one matched categorical field.
	CategoricalBonus float64
	// UnknownRecency is the neutral recency term for chunks with an unknown
	// timestamp, so they are neither buried nor boosted.
	UnknownRecency float64
}

// DefaultRankConfig uses a 180-day half-life for recency decay.
func DefaultRankConfig() RankConfig {
	return RankConfig{
		Lambda:           math.Ln2 / (180 * 24 * 3600),
		CategoricalBonus: 1.0,
		UnknownRecency:   0.5,
	}
}

// MetadataTarget is the metadata the query is reaching for. Only supplied
// fields contribute to the metadata term; a nil field is "no preference",
// not a mismatch.
type MetadataTarget struct {
	Emotion   *string
	TimeScope *string
	VoiceMode *string
	Intensity *int
}

// ScoreBreakdown carries the per-term contributions so a result can explain
// its own rank.
type ScoreBreakdown struct {
	Recency  float64 `json:"recency"`
	Metadata float64 `json:"metadata"`
	Vector   float64 `json:"vector"`
	Quality  float64 `json:"quality"`
	Total    float64 `json:"total"`
}

// Score combines recency decay, metadata match, vector similarity, and
// quality into one scalar. Pure and deterministic: same inputs, same score.
func Score(chunk *store.Chunk, target MetadataTarget, similarity float64, weights RankWeights, cfg RankConfig, now time.Time) ScoreBreakdown {
	b := ScoreBreakdown{
		Recency:  recencyTerm(chunk.Timestamp, cfg, now),
		Metadata: metadataTerm(chunk, target, cfg),
		Vector:   similarity,
		Quality:  qualityTerm(chunk),
	}
	b.Total = weights.Time*b.Recency +
		weights.Metadata*b.Metadata +
		weights.Vector*b.Vector +
		weights.Quality*b.Quality
	return b
}

func recencyTerm(timestamp int64, cfg RankConfig, now time.Time) float64 {
	if timestamp == 0 {
		return cfg.UnknownRecency
	}
	age := float64(now.Unix() - timestamp)
	if age < 0 {
		age = 0
	}
	return math.Exp(-cfg.Lambda * age)
}

// metadataTerm averages the per-field bonuses over the fields the query
// actually asked about. Categorical equality contributes the full bonus;
// ordinal proximity contributes the bonus scaled by inverse distance.
func metadataTerm(chunk *store.Chunk, target MetadataTarget, cfg RankConfig) float64 {
	var sum float64
	var fields int

	for _, f := range []struct {
		want *string
		got  string
	}{
		{target.Emotion, chunk.Emotion},
		{target.TimeScope, chunk.TimeScope},
		{target.VoiceMode, chunk.VoiceMode},
	} {
		if f.want == nil {
			continue
		}
		fields++
		if f.got == *f.want {
			sum += cfg.CategoricalBonus
		}
	}

	if target.Intensity != nil {
		fields++
		distance := math.Abs(float64(chunk.Intensity - *target.Intensity))
		sum += cfg.CategoricalBonus / (1 + distance)
	}

	if fields == 0 {
		return 0
	}
	return sum / float64(fields)
}

// qualityTerm averages authenticity, specificity, and inverted cliche into
// (0, 1]. The cliche inversion (6 - score) is deliberate: it is the one
// quality field where a low raw value is desirable.
func qualityTerm(chunk *store.Chunk) float64 {
	return float64(chunk.AuthenticityScore+chunk.SpecificityScore+(6-chunk.ClicheScore)) / 15
}

// sortResults orders results by score descending; ties break by timestamp
// descending, then UID ascending, so equal inputs always produce the same
// order.
func sortResults(results []*RetrievedChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score.Total != results[j].Score.Total {
			return results[i].Score.Total > results[j].Score.Total
		}
		if results[i].Chunk.Timestamp != results[j].Chunk.Timestamp {
			return results[i].Chunk.Timestamp > results[j].Chunk.Timestamp
		}
		return results[i].Chunk.UID < results[j].Chunk.UID
	})
}
