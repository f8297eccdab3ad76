package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/ai/metrics"
	"github.com/versecraft/lyricmem/store"
)

// Filter is the structured prefilter for a retrieval request. Nil fields
// are "no preference". All supplied conditions are ANDed.
type Filter struct {
	Source    *string `json:"source,omitempty"`
	Emotion   *string `json:"emotion,omitempty"`
	TimeScope *string `json:"time_scope,omitempty"`
	VoiceMode *string `json:"voice_mode,omitempty"`

	MinIntensity    *int `json:"min_intensity,omitempty"`
	MaxIntensity    *int `json:"max_intensity,omitempty"`
	MinAuthenticity *int `json:"min_authenticity,omitempty"`
	MinSpecificity  *int `json:"min_specificity,omitempty"`
	MaxCliche       *int `json:"max_cliche,omitempty"`
}

// TimeRange bounds the chunk timestamp, inclusive unix seconds. Chunks with
// an unknown timestamp are excluded when either bound is set.
type TimeRange struct {
	After  *int64 `json:"after,omitempty"`
	Before *int64 `json:"before,omitempty"`
}

// RetrieveRequest is one retrieval query.
type RetrieveRequest struct {
	Query     string       `json:"query"`
	Filter    Filter       `json:"filter"`
	TimeRange TimeRange    `json:"time_range"`
	Weights   *RankWeights `json:"weights,omitempty"`
	TopK      int          `json:"top_k"`

	// MetadataOnly skips the embedding and vector stages, ranking on
	// recency, metadata, and quality alone. Used when the embedding
	// backend is down.
	MetadataOnly bool `json:"metadata_only"`
}

// RetrievedChunk is one ranked result with its score breakdown.
type RetrievedChunk struct {
	Chunk *store.Chunk   `json:"chunk"`
	Score ScoreBreakdown `json:"score"`
}

// RetrieveResponse is the ranked result list. Degraded marks results ranked
// without the vector term.
type RetrieveResponse struct {
	Results        []*RetrievedChunk `json:"results"`
	Degraded       bool              `json:"degraded"`
	CandidateCount int               `json:"candidate_count"`
}

// RetrieverConfig bounds the retrieval pipeline.
type RetrieverConfig struct {
	// CandidateLimit caps the metadata prefilter so an empty filter set
	// never turns into a full-corpus vector scan.
	CandidateLimit int
	// OverfetchFactor multiplies TopK for the vector search stage, so the
	// rerank has enough material to reorder meaningfully.
	OverfetchFactor int
	// MinOverfetch is the floor for the vector search limit.
	MinOverfetch int
	// Timeout bounds the embedding call and the vector search together.
	Timeout time.Duration

	Rank RankConfig
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		CandidateLimit:  300,
		OverfetchFactor: 4,
		MinOverfetch:    30,
		Timeout:         10 * time.Second,
		Rank:            DefaultRankConfig(),
	}
}

// Retriever answers retrieval queries with the three-stage pipeline:
// structured prefilter, candidate-restricted vector search, weighted rerank.
type Retriever struct {
	store    *store.Store
	embedder ai.EmbeddingService
	exporter *metrics.Exporter
	config   RetrieverConfig
}

func NewRetriever(s *store.Store, embedder ai.EmbeddingService, exporter *metrics.Exporter, config RetrieverConfig) *Retriever {
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = 300
	}
	if config.OverfetchFactor <= 0 {
		config.OverfetchFactor = 4
	}
	if config.MinOverfetch <= 0 {
		config.MinOverfetch = 30
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Rank == (RankConfig{}) {
		config.Rank = DefaultRankConfig()
	}
	return &Retriever{store: s, embedder: embedder, exporter: exporter, config: config}
}

// Retrieve executes one retrieval request. An empty prefilter result is a
// valid empty response, not an error, and short-circuits before the
// embedding function is invoked.
func (r *Retriever) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	start := time.Now()
	resp, err := r.retrieve(ctx, req)
	if r.exporter != nil {
		mode := "hybrid"
		if req.MetadataOnly {
			mode = "metadata_only"
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.exporter.ObserveRetrieval(mode, status, time.Since(start))
	}
	return resp, err
}

func (r *Retriever) retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	weights := DefaultRankWeights()
	if req.Weights != nil {
		if !req.Weights.Valid() {
			return nil, errors.Wrap(store.ErrConstraintViolation, "rank weights must be in [0,1]")
		}
		weights = *req.Weights
	}

	// Stage 1: metadata prefilter. Only ready chunks participate; pending
	// ones would vanish from the vector stage without being flagged.
	candidates, err := r.store.ListChunks(ctx, r.prefilterFind(req))
	if err != nil {
		return nil, errors.Wrap(err, "failed to prefilter candidates")
	}
	if r.exporter != nil {
		r.exporter.ObserveCandidatePool(len(candidates))
	}
	if len(candidates) == 0 {
		return &RetrieveResponse{Results: []*RetrievedChunk{}}, nil
	}

	target := MetadataTarget{
		Emotion:   req.Filter.Emotion,
		TimeScope: req.Filter.TimeScope,
		VoiceMode: req.Filter.VoiceMode,
		Intensity: req.Filter.MinIntensity,
	}
	now := time.Now()

	if req.MetadataOnly {
		weights.Vector = 0
		results := make([]*RetrievedChunk, 0, len(candidates))
		for _, chunk := range candidates {
			results = append(results, &RetrievedChunk{
				Chunk: chunk,
				Score: Score(chunk, target, 0, weights, r.config.Rank, now),
			})
		}
		sortResults(results)
		if len(results) > topK {
			results = results[:topK]
		}
		return &RetrieveResponse{
			Results:        results,
			Degraded:       true,
			CandidateCount: len(candidates),
		}, nil
	}

	// Stage 2: embed the query and run the candidate-restricted similarity
	// search, overfetching so the rerank can reorder meaningfully.
	searchCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	queryVector, err := r.embedder.Embed(searchCtx, req.Query)
	if err != nil {
		if searchCtx.Err() != nil {
			return nil, errors.Wrap(ErrRetrievalTimeout, "query embedding")
		}
		return nil, err
	}

	overfetch := r.config.OverfetchFactor * topK
	if overfetch < r.config.MinOverfetch {
		overfetch = r.config.MinOverfetch
	}
	uids := make([]string, len(candidates))
	for i, chunk := range candidates {
		uids[i] = chunk.UID
	}
	hits, err := r.store.VectorSearch(searchCtx, &store.VectorSearchOptions{
		Vector:        queryVector,
		CandidateUIDs: uids,
		Model:         r.embedder.Model(),
		Limit:         overfetch,
	})
	if err != nil {
		if searchCtx.Err() != nil {
			return nil, errors.Wrap(ErrRetrievalTimeout, "vector search")
		}
		return nil, errors.Wrap(err, "failed to run vector search")
	}

	// Stage 3: pure in-memory rerank.
	results := make([]*RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, &RetrievedChunk{
			Chunk: hit.Chunk,
			Score: Score(hit.Chunk, target, hit.Similarity, weights, r.config.Rank, now),
		})
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	return &RetrieveResponse{
		Results:        results,
		CandidateCount: len(candidates),
	}, nil
}

func (r *Retriever) prefilterFind(req *RetrieveRequest) *store.FindChunk {
	ready := store.VectorStatusReady
	return &store.FindChunk{
		Source:          req.Filter.Source,
		Emotion:         req.Filter.Emotion,
		TimeScope:       req.Filter.TimeScope,
		VoiceMode:       req.Filter.VoiceMode,
		MinIntensity:    req.Filter.MinIntensity,
		MaxIntensity:    req.Filter.MaxIntensity,
		MinAuthenticity: req.Filter.MinAuthenticity,
		MinSpecificity:  req.Filter.MinSpecificity,
		MaxCliche:       req.Filter.MaxCliche,
		TimestampAfter:  req.TimeRange.After,
		TimestampBefore: req.TimeRange.Before,
		VectorStatus:    &ready,
		Limit:           r.config.CandidateLimit,
	}
}
