package ai

import "github.com/pkg/errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding backend could not
	// produce a vector. Callers decide whether to defer the vector write or
	// degrade to metadata-only retrieval.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLabelingUnavailable indicates the model-backed labeler failed;
	// callers fall back to heuristic labels.
	ErrLabelingUnavailable = errors.New("labeling service unavailable")
)
