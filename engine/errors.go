package engine

import "github.com/pkg/errors"

// ErrRetrievalTimeout is returned when the embedding call or the vector
// search exceeds its deadline. The whole retrieval fails rather than
// returning a partially reranked list, since partial reranking would bias
// results toward whichever candidates resolved first.
var ErrRetrievalTimeout = errors.New("retrieval timed out")
