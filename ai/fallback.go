package ai

import (
	"context"
	"log/slog"
)

// FallbackLabeler tries a primary labeler and falls back to a secondary one
// when the primary fails. Used to pair the model labeler with heuristics so
// ingestion keeps moving when the model is down.
type FallbackLabeler struct {
	primary  Labeler
	fallback Labeler
}

func NewFallbackLabeler(primary, fallback Labeler) *FallbackLabeler {
	return &FallbackLabeler{primary: primary, fallback: fallback}
}

func (l *FallbackLabeler) LabelBatch(ctx context.Context, texts []string) ([]Labels, error) {
	labels, err := l.primary.LabelBatch(ctx, texts)
	if err == nil {
		return labels, nil
	}
	slog.Warn("primary labeler failed, falling back", "error", err)
	return l.fallback.LabelBatch(ctx, texts)
}
