package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/ai/metrics"
	"github.com/versecraft/lyricmem/engine"
	"github.com/versecraft/lyricmem/store"
)

// PipelineOptions controls one ingestion run.
type PipelineOptions struct {
	// AllowPending lets chunk writes proceed without vectors when the
	// embedding backend is down; they are backfilled later.
	AllowPending bool
	// Concurrency bounds the number of parallel chunk writes.
	Concurrency int
}

// PipelineResult summarizes one ingestion run.
type PipelineResult struct {
	RunID     string `json:"run_id"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Written   int    `json:"written"`
	Skipped   int    `json:"skipped"`
}

// Pipeline wires ingest, chunking, labeling, and writing into one run.
type Pipeline struct {
	ingestor *Ingestor
	chunker  *Chunker
	labeler  ai.Labeler
	writer   *engine.Writer
	exporter *metrics.Exporter

	labelBatchSize int
}

func NewPipeline(ingestor *Ingestor, chunker *Chunker, labeler ai.Labeler, writer *engine.Writer, exporter *metrics.Exporter) *Pipeline {
	return &Pipeline{
		ingestor:       ingestor,
		chunker:        chunker,
		labeler:        labeler,
		writer:         writer,
		exporter:       exporter,
		labelBatchSize: 8,
	}
}

// Run ingests the given paths end to end: load, chunk, label, write.
// Individual chunk conflicts (already-ingested content) are skipped, not
// fatal; infrastructure failures abort the run.
func (p *Pipeline) Run(ctx context.Context, paths []string, opts PipelineOptions) (*PipelineResult, error) {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID)

	documents, err := p.ingestor.IngestPaths(paths)
	if err != nil {
		return nil, err
	}
	chunks := p.chunker.ChunkDocuments(documents)
	logger.Info("ingestion loaded sources", "documents", len(documents), "chunks", len(chunks))

	if p.exporter != nil {
		byFormat := map[string]int{}
		for _, chunk := range chunks {
			byFormat[formatOf(chunk.Source)]++
		}
		for format, n := range byFormat {
			p.exporter.CountIngestedChunks(format, n)
		}
	}

	if err := p.labelChunks(ctx, chunks); err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var written, skipped atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, chunk := range chunks {
		group.Go(func() error {
			_, err := p.writer.Write(groupCtx, chunk, engine.WriteOptions{AllowPending: opts.AllowPending})
			if err != nil {
				if errors.Is(err, store.ErrConstraintViolation) {
					skipped.Add(1)
					return nil
				}
				return err
			}
			written.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := &PipelineResult{
		RunID:     runID,
		Documents: len(documents),
		Chunks:    len(chunks),
		Written:   int(written.Load()),
		Skipped:   int(skipped.Load()),
	}
	logger.Info("ingestion run finished",
		"written", result.Written, "skipped", result.Skipped)
	return result, nil
}

// labelChunks assigns weak labels in batches.
func (p *Pipeline) labelChunks(ctx context.Context, chunks []*store.Chunk) error {
	for start := 0; start < len(chunks); start += p.labelBatchSize {
		end := start + p.labelBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}
		labels, err := p.labeler.LabelBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, chunk := range batch {
			chunk.Emotion = labels[i].Emotion
			chunk.TimeScope = labels[i].TimeScope
			chunk.VoiceMode = labels[i].VoiceMode
			chunk.Intensity = labels[i].Intensity
			chunk.AuthenticityScore = labels[i].AuthenticityScore
			chunk.SpecificityScore = labels[i].SpecificityScore
			chunk.ClicheScore = labels[i].ClicheScore
		}
	}
	return nil
}

func formatOf(source string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(source, "#", 2)[0]))
	if ext == "" {
		return "unknown"
	}
	return strings.TrimPrefix(ext, ".")
}
