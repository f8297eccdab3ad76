package store

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validChunk() *Chunk {
	return &Chunk{
		UID:               "chunk-1",
		Source:            "journal/2024-06-01.txt",
		Timestamp:         1717200000,
		Text:              "I walked past the old station again.",
		Emotion:           "nostalgia",
		TimeScope:         "past",
		Intensity:         3,
		VoiceMode:         "reflective",
		AuthenticityScore: 4,
		SpecificityScore:  4,
		ClicheScore:       2,
		WordCount:         7,
	}
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Chunk)
		wantErr bool
		errMsg  string
	}{
		{"valid", func(_ *Chunk) {}, false, ""},
		{"missing uid", func(c *Chunk) { c.UID = "" }, true, "uid is required"},
		{"missing source", func(c *Chunk) { c.Source = "" }, true, "source is required"},
		{"missing text", func(c *Chunk) { c.Text = "" }, true, "text is required"},
		{"intensity too low", func(c *Chunk) { c.Intensity = 0 }, true, "intensity"},
		{"intensity too high", func(c *Chunk) { c.Intensity = 6 }, true, "intensity"},
		{"authenticity out of range", func(c *Chunk) { c.AuthenticityScore = 9 }, true, "authenticity_score"},
		{"specificity out of range", func(c *Chunk) { c.SpecificityScore = -1 }, true, "specificity_score"},
		{"cliche out of range", func(c *Chunk) { c.ClicheScore = 0 }, true, "cliche_score"},
		{"unknown timestamp is fine", func(c *Chunk) { c.Timestamp = 0 }, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := validChunk()
			tt.mutate(chunk)
			err := chunk.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConstraintViolation),
					"expected ErrConstraintViolation, got %v", err)
				assert.True(t, strings.Contains(err.Error(), tt.errMsg),
					"expected error to contain %q, got %q", tt.errMsg, err.Error())
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestChunkContentEqual(t *testing.T) {
	a := validChunk()

	b := validChunk()
	assert.True(t, a.ContentEqual(b))

	// Row-level fields do not participate in content identity.
	b.ID = 42
	b.CreatedTs = 99
	b.VectorStatus = VectorStatusPending
	assert.True(t, a.ContentEqual(b))

	c := validChunk()
	c.Text = "different text"
	assert.False(t, a.ContentEqual(c))

	d := validChunk()
	d.ClicheScore = 5
	assert.False(t, a.ContentEqual(d))

	assert.False(t, a.ContentEqual(nil))
}

func TestVectorSearchOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    *VectorSearchOptions
		wantErr bool
		errMsg  string
	}{
		{"valid", &VectorSearchOptions{Vector: []float32{0.1}, CandidateUIDs: []string{"a"}}, false, ""},
		{"empty vector", &VectorSearchOptions{CandidateUIDs: []string{"a"}}, true, "vector cannot be empty"},
		{"empty candidates", &VectorSearchOptions{Vector: []float32{0.1}}, true, "candidate set cannot be empty"},
		{"negative limit", &VectorSearchOptions{Vector: []float32{0.1}, CandidateUIDs: []string{"a"}, Limit: -1}, true, "limit cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVectorSearchOptionsValidateSetsDefaultLimit(t *testing.T) {
	opts := &VectorSearchOptions{Vector: []float32{0.1}, CandidateUIDs: []string{"a"}}

	require.NoError(t, opts.Validate())
	assert.Equal(t, 10, opts.Limit)
}
