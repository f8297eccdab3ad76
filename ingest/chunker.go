package ingest

import (
	"regexp"
	"strings"

	"github.com/lithammer/shortuuid/v4"

	"github.com/versecraft/lyricmem/store"
)

// ChunkerConfig holds the word budgets for semantic chunking.
type ChunkerConfig struct {
	// MinWords is the target floor; a segment below it may be merged into
	// its neighbor.
	MinWords int
	// MaxWords is the soft packing ceiling.
	MaxWords int
	// HardMaxWords is never exceeded; longer segments are split on
	// sentence boundaries.
	HardMaxWords int
}

func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MinWords:     80,
		MaxWords:     300,
		HardMaxWords: 380,
	}
}

// Chunker splits normalized documents into chunks along narrative
// boundaries: blank lines and conversation/lyric turn markers.
type Chunker struct {
	config ChunkerConfig
}

func NewChunker(config ChunkerConfig) *Chunker {
	if config.MinWords <= 0 {
		config = DefaultChunkerConfig()
	}
	return &Chunker{config: config}
}

// turnPattern marks conversation and song-structure boundaries that start a
// new segment even without a blank line.
var turnPattern = regexp.MustCompile(`(?i)^(user|assistant|speaker\s*\d*|verse|chorus|bridge|hook|freestyle)\s*[:\-]`)

var (
	wordPattern          = regexp.MustCompile(`\b\w+\b`)
	sentenceBreakPattern = regexp.MustCompile(`[.!?]\s+`)
)

// ChunkDocuments splits every document into chunk drafts. The returned
// chunks carry UID, source, timestamp, text, and word count; labels are
// assigned downstream.
func (c *Chunker) ChunkDocuments(docs []*RawDocument) []*store.Chunk {
	chunks := []*store.Chunk{}
	for _, doc := range docs {
		for _, text := range c.packSegments(c.splitSegments(doc.Text)) {
			chunks = append(chunks, &store.Chunk{
				UID:       shortuuid.New(),
				Source:    doc.Source,
				Timestamp: doc.Timestamp,
				Text:      text,
				WordCount: countWords(text),
			})
		}
	}
	return chunks
}

func countWords(text string) int {
	return len(wordPattern.FindAllString(text, -1))
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sentences := []string{}
	start := 0
	for _, loc := range sentenceBreakPattern.FindAllStringIndex(text, -1) {
		sentences = append(sentences, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	// Trailing text without terminal punctuation is still a sentence.
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitSegments breaks text on blank lines and turn markers.
func (c *Chunker) splitSegments(text string) []string {
	lines := strings.Split(text, "\n")
	segments := []string{}
	current := []string{}

	flush := func() {
		if len(current) > 0 {
			segments = append(segments, strings.TrimSpace(strings.Join(current, " ")))
			current = nil
		}
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			flush()
			continue
		}
		if turnPattern.MatchString(line) && len(current) > 0 {
			flush()
		}
		current = append(current, line)
	}
	flush()

	out := segments[:0]
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitLongSegment breaks an over-budget segment on sentence boundaries.
func (c *Chunker) splitLongSegment(segment string) []string {
	if countWords(segment) <= c.config.HardMaxWords {
		return []string{segment}
	}
	out := []string{}
	current := []string{}
	curWords := 0
	for _, sentence := range splitSentences(segment) {
		words := countWords(sentence)
		if len(current) > 0 && curWords+words > c.config.HardMaxWords {
			out = append(out, strings.Join(current, " "))
			current = []string{sentence}
			curWords = words
			continue
		}
		current = append(current, sentence)
		curWords += words
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// packSegments greedily packs segments toward MaxWords, letting an
// under-MinWords chunk absorb the next segment up to HardMaxWords, and
// merging an undersized tail into its predecessor.
func (c *Chunker) packSegments(segments []string) []string {
	expanded := []string{}
	for _, seg := range segments {
		expanded = append(expanded, c.splitLongSegment(seg)...)
	}

	out := []string{}
	current := []string{}
	curWords := 0

	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
		}
		current = nil
		curWords = 0
	}

	for _, seg := range expanded {
		words := countWords(seg)
		if len(current) == 0 {
			current = []string{seg}
			curWords = words
			continue
		}

		proposed := curWords + words
		if proposed <= c.config.MaxWords {
			current = append(current, seg)
			curWords = proposed
			continue
		}
		if curWords < c.config.MinWords && proposed <= c.config.HardMaxWords {
			current = append(current, seg)
			curWords = proposed
			continue
		}

		flush()
		current = []string{seg}
		curWords = words
	}
	flush()

	// Merge an undersized tail chunk into its predecessor.
	if len(out) >= 2 {
		last := countWords(out[len(out)-1])
		prev := countWords(out[len(out)-2])
		if last < c.config.MinWords && prev+last <= c.config.HardMaxWords {
			out[len(out)-2] = out[len(out)-2] + " " + out[len(out)-1]
			out = out[:len(out)-1]
		}
	}
	return out
}
