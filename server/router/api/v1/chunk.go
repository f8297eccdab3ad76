package v1

import (
	"regexp"

	"github.com/versecraft/lyricmem/store"
)

// Chunk is the wire form of a stored chunk.
type Chunk struct {
	UID               string `json:"uid"`
	Source            string `json:"source"`
	Timestamp         int64  `json:"timestamp,omitempty"`
	Text              string `json:"text"`
	Emotion           string `json:"emotion"`
	TimeScope         string `json:"time_scope"`
	Intensity         int    `json:"intensity"`
	VoiceMode         string `json:"voice_mode"`
	AuthenticityScore int    `json:"authenticity_score"`
	SpecificityScore  int    `json:"specificity_score"`
	ClicheScore       int    `json:"cliche_score"`
	WordCount         int    `json:"word_count"`
	VectorStatus      string `json:"vector_status"`
	CreatedTs         int64  `json:"created_ts"`
}

func chunkResponse(chunk *store.Chunk) *Chunk {
	return &Chunk{
		UID:               chunk.UID,
		Source:            chunk.Source,
		Timestamp:         chunk.Timestamp,
		Text:              chunk.Text,
		Emotion:           chunk.Emotion,
		TimeScope:         chunk.TimeScope,
		Intensity:         chunk.Intensity,
		VoiceMode:         chunk.VoiceMode,
		AuthenticityScore: chunk.AuthenticityScore,
		SpecificityScore:  chunk.SpecificityScore,
		ClicheScore:       chunk.ClicheScore,
		WordCount:         chunk.WordCount,
		VectorStatus:      string(chunk.VectorStatus),
		CreatedTs:         chunk.CreatedTs,
	}
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

func splitWords(text string) []string {
	return wordPattern.FindAllString(text, -1)
}
