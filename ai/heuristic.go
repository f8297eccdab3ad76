package ai

import (
	"context"
	"regexp"
	"strings"
)

// HeuristicLabeler assigns labels from surface text markers. It is the
// fallback when no model is configured or the model response is unusable,
// and it never fails.
type HeuristicLabeler struct{}

func NewHeuristicLabeler() *HeuristicLabeler {
	return &HeuristicLabeler{}
}

var (
	emotionMarkers = []struct {
		emotion string
		tokens  []string
	}{
		{"nostalgia", []string{"miss", "remember", "back then", "used to"}},
		{"love", []string{"love", "kiss", "heart"}},
		{"anger", []string{"angry", "rage", "mad", "furious"}},
		{"sadness", []string{"sad", "cry", "alone", "hurt"}},
		{"hope", []string{"hope", "dream", "soon", "someday"}},
		{"calm", []string{"calm", "quiet", "peace"}},
	}

	pastMarkers = []string{
		"yesterday", "back then", "used to", "was ", "were ",
		"remember", "remembered", "said ", "told ", "wrote ",
		"knew ", "forgot", "left ", "lost ", "once ", " ago",
		"when i was", "had been", "i'd ", "i had ",
	}
	presentMarkers = []string{
		"now", "today", "right now", "am ", "currently",
		"at this moment", "i'm ", "i am ",
	}
	futureMarkers = []string{
		"tomorrow", "will ", "someday", "next year",
		"going to", "want to", "plan to", "hope to", "i'll ",
	}

	clichePhrases = []string{
		"broken heart",
		"set me free",
		"in the dark",
		"one more chance",
		"tears in the rain",
	}

	numberPattern    = regexp.MustCompile(`\b\d{1,4}\b`)
	monthPattern     = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	placePattern     = regexp.MustCompile(`\b(avenue|street|station|city|room|kitchen)\b`)
	firstPersonWords = regexp.MustCompile(`\b(i|me|my|mine)\b`)
	feelingWords     = regexp.MustCompile(`\b(feel|felt|truth|real)\b`)
)

func (l *HeuristicLabeler) LabelBatch(_ context.Context, texts []string) ([]Labels, error) {
	labels := make([]Labels, len(texts))
	for i, text := range texts {
		labels[i] = labelHeuristic(text)
	}
	return labels, nil
}

func labelHeuristic(raw string) Labels {
	text := strings.ToLower(raw)

	emotion := "unknown"
	for _, m := range emotionMarkers {
		if containsAny(text, m.tokens) {
			emotion = m.emotion
			break
		}
	}

	timeScope := "unknown"
	switch {
	case containsAny(text, pastMarkers):
		timeScope = "past"
	case containsAny(text, presentMarkers):
		timeScope = "present"
	case containsAny(text, futureMarkers):
		timeScope = "future"
	}

	voiceMode := "observational"
	if containsAny(text, []string{"i ", "my ", "me "}) {
		voiceMode = "reflective"
	}

	intensity := 1 + strings.Count(text, "!")
	if containsAny(text, []string{"never", "always"}) {
		intensity++
	}

	specificity := 2
	if numberPattern.MatchString(text) {
		specificity++
	}
	if monthPattern.MatchString(text) {
		specificity++
	}
	if placePattern.MatchString(text) {
		specificity++
	}

	authenticity := 3
	if firstPersonWords.MatchString(text) {
		authenticity++
	}
	if feelingWords.MatchString(text) {
		authenticity++
	}

	cliche := 1
	for _, phrase := range clichePhrases {
		if strings.Contains(text, phrase) {
			cliche++
		}
	}

	labels := Labels{
		Emotion:           emotion,
		TimeScope:         timeScope,
		VoiceMode:         voiceMode,
		Intensity:         intensity,
		AuthenticityScore: authenticity,
		SpecificityScore:  specificity,
		ClicheScore:       cliche,
	}
	labels.Normalize()
	return labels
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}
