package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// Label vocabularies. Values outside these sets are normalized to "unknown"
// rather than rejected, so a sloppy model response never poisons the store.
var (
	AllowedEmotions = []string{
		"joy", "sadness", "anger", "fear", "nostalgia",
		"hope", "love", "regret", "conflict", "calm", "unknown",
	}
	AllowedTimeScopes = []string{"past", "present", "future", "timeless", "mixed", "unknown"}
	AllowedVoiceModes = []string{
		"confessional", "observational", "dialogue",
		"imagistic", "boastful", "reflective", "unknown",
	}
)

// Labels holds the weak semantic labels for one chunk of text.
type Labels struct {
	Emotion           string `json:"emotion"`
	TimeScope         string `json:"time_scope"`
	VoiceMode         string `json:"voice_mode"`
	Intensity         int    `json:"intensity"`
	AuthenticityScore int    `json:"authenticity_score"`
	SpecificityScore  int    `json:"specificity_score"`
	ClicheScore       int    `json:"cliche_score"`
}

// Labeler assigns weak semantic labels to chunk texts.
type Labeler interface {
	// LabelBatch returns one Labels per input text, in order.
	LabelBatch(ctx context.Context, texts []string) ([]Labels, error)
}

// Normalize clamps scores into [1, 5] and maps out-of-vocabulary categorical
// values to "unknown".
func (l *Labels) Normalize() {
	l.Emotion = normalizeValue(l.Emotion, AllowedEmotions)
	l.TimeScope = normalizeValue(l.TimeScope, AllowedTimeScopes)
	l.VoiceMode = normalizeValue(l.VoiceMode, AllowedVoiceModes)
	l.Intensity = clampScore(l.Intensity)
	l.AuthenticityScore = clampScore(l.AuthenticityScore)
	l.SpecificityScore = clampScore(l.SpecificityScore)
	l.ClicheScore = clampScore(l.ClicheScore)
}

func normalizeValue(value string, allowed []string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, v := range allowed {
		if value == v {
			return value
		}
	}
	return "unknown"
}

func clampScore(score int) int {
	if score < 1 {
		return 3
	}
	if score > 5 {
		return 5
	}
	return score
}

const labelerSystemPrompt = `You are a conservative weak-labeling engine for lyric-writing memory chunks.

Rules:
1) Use only the text evidence in each chunk.
2) Never invent facts or names.
3) If uncertain, set emotion/time_scope/voice_mode to "unknown".
4) Scores must be integers 1-5.
5) Output STRICT JSON only, no markdown and no extra commentary.

Return exactly:
{"labels": [{"id": 0, "emotion": "unknown", "time_scope": "unknown", "intensity": 3, "voice_mode": "unknown", "authenticity_score": 3, "specificity_score": 3, "cliche_score": 3}]}`

// ModelLabeler labels chunks with a chat model through an OpenAI-compatible
// API. Responses that cannot be parsed yield ErrLabelingUnavailable so the
// caller can fall back to heuristics.
type ModelLabeler struct {
	client *openai.Client
	model  string
}

func NewModelLabeler(cfg *LabelerConfig) (*ModelLabeler, error) {
	if cfg.Model == "" {
		return nil, errors.New("labeler model required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &ModelLabeler{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

type labeledItem struct {
	ID int `json:"id"`
	Labels
}

type labelerResponse struct {
	Labels []labeledItem `json:"labels"`
}

func (l *ModelLabeler) LabelBatch(ctx context.Context, texts []string) ([]Labels, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Allowed emotion values: " + strings.Join(AllowedEmotions, ", ") + "\n")
	sb.WriteString("Allowed time_scope values: " + strings.Join(AllowedTimeScopes, ", ") + "\n")
	sb.WriteString("Allowed voice_mode values: " + strings.Join(AllowedVoiceModes, ", ") + "\n\nChunks:\n")
	for i, text := range texts {
		// Cap each chunk to keep the request bounded.
		if len(text) > 1800 {
			text = text[:1800]
		}
		fmt.Fprintf(&sb, "[id=%d]\n%s\n\n", i, text)
	}

	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: labelerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(ErrLabelingUnavailable, "chat completion failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(ErrLabelingUnavailable, "empty completion response")
	}

	parsed, err := extractLabelerResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	labels := make([]Labels, len(texts))
	for i := range labels {
		labels[i] = Labels{Intensity: 3, AuthenticityScore: 3, SpecificityScore: 3, ClicheScore: 3,
			Emotion: "unknown", TimeScope: "unknown", VoiceMode: "unknown"}
	}
	for _, item := range parsed.Labels {
		if item.ID < 0 || item.ID >= len(texts) {
			continue
		}
		out := item.Labels
		out.Normalize()
		labels[item.ID] = out
	}

	return labels, nil
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// extractLabelerResponse parses the model output, tolerating stray prose or
// markdown fences around the JSON object.
func extractLabelerResponse(raw string) (*labelerResponse, error) {
	raw = strings.TrimSpace(raw)

	var parsed labelerResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil && parsed.Labels != nil {
		return &parsed, nil
	}

	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return nil, errors.Wrap(ErrLabelingUnavailable, "no JSON object in labeler response")
	}
	if err := json.Unmarshal([]byte(match), &parsed); err != nil || parsed.Labels == nil {
		return nil, errors.Wrap(ErrLabelingUnavailable, "malformed labeler response")
	}
	return &parsed, nil
}
