// Package analysis turns a transcript into a speech-coaching prompt, pulls the
// JSON document out of the model's reply and keeps the latest one on record.
package analysis

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is the structured speech analysis returned by the model.
type Document struct {
	ResponseAnalysis ResponseAnalysis `json:"response_analysis"`
}

type ResponseAnalysis struct {
	Lines    []Line   `json:"lines"`
	Totals   Totals   `json:"totals"`
	Metadata Metadata `json:"metadata"`
}

// Line is the feedback for one spoken line.
type Line struct {
	Original           string   `json:"original"`
	ImprovedVersion    string   `json:"improved_version"`
	FillerWordsList    []string `json:"filler_words_list"`
	RepeatedPhrases    []string `json:"repeated_phrases"`
	VagueOrAwkwardList []string `json:"vague_or_awkward_list"`
	FillerWords        float64  `json:"filler_words"`
	Repetition         float64  `json:"repetition"`
	VagueOrAwkward     float64  `json:"vague_or_awkward"`
	ConfidenceLevel    float64  `json:"confidence_level"`
}

type Totals struct {
	FillerWords            float64 `json:"filler_words"`
	Repetition             float64 `json:"repetition"`
	VagueOrAwkward         float64 `json:"vague_or_awkward"`
	OverallMistakes        float64 `json:"overall_mistakes"`
	OverallConfidenceLevel float64 `json:"overall_confidence_level"`
}

// Metadata identifies one analysis. ResponseID may be a string or a number
// in model output.
type Metadata struct {
	ResponseID      any    `json:"response_id"`
	AnalyzedAt      string `json:"analyzed_at"`
	AnalyzerVersion string `json:"analyzer_version"`
}

// Decode parses raw into a Document. Models are loose with field types, so
// callers that only relay the JSON should keep the raw form instead.
func Decode(raw json.RawMessage) (*Document, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty analysis")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &doc, nil
}

// Mistakes sums the per-line issue counts.
func (d *Document) Mistakes() float64 {
	var total float64
	for _, line := range d.ResponseAnalysis.Lines {
		total += line.FillerWords + line.Repetition + line.VagueOrAwkward
	}
	return total
}

// Stamp fills metadata fields the model left empty. Everything else in raw is
// carried through untouched.
func Stamp(raw json.RawMessage, responseID, version string, now time.Time) (json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("stamp analysis: %w", err)
	}
	rawBody, ok := top["response_analysis"]
	if !ok {
		return raw, nil
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rawBody, &body); err != nil || body == nil {
		return raw, nil
	}
	meta := map[string]any{}
	if rawMeta, ok := body["metadata"]; ok {
		if err := json.Unmarshal(rawMeta, &meta); err != nil || meta == nil {
			meta = map[string]any{}
		}
	}
	setIfEmpty(meta, "response_id", responseID)
	setIfEmpty(meta, "analyzed_at", now.UTC().Format(time.RFC3339))
	setIfEmpty(meta, "analyzer_version", version)

	encodedMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	body["metadata"] = encodedMeta
	encodedBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	top["response_analysis"] = encodedBody
	return json.Marshal(top)
}

func setIfEmpty(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	switch v := m[key].(type) {
	case nil:
		m[key] = value
	case string:
		if v == "" {
			m[key] = value
		}
	}
}
