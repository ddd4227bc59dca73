// Package extraction turns OCR line observations into named document fields
// with per-field and overall confidence.
package extraction

import (
	"fmt"
	"math"
	"strings"
)

// DefaultReviewThreshold is the overall confidence below which a result is
// routed to manual review.
const DefaultReviewThreshold = 80.0

// OCRBlock is one line observation from the OCR provider. Confidence is 0-100.
type OCRBlock struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Result is the structured outcome of one extraction.
type Result struct {
	Fields                map[string]string
	Confidence            map[string]float64
	OverallConfidence     float64
	MissingRequiredFields []string
	RequiresManualReview  bool
	Warnings              []string
}

// Engine extracts fields using a static profile per document type.
type Engine struct {
	profiles  map[string]Profile
	threshold float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithReviewThreshold overrides the manual-review threshold.
func WithReviewThreshold(t float64) Option {
	return func(e *Engine) {
		e.threshold = t
	}
}

// WithProfile registers or replaces the profile for its document type.
func WithProfile(p Profile) Option {
	return func(e *Engine) {
		e.profiles[p.DocumentType] = p
	}
}

// NewEngine builds an engine with the built-in document profiles.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		profiles:  make(map[string]Profile, len(defaultProfiles)),
		threshold: DefaultReviewThreshold,
	}
	for k, p := range defaultProfiles {
		e.profiles[k] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the profile for a document type.
func (e *Engine) Profile(documentType string) (Profile, bool) {
	p, ok := e.profiles[documentType]
	return p, ok
}

// Extract runs the document type's profile over the blocks. An unknown
// document type falls back to the other_id profile.
func (e *Engine) Extract(documentType string, blocks []OCRBlock) Result {
	profile, ok := e.profiles[documentType]
	if !ok {
		profile = otherIDProfile
	}

	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.Text
	}
	doc := strings.Join(lines, "\n")

	res := Result{
		Fields:     make(map[string]string),
		Confidence: make(map[string]float64),
	}

	names := nameLines(lines)
	nameIdx := 0
	for _, spec := range profile.Fields {
		var value string
		if spec.Pattern == nil {
			if spec.Field == FieldSurname || spec.Field == FieldForenames {
				if nameIdx < len(names) {
					value = names[nameIdx]
					nameIdx++
				}
			}
		} else if m := spec.Pattern.FindStringSubmatch(doc); len(m) > 1 {
			value = strings.TrimSpace(m[1])
		}
		if value == "" {
			continue
		}
		res.Fields[spec.Field] = value
		res.Confidence[spec.Field] = blockConfidence(blocks, value)
	}

	res.OverallConfidence = overall(profile, res.Confidence)

	for _, field := range profile.Required() {
		if _, ok := res.Fields[field]; !ok {
			res.MissingRequiredFields = append(res.MissingRequiredFields, field)
			res.Warnings = append(res.Warnings, "missing required field: "+field)
		}
	}
	for _, spec := range profile.Fields {
		if _, ok := res.Fields[spec.Field]; ok && res.Confidence[spec.Field] == 0 {
			res.Warnings = append(res.Warnings, "no source block found for "+spec.Field)
		}
	}
	if res.OverallConfidence < e.threshold {
		res.Warnings = append(res.Warnings, fmt.Sprintf("overall confidence %.2f below threshold %.0f", res.OverallConfidence, e.threshold))
	}
	res.RequiresManualReview = len(res.MissingRequiredFields) > 0 || res.OverallConfidence < e.threshold
	return res
}

// blockConfidence returns the confidence of the first block whose text
// contains value or is contained in it; 0 if none does.
func blockConfidence(blocks []OCRBlock, value string) float64 {
	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if strings.Contains(text, value) || strings.Contains(value, text) {
			return b.Confidence
		}
	}
	return 0
}

// overall is the weighted mean over fields with a positive confidence.
// Absent and zero-confidence fields leave both sums untouched.
func overall(profile Profile, confidence map[string]float64) float64 {
	var num, den float64
	for _, spec := range profile.Fields {
		c := confidence[spec.Field]
		if c <= 0 {
			continue
		}
		w := spec.Weight
		num += w * c
		den += w
	}
	if den == 0 {
		return 0
	}
	return math.Round(num/den*100) / 100
}
