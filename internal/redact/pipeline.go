// Package redact implements the C6 redaction pipeline: the fixed-order
// orchestration of the Dictionary, NER, Regex, and Names sub-layers.
//
// Grounded on the teacher's AnonymizeText/AnonymizeJSON orchestration
// (internal/anonymizer/anonymizer.go) — a single function driving one
// regex pass plus an optional async AI pass — generalized into four
// explicit, independently gated sub-layers run in a fixed order with
// pipeline-wide deduplication and right-to-left, index-based substitution.
// Unlike the teacher's regex-by-pattern replacement (which the spec's
// design notes call out as an off-by-one hazard — see DESIGN.md), every
// layer here replaces by explicit span, right-to-left.
package redact

import (
	"context"

	"anonamoose/internal/dictionary"
	"anonamoose/internal/names"
	"anonamoose/internal/ner"
	"anonamoose/internal/patterns"
	"anonamoose/internal/tokenizer"
)

// Detection is one PiiDetection, per §3.
type Detection struct {
	Layer      string `json:"layer"`
	Category   string `json:"category"`
	Value      string `json:"value"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	Confidence float64 `json:"confidence"`
}

// Token is a newly minted placeholder -> original binding.
type Token struct {
	Placeholder string
	Original    string
	Layer       string
	Category    string
}

// Config is the settings snapshot the pipeline reads fresh per call (§5:
// "implementations may cache within a single Redact call but not across").
type Config struct {
	EnableDictionary     bool
	EnableNER            bool
	EnableRegex          bool
	EnableNames          bool
	NERMinConfidence     float64
	Locale               patterns.Locale
	TokenizePlaceholders bool
	PlaceholderPrefix    string
	PlaceholderSuffix    string

	PatternAdditions  []patterns.Pattern
	PatternDisabledID map[string]bool
}

// Result is the outcome of one Redact call.
type Result struct {
	RedactedText string
	Tokens       []Token
	Detections   []Detection
}

// Pipeline orchestrates the four sub-layers.
type Pipeline struct {
	dict *dictionary.Dictionary
	ner  *ner.Classifier
}

// New constructs a Pipeline. ner may be nil if NER is unavailable; the
// layer is then always treated as circuit-open (soft-fail, per §7).
func New(dict *dictionary.Dictionary, nerClassifier *ner.Classifier) *Pipeline {
	return &Pipeline{dict: dict, ner: nerClassifier}
}

// Redact runs the fixed-order pipeline over text for sessionID and returns
// the rewritten text, cumulative tokens, and all accepted detections.
func (p *Pipeline) Redact(ctx context.Context, text, sessionID string, cfg Config) Result {
	original := text
	tok := tokenizer.New(cfg.PlaceholderPrefix, cfg.PlaceholderSuffix)

	var allTokens []Token
	var allDetections []Detection
	accepted := map[string]bool{} // "category|lowervalue" set for NER/Names dedup

	markAccepted := func(dets []Detection) {
		for _, d := range dets {
			accepted[dedupKey(d.Category, d.Value)] = true
		}
	}

	// --- 1. Dictionary ---
	if cfg.EnableDictionary && p.dict != nil {
		rewritten, tokens, dets := p.dict.Redact(tok, text)
		text = rewritten
		for _, t := range tokens {
			allTokens = append(allTokens, Token{Placeholder: t.Placeholder, Original: t.Original, Layer: t.Layer, Category: t.Category})
		}
		for _, d := range dets {
			allDetections = append(allDetections, Detection{
				Layer: d.Layer, Category: d.Category, Value: d.Value,
				StartIndex: d.StartIndex, EndIndex: d.EndIndex, Confidence: d.Confidence,
			})
		}
		markAccepted(allDetections)
	}

	// --- 2. NER ---
	if cfg.EnableNER && p.ner != nil {
		minConf := cfg.NERMinConfidence
		if minConf <= 0 {
			minConf = 0.6
		}
		permitted := map[string]bool{"PERSON": true, "ORG": true, "LOCATION": true, "MISC": true}
		entities, _ := p.ner.Classify(ctx, text, minConf, permitted)
		located := ner.Locate(text, entities)

		var kept []ner.Detection
		for _, d := range located {
			key := dedupKey(d.Category, d.Value)
			if accepted[key] {
				continue
			}
			accepted[key] = true
			kept = append(kept, d)
		}

		newText, newTokens, newDets := mintAndReplace(tok, text, kept, "NER")
		text = newText
		allTokens = append(allTokens, newTokens...)
		allDetections = append(allDetections, newDets...)
	}

	// --- 3. Regex ---
	if cfg.EnableRegex {
		catalogue := patterns.AllWithOverlay(cfg.Locale, cfg.PatternAdditions, cfg.PatternDisabledID)
		regexDets := scanRegex(text, catalogue)
		newText, newTokens, newDets := mintAndReplace(tok, text, regexDets, "Regex")
		text = newText
		allTokens = append(allTokens, newTokens...)
		allDetections = append(allDetections, newDets...)
	}

	// --- 4. Names ---
	if cfg.EnableNames {
		nameDets := names.Scan(text, 0)
		var kept []genericDetection
		for _, d := range nameDets {
			key := dedupKey("PERSON", d.Value)
			if accepted[key] {
				continue
			}
			accepted[key] = true
			kept = append(kept, genericDetection{Category: "PERSON", Value: d.Value, StartIndex: d.StartIndex, EndIndex: d.EndIndex, Confidence: d.Confidence})
		}
		newText, newTokens, newDets := mintAndReplaceGeneric(tok, text, kept, "Names")
		text = newText
		allTokens = append(allTokens, newTokens...)
		allDetections = append(allDetections, newDets...)
	}

	if !cfg.TokenizePlaceholders {
		// Analysis-only mode: every layer still ran (so detections reflect
		// the full pipeline) but the caller gets the untouched input back
		// and no placeholder bindings, per §4.6.
		return Result{RedactedText: original, Tokens: nil, Detections: allDetections}
	}

	return Result{RedactedText: text, Tokens: allTokens, Detections: allDetections}
}

func dedupKey(category, value string) string {
	return category + "|" + toLowerASCII(value)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

type genericDetection struct {
	Category   string
	Value      string
	StartIndex int
	EndIndex   int
	Confidence float64
}

func mintAndReplace(tok *tokenizer.Tokenizer, text string, dets []ner.Detection, layer string) (string, []Token, []Detection) {
	generic := make([]genericDetection, len(dets))
	for i, d := range dets {
		generic[i] = genericDetection{Category: d.Category, Value: d.Value, StartIndex: d.StartIndex, EndIndex: d.EndIndex, Confidence: d.Confidence}
	}
	return mintAndReplaceGeneric(tok, text, generic, layer)
}

// mintAndReplaceGeneric mints a placeholder per detection and substitutes
// right-to-left by byte index, so earlier spans stay valid. Detections
// must be pre-sorted or are sorted here by StartIndex ascending before the
// right-to-left pass.
func mintAndReplaceGeneric(tok *tokenizer.Tokenizer, text string, dets []genericDetection, layer string) (string, []Token, []Detection) {
	if len(dets) == 0 {
		return text, nil, nil
	}
	sortByStart(dets)

	var tokens []Token
	var detections []Detection
	result := text
	for i := len(dets) - 1; i >= 0; i-- {
		d := dets[i]
		placeholder := tok.NewPlaceholder()
		tokens = append(tokens, Token{Placeholder: placeholder, Original: d.Value, Layer: layer, Category: d.Category})
		result = tokenizer.ReplaceSpan(result, d.StartIndex, d.EndIndex, placeholder)
	}
	for _, d := range dets {
		detections = append(detections, Detection{Layer: layer, Category: d.Category, Value: d.Value, StartIndex: d.StartIndex, EndIndex: d.EndIndex, Confidence: d.Confidence})
	}
	return result, tokens, detections
}

func sortByStart(dets []genericDetection) {
	for i := 1; i < len(dets); i++ {
		for j := i; j > 0 && dets[j].StartIndex < dets[j-1].StartIndex; j-- {
			dets[j], dets[j-1] = dets[j-1], dets[j]
		}
	}
}

// scanRegex runs every applicable catalogue pattern over text, validates
// matches, and returns detections (not yet replaced). Regex detections are
// "never suppressed by earlier layers" per §4.6, but overlapping matches
// from different patterns are resolved here by resolveRegexOverlaps, so a
// single substring is tokenized at most once.
func scanRegex(text string, catalogue []patterns.Pattern) []genericDetection {
	var all []genericDetection
	for _, p := range catalogue {
		matches := p.Regex.FindAllStringIndex(text, -1)
		for _, m := range matches {
			start, end := m[0], m[1]
			value := text[start:end]
			if p.Validator != nil && !p.Validator(value) {
				continue
			}
			all = append(all, genericDetection{Category: p.Name, Value: value, StartIndex: start, EndIndex: end, Confidence: p.Confidence})
		}
	}
	return resolveRegexOverlaps(all)
}

// resolveRegexOverlaps keeps the longest, leftmost span among overlapping
// regex matches so a single substring is not tokenized twice by competing
// patterns.
func resolveRegexOverlaps(dets []genericDetection) []genericDetection {
	sortByStartDesc(dets)
	var out []genericDetection
	lastEnd := -1
	for _, d := range dets {
		if d.StartIndex < lastEnd {
			continue
		}
		out = append(out, d)
		lastEnd = d.EndIndex
	}
	return out
}

func sortByStartDesc(dets []genericDetection) {
	for i := 1; i < len(dets); i++ {
		for j := i; j > 0; j-- {
			a, b := dets[j-1], dets[j]
			if a.StartIndex < b.StartIndex || (a.StartIndex == b.StartIndex && (a.EndIndex-a.StartIndex) >= (b.EndIndex-b.StartIndex)) {
				break
			}
			dets[j-1], dets[j] = dets[j], dets[j-1]
		}
	}
}
