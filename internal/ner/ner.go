// Package ner implements the C4 layer: a transformer-backed token
// classifier wrapped in a process-wide lazy singleton with an explicit
// circuit-breaker state machine.
//
// The HTTP call shape is grounded on gonkalabs-opengnk's
// internal/sanitize/ner/ner.go (a Client.Classify call against a sidecar's
// /classify endpoint, soft-failing on an unreachable sidecar); the
// concurrency/dispatch discipline is grounded on the teacher's
// dispatchOllamaAsync/queryOllamaHTTP (internal/anonymizer/anonymizer.go).
// Unlike gonkalabs' per-call soft-fail, this layer promotes the failure
// mode into the explicit Uninitialized -> Loading -> Ready | Open state
// machine the spec requires (§4.4, §9).
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entity is one merged, filtered named entity found in text.
type Entity struct {
	Value    string
	Category string // PERSON, ORG, LOCATION, MISC
	Score    float64
}

// rawToken is one BIO-tagged token returned by the classifier sidecar.
type rawToken struct {
	Word  string  `json:"word"`
	Label string  `json:"label"` // e.g. "B-PER", "I-ORG", "O"
	Score float64 `json:"score"`
}

const (
	chunkSize = 1000
	overlap   = 200
	step      = chunkSize - overlap

	cooldown = 60 * time.Second
)

// state is the circuit-breaker state.
type state int

const (
	stateUninitialized state = iota
	stateLoading
	stateReady
	stateOpen
)

// Classifier wraps a process-wide lazily-initialized model handle behind a
// circuit breaker. The zero value is not usable; use New.
type Classifier struct {
	endpoint string
	client   *http.Client

	mu         sync.Mutex
	st         state
	model      string
	openedAt   time.Time
	httpClient func(ctx context.Context, endpoint, model, chunk string) ([]rawToken, error)
}

// New constructs a Classifier that calls endpoint's /classify path.
func New(endpoint, model string) *Classifier {
	c := &Classifier{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 10 * time.Second},
		st:       stateUninitialized,
	}
	c.httpClient = c.callSidecar
	return c
}

// SetModel updates the configured model identity; a changed identity
// invalidates the current handle and forces reinitialization on next use.
func (c *Classifier) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if model != c.model {
		c.model = model
		c.st = stateUninitialized
	}
}

// ensureReady advances the state machine, returning whether the classifier
// may be used right now.
func (c *Classifier) ensureReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.st {
	case stateReady:
		return true
	case stateOpen:
		if time.Since(c.openedAt) >= cooldown {
			c.st = stateLoading
			return true // optimistic: the first call after cooldown attempts reinit
		}
		return false
	case stateUninitialized, stateLoading:
		c.st = stateLoading
		return true
	}
	return false
}

func (c *Classifier) markReady() {
	c.mu.Lock()
	c.st = stateReady
	c.mu.Unlock()
}

func (c *Classifier) markOpen() {
	c.mu.Lock()
	c.st = stateOpen
	c.openedAt = time.Now()
	c.mu.Unlock()
}

// Classify runs NER over text and returns entities whose score meets
// minConfidence and whose category is in permittedCategories. On circuit-
// open or any classification failure, it returns (nil, nil) — the caller
// treats this as an empty-detections pass-through (§7 DegradedLayer).
func (c *Classifier) Classify(ctx context.Context, text string, minConfidence float64, permittedCategories map[string]bool) ([]Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if !c.ensureReady() {
		return nil, nil
	}

	chunks := chunkText(text)
	var allTokens []rawToken
	failed := false
	for _, chunk := range chunks {
		tokens, err := c.httpClient(ctx, c.endpoint, c.currentModel(), chunk)
		if err != nil {
			failed = true
			break
		}
		allTokens = append(allTokens, tokens...)
	}
	if failed {
		c.markOpen()
		return nil, nil
	}
	c.markReady()

	merged := mergeBIO(allTokens)
	filtered := filterEntities(merged, minConfidence, permittedCategories)
	return dedupeByValue(filtered), nil
}

func (c *Classifier) currentModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// chunkText splits text into overlapping windows so entities straddling a
// boundary are caught by the neighbouring chunk.
func chunkText(text string) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

type mergedEntity struct {
	category string
	words    []string
	scores   []float64
}

// mergeBIO iterates raw BIO-tagged tokens in order. A B-X starts a new
// merged entity; an I-X extends the previous merged entity iff categories
// match (subword pieces starting with "##" are appended without a
// separator); an orphan I-X is discarded.
func mergeBIO(tokens []rawToken) []Entity {
	var merged []mergedEntity
	var current *mergedEntity

	for _, tok := range tokens {
		prefix, category := splitLabel(tok.Label)
		switch prefix {
		case "B":
			merged = append(merged, mergedEntity{category: category})
			current = &merged[len(merged)-1]
			current.words = append(current.words, tok.Word)
			current.scores = append(current.scores, tok.Score)
		case "I":
			if current == nil || current.category != category {
				continue // orphan I-X, discarded
			}
			if strings.HasPrefix(tok.Word, "##") {
				last := len(current.words) - 1
				current.words[last] = current.words[last] + strings.TrimPrefix(tok.Word, "##")
			} else {
				current.words = append(current.words, tok.Word)
			}
			current.scores = append(current.scores, tok.Score)
		default:
			current = nil
		}
	}

	out := make([]Entity, 0, len(merged))
	for _, m := range merged {
		if len(m.words) == 0 {
			continue
		}
		out = append(out, Entity{
			Value:    strings.Join(m.words, " "),
			Category: expandCategory(m.category),
			Score:    mean(m.scores),
		})
	}
	return out
}

// expandCategory maps the BIO label suffix (PER|ORG|LOC|MISC) to the
// spec's emitted category name.
func expandCategory(short string) string {
	switch short {
	case "PER":
		return "PERSON"
	case "LOC":
		return "LOCATION"
	case "ORG":
		return "ORG"
	case "MISC":
		return "MISC"
	default:
		return short
	}
}

func splitLabel(label string) (prefix, category string) {
	if label == "" || label == "O" {
		return "O", ""
	}
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 {
		return "O", ""
	}
	return parts[0], parts[1]
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func filterEntities(entities []Entity, minConfidence float64, permitted map[string]bool) []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Score < minConfidence {
			continue
		}
		if len(permitted) > 0 && !permitted[e.Category] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// dedupeByValue collapses entities sharing an exact word value across
// chunks (overlap-zone duplicates) to one, keeping the first occurrence.
func dedupeByValue(entities []Entity) []Entity {
	seen := map[string]bool{}
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		key := e.Value
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// Locate finds every case-insensitive occurrence of entity.Value in text,
// resolving overlaps by keeping the longest, leftmost span.
func Locate(text string, entities []Entity) []Detection {
	lowerText := strings.ToLower(text)
	var candidates []Detection
	for _, e := range entities {
		lowerValue := strings.ToLower(e.Value)
		if lowerValue == "" {
			continue
		}
		start := 0
		for {
			idx := strings.Index(lowerText[start:], lowerValue)
			if idx < 0 {
				break
			}
			absStart := start + idx
			absEnd := absStart + len(lowerValue)
			candidates = append(candidates, Detection{
				Category: e.Category, Value: text[absStart:absEnd],
				StartIndex: absStart, EndIndex: absEnd, Confidence: e.Score,
			})
			start = absEnd
		}
	}
	return resolveOverlaps(candidates)
}

// Detection is one NER-layer match located back in the source text.
type Detection struct {
	Category   string
	Value      string
	StartIndex int
	EndIndex   int
	Confidence float64
}

// resolveOverlaps keeps the longest, leftmost span among overlapping
// candidates.
func resolveOverlaps(candidates []Detection) []Detection {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].StartIndex != candidates[j].StartIndex {
			return candidates[i].StartIndex < candidates[j].StartIndex
		}
		return (candidates[i].EndIndex - candidates[i].StartIndex) > (candidates[j].EndIndex - candidates[j].StartIndex)
	})
	var out []Detection
	lastEnd := -1
	for _, c := range candidates {
		if c.StartIndex < lastEnd {
			continue
		}
		out = append(out, c)
		lastEnd = c.EndIndex
	}
	return out
}

// classifyRequest/Response mirror a minimal sidecar wire contract.
type classifyRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type classifyResponse struct {
	Tokens []rawToken `json:"tokens"`
}

func (c *Classifier) callSidecar(ctx context.Context, endpoint, model, chunk string) ([]rawToken, error) {
	body, err := json.Marshal(classifyRequest{Model: model, Text: chunk})
	if err != nil {
		return nil, fmt.Errorf("ner: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ner: sidecar returned status %d", resp.StatusCode)
	}
	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ner: decode response: %w", err)
	}
	return out.Tokens, nil
}
