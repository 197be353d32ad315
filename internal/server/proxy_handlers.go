package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"anonamoose/internal/observability"
	"anonamoose/internal/patterns"
	"anonamoose/internal/redact"
	"anonamoose/internal/rehydrate"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// handleOpenAIChat implements the redaction-aware OpenAI chat-completions
// proxy endpoint.
func (s *Server) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, "openai", s.opts.OpenAIBaseURL+"/v1/chat/completions", walkOpenAIBody)
}

// handleAnthropicMessages implements the redaction-aware Anthropic
// messages proxy endpoint.
func (s *Server) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	s.handleChat(w, r, "anthropic", s.opts.AnthropicBaseURL+"/v1/messages", walkAnthropicBody)
}

// handleChat is the shared request/response pipeline for both providers:
// read headers, redact request text, forward, hydrate response (buffered
// or streamed).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, source, upstreamURL string, walk func(map[string]any, func(string) string)) {
	upstreamKey := r.Header.Get("Authorization")
	if upstreamKey == "" {
		writeError(w, http.StatusUnauthorized, "missing Authorization header")
		return
	}

	sessionID := sessionIDFromRequest(r)
	doRedact := boolHeader(r, "x-anonamoose-redact", true)
	doHydrate := boolHeader(r, "x-anonamoose-hydrate", true)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}

	var body map[string]any
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
			return
		}
	}

	var allTokens []redact.Token
	if doRedact && body != nil {
		cfg, cfgErr := s.pipelineConfig(r)
		if cfgErr != nil {
			writeInternalError(w, s.log, cfgErr)
			return
		}
		walk(body, func(text string) string {
			res := s.pipeline.Redact(r.Context(), text, sessionID, cfg)
			allTokens = append(allTokens, res.Tokens...)
			if len(res.Detections) > 0 {
				s.recordRedactionLog(source, sessionID, text, res.RedactedText, res.Detections)
			}
			if cfg.TokenizePlaceholders {
				return res.RedactedText
			}
			return text
		})
		if len(allTokens) > 0 {
			s.sessions.Add(sessionID, allTokens)
			s.persistTokens(sessionID, allTokens)
			if cfg.TokenizePlaceholders {
				injectPIIInstruction(source, body)
			}
		}
	}

	outBody := rawBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			writeInternalError(w, s.log, err)
			return
		}
		outBody = encoded
	}

	streaming, _ := body["stream"].(bool)

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstreamURL, bytes.NewReader(outBody))
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	copyForwardHeaders(upstreamReq.Header, r.Header)
	upstreamReq.ContentLength = int64(len(outBody))

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.UpstreamTimeout)
	defer cancel()
	upstreamReq = upstreamReq.WithContext(ctx)

	resp, err := s.httpClient.Do(upstreamReq)
	if err != nil {
		s.metrics.ErrorsUpstream.Add(1)
		writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	snapshot := s.sessions.Snapshot(sessionID)
	hydrate := func(text string) string {
		if !doHydrate {
			return text
		}
		return hydrateWithMap(text, snapshot)
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	if streaming {
		sseSplitter(w, resp.Body, hydrate) //nolint:errcheck
		return
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	if !doHydrate || len(snapshot) == 0 {
		w.Write(respBytes) //nolint:errcheck
		return
	}
	var respBody any
	if err := json.Unmarshal(respBytes, &respBody); err != nil {
		w.Write(respBytes) //nolint:errcheck
		return
	}
	hydrated := hydrateJSONValue(respBody, hydrate)
	encoded, err := json.Marshal(hydrated)
	if err != nil {
		w.Write(respBytes) //nolint:errcheck
		return
	}
	w.Write(encoded) //nolint:errcheck
}

// handleOpenAIPassthrough forwards OpenAI-shaped requests verbatim, with no
// redaction, per §6 ("ALL /v1/*, /models, /embeddings: OpenAI passthrough
// without redaction").
func (s *Server) handleOpenAIPassthrough(w http.ResponseWriter, r *http.Request) {
	upstreamKey := r.Header.Get("Authorization")
	if upstreamKey == "" {
		writeError(w, http.StatusUnauthorized, "missing Authorization header")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	target := s.opts.OpenAIBaseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	copyForwardHeaders(upstreamReq.Header, r.Header)

	resp, err := s.httpClient.Do(upstreamReq)
	if err != nil {
		s.metrics.ErrorsUpstream.Add(1)
		writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body) //nolint:errcheck
}

// handleDirectRedact implements POST /api/v1/redact.
func (s *Server) handleDirectRedact(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Text   string  `json:"text"`
		Locale *string `json:"locale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if len([]rune(req.Text)) > s.opts.MaxRedactChars {
		writeError(w, http.StatusBadRequest, "text exceeds maximum redactable length")
		return
	}

	sessionID := sessionIDFromRequest(r)
	cfg, err := s.pipelineConfig(r)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if req.Locale != nil {
		cfg.Locale = patterns.Locale(strings.ToUpper(*req.Locale))
	}

	res := s.pipeline.Redact(r.Context(), req.Text, sessionID, cfg)
	if len(res.Tokens) > 0 {
		s.sessions.Add(sessionID, res.Tokens)
		s.persistTokens(sessionID, res.Tokens)
	}
	if len(res.Detections) > 0 {
		s.recordRedactionLog("api", sessionID, req.Text, res.RedactedText, res.Detections)
	}

	type detectionView struct {
		Type       string  `json:"type"`
		Category   string  `json:"category"`
		StartIndex int     `json:"startIndex"`
		EndIndex   int     `json:"endIndex"`
		Confidence float64 `json:"confidence"`
	}
	views := make([]detectionView, 0, len(res.Detections))
	for _, d := range res.Detections {
		views = append(views, detectionView{Type: d.Layer, Category: d.Category, StartIndex: d.StartIndex, EndIndex: d.EndIndex, Confidence: d.Confidence})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"redactedText": res.RedactedText,
		"sessionId":    sessionID,
		"detections":   views,
	})
}

// pipelineConfig builds a redact.Config from a fresh settings snapshot.
func (s *Server) pipelineConfig(r *http.Request) (redact.Config, error) {
	snap, err := s.settingsStore.All()
	if err != nil {
		return redact.Config{}, err
	}
	return redact.Config{
		EnableDictionary:     snap.EnableDictionary,
		EnableNER:            snap.EnableNER,
		EnableRegex:          snap.EnableRegex,
		EnableNames:          snap.EnableNames,
		NERMinConfidence:     snap.NERMinConfidence,
		Locale:               patterns.Locale(snap.Locale),
		TokenizePlaceholders: snap.TokenizePlaceholders,
		PlaceholderPrefix:    snap.PlaceholderPrefix,
		PlaceholderSuffix:    snap.PlaceholderSuffix,
	}, nil
}

func (s *Server) persistTokens(sessionID string, tokens []redact.Token) {
	bindings := make([]rehydrate.TokenBinding, len(tokens))
	for i, t := range tokens {
		bindings[i] = rehydrate.TokenBinding{
			Placeholder: t.Placeholder,
			Original:    t.Original,
			Layer:       t.Layer,
			Category:    t.Category,
		}
	}
	if _, err := s.rehydrateStore.Store(sessionID, bindings, 0, "", "", nil); err != nil {
		s.log.Errorf("REHYDRATE", "persist session %s: %v", sessionID, err)
	}
}

func (s *Server) recordRedactionLog(source, sessionID, input, redacted string, dets []redact.Detection) {
	summaries := make([]observability.DetectionSummary, 0, len(dets))
	byLayer := make(map[string]int64, 4)
	for _, d := range dets {
		summaries = append(summaries, observability.DetectionSummary{Layer: d.Layer, Category: d.Category, Confidence: d.Confidence})
		byLayer[d.Layer]++
	}
	s.rings.RecordRedaction(source, sessionID, input, redacted, summaries)
	s.metrics.TokensReplaced.Add(int64(len(dets)))
	for layer, n := range byLayer {
		s.metrics.RecordDetections(layer, n)
	}
}

// --- header/body helpers ---

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade", "Proxy-Connection",
}

func copyForwardHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	dst.Del("Host")
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
}

// walkOpenAIBody walks messages[].content strings for OpenAI-shaped bodies.
func walkOpenAIBody(body map[string]any, transform func(string) string) {
	messages, _ := body["messages"].([]any)
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			msg["content"] = transform(content)
		case []any:
			for _, block := range content {
				b, ok := block.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := b["text"].(string); ok {
					b["text"] = transform(text)
				}
			}
		}
	}
}

// walkAnthropicBody walks messages[].content blocks plus the top-level
// system string for Anthropic-shaped bodies.
func walkAnthropicBody(body map[string]any, transform func(string) string) {
	walkOpenAIBody(body, transform)
	if sys, ok := body["system"].(string); ok {
		body["system"] = transform(sys)
	}
}

// hydrateWithMap replaces every placeholder in text found in bindings.
func hydrateWithMap(text string, bindings map[string]string) string {
	for placeholder, original := range bindings {
		if placeholder == "" {
			continue
		}
		text = strings.ReplaceAll(text, placeholder, original)
	}
	return text
}

// hydrateJSONValue walks a decoded JSON value (object/array/string/other),
// applying hydrate to every string leaf.
func hydrateJSONValue(v any, hydrate func(string) string) any {
	switch val := v.(type) {
	case string:
		return hydrate(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = hydrateJSONValue(e, hydrate)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = hydrateJSONValue(e, hydrate)
		}
		return out
	default:
		return v
	}
}
