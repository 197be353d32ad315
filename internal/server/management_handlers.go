package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"anonamoose/internal/dictionary"
	"anonamoose/internal/rehydrate"
)

// --- dictionary ---

func (s *Server) handleDictionaryList(w http.ResponseWriter, r *http.Request) {
	all := s.dict.List()

	q := strings.ToLower(r.URL.Query().Get("q"))
	if q != "" {
		filtered := all[:0:0]
		for _, e := range all {
			if strings.Contains(strings.ToLower(e.Term), q) {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * limit
	end := start + limit
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": all[start:end],
		"total":   len(all),
		"page":    page,
		"limit":   limit,
	})
}

func (s *Server) handleDictionaryCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Entries []dictionary.Entry `json:"entries"`
		// Single-entry shorthand, for "POST one rule at a time" callers.
		Term          string `json:"term"`
		Replacement   string `json:"replacement"`
		CaseSensitive bool   `json:"caseSensitive"`
		WholeWord     bool   `json:"wholeWord"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	entries := req.Entries
	if len(entries) == 0 && req.Term != "" {
		entries = []dictionary.Entry{{
			Term:          req.Term,
			Replacement:   req.Replacement,
			CaseSensitive: req.CaseSensitive,
			WholeWord:     req.WholeWord,
			Enabled:       true,
		}}
	}
	if len(entries) == 0 {
		writeError(w, http.StatusBadRequest, "no entries supplied")
		return
	}

	if err := s.dict.Add(entries); err != nil {
		var dup *dictionary.ErrDuplicateTerm
		if errors.As(err, &dup) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, dictionary.ErrEmptyTerm) || errors.Is(err, dictionary.ErrTermTooLong) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"added": len(entries)})
}

func (s *Server) handleDictionaryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.dict.Clear(); err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleDictionaryDeleteByTerms(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Terms []string `json:"terms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Terms) == 0 {
		writeError(w, http.StatusBadRequest, "need {\"terms\":[...]}")
		return
	}
	if err := s.dict.RemoveByTerm(req.Terms); err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": req.Terms})
}

// --- sessions ---

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.rehydrateStore.GetAll()
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	redacted := make([]rehydrate.Session, len(sessions))
	for i, sess := range sessions {
		redacted[i] = sess.Redacted()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": redacted})
}

func (s *Server) handleSessionsSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	sessions, err := s.rehydrateStore.Search(q)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	redacted := make([]rehydrate.Session, len(sessions))
	for i, sess := range sessions {
		redacted[i] = sess.Redacted()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": redacted})
}

func (s *Server) handleSessionsDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.rehydrateStore.DeleteAll()
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, found, err := s.rehydrateStore.Retrieve(id)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess.Redacted())
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	found, err := s.rehydrateStore.Delete(id)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSessionHydrate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	hydrated, err := s.rehydrateStore.Hydrate(req.Text, id)
	if err != nil {
		if errors.Is(err, rehydrate.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": hydrated})
}

func (s *Server) handleSessionExtend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		TTLSeconds int64 `json:"ttl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TTLSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "need {\"ttl\":<seconds>}")
		return
	}
	found, err := s.rehydrateStore.Extend(id, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "extended"})
}

func (s *Server) handleSessionAddTokens(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Tokens   []rehydrate.TokenBinding `json:"tokens"`
		Type     string                   `json:"type"`
		Category string                   `json:"category"`
		TTL      int64                    `json:"ttl"`
		Meta     map[string]string        `json:"meta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tokens) == 0 {
		writeError(w, http.StatusBadRequest, "need {\"tokens\":[...]}")
		return
	}
	var ttl time.Duration
	if req.TTL > 0 {
		ttl = time.Duration(req.TTL) * time.Second
	}
	sess, err := s.rehydrateStore.Store(id, req.Tokens, ttl, req.Type, req.Category, req.Meta)
	if err != nil {
		if errors.Is(err, rehydrate.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Redacted())
}

// --- settings ---

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.settingsStore.All()
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var partial map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	snap, err := s.settingsStore.Update(partial)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSettingGetOne(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, found, err := s.settingsStore.Get(key)
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "setting not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(value) //nolint:errcheck
}

// --- stats / storage ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleStatsPublic(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":   snap.Requests.Total,
		"uptimeSecs": snap.UptimeSecs,
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	dictCount := len(s.dict.List())
	sessionCount, err := s.rehydrateStore.Size()
	if err != nil {
		writeInternalError(w, s.log, err)
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeJSON(w, http.StatusOK, map[string]any{
		"dictionaryEntries": dictCount,
		"sessions":          sessionCount,
		"heapAllocBytes":    mem.HeapAlloc,
		"goroutines":        runtime.NumGoroutine(),
	})
}

// --- observability rings ---

func (s *Server) handleLogsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"requests": s.rings.Requests()})
}

func (s *Server) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	s.rings.ClearRequests()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleRedactionsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"redactions": s.rings.Redactions()})
}

func (s *Server) handleRedactionsClear(w http.ResponseWriter, r *http.Request) {
	s.rings.ClearRedactions()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- admin ---

func (s *Server) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	valid := constantTimeEqual(req.Token, s.opts.APIToken) || constantTimeEqual(req.Token, s.opts.StatsToken)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// --- helpers ---

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
