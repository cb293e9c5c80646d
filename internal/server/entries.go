package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	remember "github.com/eugener/remember/internal"
	"github.com/eugener/remember/internal/memo"
)

// maxEntryBody is the maximum allowed entry request body size (1 MB).
const maxEntryBody = 1 << 20

type keysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

type entryResponse struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Forever bool            `json:"forever,omitempty"`
	TTL     string          `json:"ttl,omitempty"`
}

// keyParam returns the unescaped {key} URL parameter.
func keyParam(r *http.Request, name string) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || key == "" {
		return "", fmt.Errorf("%w: invalid %s", remember.ErrBadRequest, name)
	}
	return key, nil
}

func (s *server) handleListKeys(w http.ResponseWriter, _ *http.Request) {
	keys := s.deps.Cache.Keys()
	slices.Sort(keys)
	writeJSON(w, http.StatusOK, keysResponse{Keys: keys, Count: len(keys)})
}

func (s *server) handleHasKey(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !s.deps.Cache.Has(key) {
		writeError(w, r, remember.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "tracked": true})
}

func (s *server) handleForgetKey(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.deps.Cache.Forget(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	s.deps.Cache.Flush()
	if s.deps.Metrics != nil {
		s.deps.Metrics.Flushes.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := memo.Get[json.RawMessage](s.deps.Cache, key)
	if v == nil {
		writeError(w, r, remember.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entryResponse{Key: key, Value: v})
}

// handlePutEntry memoizes the request's "value" under key. The first writer
// wins: while an entry is live, later PUTs return the cached value unchanged.
// Body: {"value": <json>, "ttl": "30s"} or {"value": <json>, "forever": true}.
func (s *server) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEntryBody)
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	value := gjson.GetBytes(body, "value")
	if !value.Exists() {
		writeJSON(w, http.StatusBadRequest, errorResponse("value is required"))
		return
	}
	raw := json.RawMessage(value.Raw)
	produce := func() (json.RawMessage, error) { return raw, nil }

	resp := entryResponse{Key: key}
	if gjson.GetBytes(body, "forever").Bool() {
		resp.Forever = true
		resp.Value, err = memo.Forever(s.deps.Cache, key, produce)
	} else {
		ttl := s.deps.DefaultTTL
		if t := gjson.GetBytes(body, "ttl"); t.Exists() {
			ttl, err = time.ParseDuration(t.String())
			if err != nil || ttl <= 0 {
				writeJSON(w, http.StatusBadRequest, errorResponse("invalid ttl"))
				return
			}
		}
		resp.TTL = ttl.String()
		resp.Value, err = memo.Remember(s.deps.Cache, key, produce, ttl)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
