package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vodeneev/dropalerts/internal/pipeline"
)

const (
	dropSecretHeader = "X-Drop-Secret"
	maxDropBody      = 1 << 20
)

type ingestResponse struct {
	Status string `json:"status"`
	DropID string `json:"drop_id,omitempty"`
}

// handleDrop accepts one drop. Fanout and enrichment continue after the
// response; only parsing, dedupe and persistence happen inside the budget.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	if s.cfg.IngressSecret != "" {
		got := r.Header.Get(dropSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.IngressSecret)) != 1 {
			respondError(w, http.StatusUnauthorized, "missing or invalid drop secret")
			return
		}
	}

	ctx := r.Context()
	if s.cfg.IngressTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.IngressTimeout)
		defer cancel()
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDropBody))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if raw == nil {
		respondError(w, http.StatusBadRequest, "drop must be a JSON object")
		return
	}

	res, err := s.deps.Ingestor.Ingest(ctx, raw)
	switch {
	case errors.Is(err, pipeline.ErrBadDrop):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("Drop ingest failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to ingest drop")
		return
	}

	respondJSON(w, http.StatusOK, ingestResponse{Status: res.Status.String(), DropID: res.DropID})
}
