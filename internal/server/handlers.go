package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shineum/sendgrid-bridge/internal/forms"
	"github.com/shineum/sendgrid-bridge/internal/sendgrid"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 until the gate is ready and every extra check
// passes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := map[string]any{}
	status := http.StatusOK

	if s.cfg.Gate != nil {
		rd := s.gateReadiness(ctx)
		body["sendgrid"] = map[string]string{"state": rd.State.String(), "reason": rd.Reason}
		if !rd.Ready() {
			status = http.StatusServiceUnavailable
		}
	}

	for name, check := range s.cfg.Checks {
		if err := check(ctx); err != nil {
			body[name] = map[string]string{"state": "unhealthy", "reason": err.Error()}
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = map[string]string{"state": "ok"}
	}

	writeJSON(w, status, body)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Hook == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, []any{s.cfg.Hook.Service(r.Context())})
}

func (s *Server) handlePreSend(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}
	if s.cfg.Hook == nil {
		writeJSON(w, http.StatusOK, ev.Email)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Hook.MaybeSendEmail(r.Context(), ev))
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Pipeline == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "delivery pipeline not configured"})
		return
	}

	ev, ok := s.decodeEvent(w, r)
	if !ok {
		return
	}

	res, err := s.cfg.Pipeline.Deliver(r.Context(), ev)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "delivery failed", "error", err, "entry_id", ev.Entry.ID)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stats == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "stats not configured"})
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "days must be a non-negative integer"})
			return
		}
		days = n
	}

	stats, err := s.cfg.Stats.Stats(r.Context(), days)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: string(sendgrid.KindOf(err))})
		return
	}
	if stats == nil {
		stats = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Notes == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	list, err := s.cfg.Notes.List(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to list notes", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list notes"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) decodeEvent(w http.ResponseWriter, r *http.Request) (forms.SendEvent, bool) {
	var ev forms.SendEvent

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&ev); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return ev, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return ev, false
	}
	return ev, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
