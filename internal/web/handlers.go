package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hourbook/hourbook/internal/core"
	"github.com/hourbook/hourbook/internal/web/middleware"
)

type previewRequest struct {
	Mode  string `json:"mode"`
	Input struct {
		Kind string `json:"kind"`
		Data string `json:"data"`
	} `json:"input"`
}

type importRequest struct {
	IdempotencyKey string           `json:"idempotencyKey"`
	Rows           []core.Candidate `json:"rows"`
	Lines          []string         `json:"lines"`
}

type periodResponse struct {
	Period          core.InvoicePeriod `json:"period"`
	DeadlineWarning bool               `json:"deadlineWarning"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Mode != "" && req.Mode != "deterministic" {
		writeBadRequest(w, fmt.Sprintf("unknown preview mode %q", req.Mode))
		return
	}

	switch req.Input.Kind {
	case "", "text":
		writeJSON(w, http.StatusOK, s.svc.Preview(req.Input.Data))
	case "csv":
		report, err := s.svc.PreviewCSV([]byte(req.Input.Data))
		if err != nil {
			writeBadRequest(w, "the csv input could not be read")
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		writeBadRequest(w, fmt.Sprintf("unknown input kind %q, expected text or csv", req.Input.Kind))
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, core.ErrUserNotFound)
		return
	}

	var req importRequest
	if !s.decode(w, r, &req) {
		return
	}

	key, err := uuid.Parse(req.IdempotencyKey)
	if err != nil {
		writeBadRequest(w, "idempotencyKey must be a UUID")
		return
	}
	if len(req.Rows) > 0 && len(req.Lines) > 0 {
		writeBadRequest(w, "provide rows or lines, not both")
		return
	}
	if len(req.Rows) == 0 && len(req.Lines) == 0 {
		writeBadRequest(w, "the batch is empty")
		return
	}

	var result *core.ImportResult
	if len(req.Rows) > 0 {
		result, err = s.svc.ImportRows(r.Context(), userID, key, req.Rows)
	} else {
		result, err = s.svc.ImportLines(r.Context(), userID, key, req.Lines)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, core.ErrUserNotFound)
		return
	}

	key, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeBadRequest(w, "import key must be a UUID")
		return
	}

	rec, err := s.svc.GetImport(r.Context(), userID, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, core.ErrUserNotFound)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	recs, err := s.svc.ListImports(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": recs})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, core.ErrUserNotFound)
		return
	}

	q := r.URL.Query()
	entries, err := s.svc.ListEntries(r.Context(), userID, q.Get("from"), q.Get("to"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	period, warn := s.svc.CurrentPeriod()
	writeJSON(w, http.StatusOK, periodResponse{Period: period, DeadlineWarning: warn})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body with the configured size cap. Returns false after
// writing the error response itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: core.UserMessage{
				Message: "The request body is too large.",
				Action:  "Split the batch into smaller imports.",
				Code:    "body_too_large",
			}})
			return false
		}
		writeBadRequest(w, "the request body is not valid JSON for this endpoint")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeBadRequest(w, "unexpected data after the JSON body")
		return false
	}
	return true
}
