package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/extract"
	"github.com/spektr-org/vizon/schema"
	"github.com/spektr-org/vizon/session"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps an error to its HTTP status and a stable kind string.
func statusFor(err error) (int, string) {
	var (
		exErr    *extract.Error
		unErr    *assistant.UnavailableError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrUnknownKind),
		errors.Is(err, assistant.ErrEmptyQuestion):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, session.ErrNoData):
		return http.StatusConflict, "no_data"
	case errors.Is(err, schema.ErrEmptyInput):
		return http.StatusUnprocessableEntity, "empty_input"
	case errors.As(err, &exErr):
		switch exErr.Kind {
		case extract.KindNetwork:
			return http.StatusBadGateway, string(exErr.Kind)
		case extract.KindAIService:
			return http.StatusServiceUnavailable, string(exErr.Kind)
		}
		return http.StatusUnprocessableEntity, string(exErr.Kind)
	case errors.As(err, &unErr):
		return http.StatusServiceUnavailable, "assistant_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= 500 {
		s.logger.Warn("request failed", zap.String("path", r.URL.Path), zap.String("kind", kind), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) session(r *http.Request) (*session.Session, error) {
	return s.sessions.Get(chi.URLParam(r, "id"))
}

// ── handlers ───────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUpload reads the multipart "file" field and loads it with kind.
func (s *Server) handleUpload(kind session.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				s.writeError(w, r, err)
				return
			}
			s.writeError(w, r, badRequest("multipart field \"file\" is required: %v", err))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		in := extract.Input{
			Name:     header.Filename,
			Data:     data,
			MIMEType: header.Header.Get("Content-Type"),
		}
		d, err := sess.Load(r.Context(), in, kind)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

type urlRequest struct {
	URL    string `json:"url"`
	Render bool   `json:"render"`
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req urlRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, badRequest("url is required"))
		return
	}

	kind := session.KindWeb
	if req.Render {
		kind = session.KindRendered
	}
	d, err := sess.Load(r.Context(), extract.Input{URL: req.URL}, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := sess.Dashboard()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := sess.Table()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := sess.Table()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.Describe(t))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := sess.Table()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="vizon_export.csv"`)
	if err := sess.ExportCSV(w); err != nil {
		s.logger.Warn("csv export failed", zap.String("source", t.Source), zap.Error(err))
	}
}

type questionRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := sess.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: answer})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h := sess.History()
	if h == nil {
		h = []assistant.Message{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := sess.Visualize(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
