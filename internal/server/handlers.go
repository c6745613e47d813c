package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/pkg/models"
)

type selectionRequest struct {
	Category *string           `json:"category"`
	Style    *string           `json:"style"`
	Filters  map[string]string `json:"filters"`
}

type generateRequest struct {
	Image string `json:"image"`
}

type editRequest struct {
	Text string `json:"text"`
}

type editResponse struct {
	Message  models.Message   `json:"message"`
	ImageURI string           `json:"imageUri"`
	Messages []models.Message `json:"messages"`
}

type resultsResponse struct {
	Results []models.GenerationResult `json:"results"`
	Count   int                       `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSelection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.selection.Snapshot())
}

// putSelection applies every present field, or none of them when any is
// invalid. A filters object replaces the whole filter set.
func (s *Server) putSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decode(w, r, &req) {
		return
	}

	var (
		category models.Category
		style    models.Style
		filters  models.Filters
		err      error
	)
	if req.Category != nil {
		if category, err = models.ParseCategory(*req.Category); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Style != nil {
		if style, err = models.ParseStyle(*req.Style); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Filters != nil {
		filters = make(models.Filters, len(req.Filters))
		for k, v := range req.Filters {
			dim, err := models.ParseDimension(k)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if err := filters.Set(dim, dim.CanonicalValue(v)); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	if req.Category != nil {
		s.selection.SetCategory(category)
	}
	if req.Style != nil {
		s.selection.SetStyle(style)
	}
	if filters != nil {
		s.selection.ReplaceFilters(filters)
	}

	writeJSON(w, http.StatusOK, s.selection.Snapshot())
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	all := s.results.All()
	writeJSON(w, http.StatusOK, resultsResponse{Results: all, Count: len(all)})
}

func (s *Server) clearResults(w http.ResponseWriter, r *http.Request) {
	s.results.Clear()
	s.dropEditors()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.results.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := checkRemoteRef(req.Image); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.generator.Generate(r.Context(), req.Image)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(chi.URLParam(r, "id"), false)
	if !ok {
		writeError(w, http.StatusNotFound, "no conversation for this result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"seed":         ed.Seed(),
		"currentImage": ed.CurrentImage(),
		"messages":     ed.Messages(),
	})
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decode(w, r, &req) {
		return
	}

	ed, ok := s.editorFor(chi.URLParam(r, "id"), true)
	if !ok {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}

	msg, err := ed.Send(r.Context(), req.Text)
	switch {
	case errors.Is(err, pipeline.ErrEmptyInstruction), errors.Is(err, pipeline.ErrInstructionTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, editResponse{
		Message:  msg,
		ImageURI: msg.ImageURI,
		Messages: ed.Messages(),
	})
}

// checkRemoteRef keeps clients from pointing the server at its own files.
func checkRemoteRef(ref string) error {
	switch {
	case ref == "":
		return errors.New("image is required")
	case strings.HasPrefix(ref, "data:"),
		strings.HasPrefix(ref, "https://"),
		strings.HasPrefix(ref, "http://"):
		return nil
	default:
		return errors.New("image must be a data URI or an http(s) URL")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeFlowError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrBusy) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	var ferr *pipeline.FlowError
	if !errors.As(err, &ferr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusBadGateway
	if errors.Is(ferr, provider.ErrSourceUnreadable) {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: ferr.Error(), Kind: ferr.Kind()})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
