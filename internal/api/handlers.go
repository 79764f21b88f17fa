package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"portapak/internal/apperr"
	"portapak/internal/history"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Convert handles POST /api/convert.
//
//	@Summary		Convert an installer trace into a configuration
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConvertRequest	true	"Trace to convert"
//	@Success		200		{object}	ConvertResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.TracePath == "" || req.OutputPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("trace_path and output_path are required"))
		return
	}

	res, err := h.svc.Convert(r.Context(), req.TracePath, req.OutputPath, req.AppName)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrParse):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrSchema):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("convert failed", slog.String("trace", req.TracePath), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ConvertResponse{
		Config:     res.Config,
		Notes:      res.Notes,
		OutputPath: res.OutputPath,
		Entries:    res.Entries,
	})
}

// Build handles POST /api/build.
//
//	@Summary		Build a portable package from a configuration
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BuildRequest	true	"Configuration to build"
//	@Success		200		{object}	BuildResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ConfigPath == "" || req.OutputRoot == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("config_path and output_root are required"))
		return
	}

	res, err := h.svc.Build(r.Context(), req.ConfigPath, req.OutputRoot, req.DryRun)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrDestinationNotEmpty):
			writeJSON(w, http.StatusConflict, errorBody("output root is not empty"))
		case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrSchema):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("build failed", slog.String("config", req.ConfigPath), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, BuildResponse{Manifest: res.Manifest, OutputRoot: res.OutputRoot})
}

// Runs handles GET /api/runs.
//
//	@Summary		List recent pipeline runs
//	@Tags			history
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(limit)
	if err != nil {
		slog.Error("list runs failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// Exists handles GET /api/exists.
//
//	@Summary		Probe whether a path exists
//	@Tags			workspace
//	@Produce		json
//	@Param			path	query		string	true	"Path to probe"
//	@Success		200		{object}	ExistsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/exists [get]
func (h *Handler) Exists(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	exists, isDir := h.svc.Exists(p)
	writeJSON(w, http.StatusOK, ExistsResponse{Exists: exists, IsDir: isDir})
}
