package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/sajagana/pcvgate/internal/api/middleware"
	"github.com/sajagana/pcvgate/internal/api/response"
	"github.com/sajagana/pcvgate/internal/nd"
	"github.com/sajagana/pcvgate/internal/pcv"
	"github.com/sajagana/pcvgate/pkg/models"
)

const maxUploadBytes = 32 << 20

// Orchestrator defines the interface the validation handlers depend on.
type Orchestrator interface {
	Query(ctx context.Context, group string) ([]*models.PCVJob, error)
	QueryOne(ctx context.Context, group, site, name string) (*models.PCVJob, error)
	Create(ctx context.Context, req pcv.Request) (*pcv.Result, error)
	Delete(ctx context.Context, req pcv.Request) (*pcv.Result, error)
	WaitAndQuery(ctx context.Context, req pcv.Request) (*pcv.Result, error)
}

// RunRecorder persists the audit record of one invocation.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *models.Run) error
}

// ValidationHandler serves the pre-change validation lifecycle endpoints.
type ValidationHandler struct {
	orch      Orchestrator
	runs      RunRecorder
	uploadDir string
}

// NewValidationHandler creates a ValidationHandler. runs may be nil to
// disable audit recording (tests).
func NewValidationHandler(orch Orchestrator, runs RunRecorder, uploadDir string) *ValidationHandler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	return &ValidationHandler{orch: orch, runs: runs, uploadDir: uploadDir}
}

type listResponse struct {
	Jobs    []*models.PCVJob `json:"jobs"`
	Changed bool             `json:"changed"`
}

// List handles GET /api/v1/groups/{group}/validations. Without a name it
// returns every job in the group; with site_name+name it returns the single
// matching job. An absent job is reported as current=null, not an error.
func (h *ValidationHandler) List(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	site := r.URL.Query().Get("site_name")
	name := r.URL.Query().Get("name")

	if name == "" {
		jobs, err := h.orch.Query(r.Context(), group)
		h.record(r, "query", pcv.Request{InsightsGroup: group}, nil, err)
		if err != nil {
			writeOrchestrationError(w, err)
			return
		}
		response.JSON(w, listResponse{Jobs: jobs})
		return
	}

	if site == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"site_name is required when name is given", nil)
		return
	}

	job, err := h.orch.QueryOne(r.Context(), group, site, name)
	h.record(r, "query", pcv.Request{InsightsGroup: group, SiteName: site, Name: name}, nil, err)
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	response.JSON(w, pcv.Result{Current: job})
}

// Create handles POST /api/v1/groups/{group}/validations. A multipart body
// carries a change file; a JSON body carries an inline manual change list.
func (h *ValidationHandler) Create(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")

	req, cleanup, err := h.parseCreateRequest(r, group)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	res, err := h.orch.Create(r.Context(), req)
	h.record(r, "create", req, res, err)
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}

	if res.Changed {
		response.Created(w, res)
		return
	}
	response.JSON(w, res)
}

// parseCreateRequest decodes either body shape into a pcv.Request. The
// returned cleanup removes the staged upload directory, if one was created.
func (h *ValidationHandler) parseCreateRequest(r *http.Request, group string) (pcv.Request, func(), error) {
	req := pcv.Request{InsightsGroup: group}
	req.DryRun = boolParam(r, "dry_run")

	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var body struct {
			Name        string          `json:"name"`
			SiteName    string          `json:"site_name"`
			Description string          `json:"description"`
			Manual      json.RawMessage `json:"manual"`
			DryRun      bool            `json:"dry_run"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, nil, errors.New("invalid JSON body")
		}
		req.Name = body.Name
		req.SiteName = body.SiteName
		req.Description = body.Description
		req.DryRun = req.DryRun || body.DryRun
		if len(body.Manual) > 0 {
			req.Manual = string(body.Manual)
		}
		return req, nil, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return req, nil, errors.New("invalid multipart body")
	}
	req.Name = r.FormValue("name")
	req.SiteName = r.FormValue("site_name")
	req.Description = r.FormValue("description")
	if v := r.FormValue("dry_run"); v != "" {
		b, _ := strconv.ParseBool(v)
		req.DryRun = req.DryRun || b
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return req, nil, errors.New("multipart body is missing the file part")
	}
	defer file.Close()

	// Stage into a per-upload directory so the original base name survives;
	// the idempotency check compares it against the job's uploadedFileName.
	dir, err := os.MkdirTemp(h.uploadDir, "pcv-upload-")
	if err != nil {
		return req, nil, errors.New("staging upload failed")
	}
	cleanup := func() { os.RemoveAll(dir) }

	staged := filepath.Join(dir, filepath.Base(hdr.Filename))
	dst, err := os.Create(staged)
	if err != nil {
		return req, cleanup, errors.New("staging upload failed")
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return req, cleanup, errors.New("staging upload failed")
	}

	req.FilePath = staged
	return req, cleanup, nil
}

// Delete handles DELETE /api/v1/groups/{group}/validations.
func (h *ValidationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req := pcv.Request{
		InsightsGroup: chi.URLParam(r, "group"),
		SiteName:      r.URL.Query().Get("site_name"),
		Name:          r.URL.Query().Get("name"),
		DryRun:        boolParam(r, "dry_run"),
	}

	res, err := h.orch.Delete(r.Context(), req)
	h.record(r, "delete", req, res, err)
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	response.JSON(w, res)
}

// Wait handles POST /api/v1/groups/{group}/validations/wait. The call
// blocks until the job reaches a terminal status or the wait deadline passes.
func (h *ValidationHandler) Wait(w http.ResponseWriter, r *http.Request) {
	req := pcv.Request{InsightsGroup: chi.URLParam(r, "group")}

	var body struct {
		Name     string `json:"name"`
		SiteName string `json:"site_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		req.Name = body.Name
		req.SiteName = body.SiteName
	}
	if req.Name == "" {
		req.Name = r.URL.Query().Get("name")
	}
	if req.SiteName == "" {
		req.SiteName = r.URL.Query().Get("site_name")
	}

	res, err := h.orch.WaitAndQuery(r.Context(), req)
	h.record(r, "wait_and_query", req, res, err)
	if err != nil {
		writeOrchestrationError(w, err)
		return
	}
	response.JSON(w, res)
}

// record persists the audit trail entry for one invocation.
func (h *ValidationHandler) record(r *http.Request, operation string, req pcv.Request, res *pcv.Result, opErr error) {
	if h.runs == nil {
		return
	}
	tenantID, _ := mw.GetTenantID(r)

	run := &models.Run{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Operation:     operation,
		InsightsGroup: req.InsightsGroup,
		SiteName:      req.SiteName,
		JobName:       req.Name,
		DryRun:        req.DryRun,
		Status:        models.RunStatusSucceeded,
		CreatedAt:     time.Now().UTC(),
	}
	if res != nil {
		run.Changed = res.Changed
	}
	if opErr != nil {
		run.Status = models.RunStatusFailed
		msg := opErr.Error()
		run.ErrorMessage = &msg
	}

	if err := h.runs.CreateRun(r.Context(), run); err != nil {
		slog.Warn("recording run failed", "operation", operation, "error", err)
	}
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

// writeOrchestrationError maps orchestrator and transport errors to HTTP codes.
func writeOrchestrationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pcv.ErrSiteAndNameRequired),
		errors.Is(err, pcv.ErrSourceRequired),
		errors.Is(err, pcv.ErrBothSources),
		errors.Is(err, pcv.ErrInvalidManual),
		errors.Is(err, pcv.ErrFileNotFound):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, pcv.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, nd.ErrNoEpoch):
		response.Error(w, http.StatusUnprocessableEntity, "NO_BASE_EPOCH", err.Error(), nil)
	case errors.Is(err, pcv.ErrWaitTimeout):
		response.Error(w, http.StatusGatewayTimeout, "WAIT_TIMEOUT", err.Error(), nil)
	case errors.Is(err, nd.ErrUnauthorized):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_AUTH_FAILED",
			"Authentication against the Insights service failed", nil)
	case errors.Is(err, nd.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT",
			"The Insights service did not respond in time", nil)
	case errors.Is(err, nd.ErrUnreachable):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNREACHABLE",
			"The Insights service is not reachable", nil)
	case errors.Is(err, nd.ErrServiceError):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
