// Package pcv implements the pre-change validation lifecycle: submitting a
// new validation against a baseline epoch, querying and deleting existing
// ones, and waiting for a validation to reach a terminal status.
package pcv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sajagana/pcvgate/internal/nd"
	"github.com/sajagana/pcvgate/internal/normalize"
	"github.com/sajagana/pcvgate/pkg/models"
)

// Service is the slice of the Insights client the orchestrator consumes.
type Service interface {
	ListPCVs(ctx context.Context, group string) ([]*models.PCVJob, error)
	GetPCV(ctx context.Context, group, site, name string) (*models.PCVJob, error)
	SubmitFileChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload, filePath string) (*models.PCVJob, error)
	SubmitManualChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload) (*models.PCVJob, error)
	DeletePCVs(ctx context.Context, group string, jobIDs []string) error
	GetLastEpoch(ctx context.Context, group, site string) (*models.Epoch, error)
}

// EpochCache caches resolved baseline epochs between invocations.
type EpochCache interface {
	GetEpoch(ctx context.Context, group, site string) (*models.Epoch, bool, error)
	SetEpoch(ctx context.Context, group, site string, epoch *models.Epoch, ttl time.Duration) error
}

// Normalizer prepares a change file for upload and returns the path to send.
type Normalizer interface {
	NormalizeChangeFile(path string) (string, error)
}

// FileNormalizer is the production Normalizer backed by the normalize package.
type FileNormalizer struct{}

func (FileNormalizer) NormalizeChangeFile(path string) (string, error) {
	return normalize.NormalizeChangeFile(path)
}

// Options tunes polling and epoch caching.
type Options struct {
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	WaitTimeout     time.Duration
	EpochCacheTTL   time.Duration
}

// Request identifies a validation job and carries the create inputs.
// Exactly one of FilePath/Manual may be set when creating.
type Request struct {
	InsightsGroup string
	SiteName      string
	Name          string
	Description   string
	FilePath      string
	Manual        string
	DryRun        bool
}

// Result is the invocation contract reported to callers: the job state
// before the operation, the state after it, and whether anything changed.
type Result struct {
	Previous *models.PCVJob `json:"previous"`
	Current  *models.PCVJob `json:"current"`
	Changed  bool           `json:"changed"`
}

// Orchestrator drives the validation lifecycle against the Insights service.
// One invocation handles one operation to completion; it keeps no state
// between calls.
type Orchestrator struct {
	svc        Service
	epochs     EpochCache
	normalizer Normalizer
	opts       Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Orchestrator. epochs may be nil to disable epoch caching.
func New(svc Service, epochs EpochCache, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = opts.PollInterval
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 20 * time.Minute
	}
	if opts.EpochCacheTTL <= 0 {
		opts.EpochCacheTTL = time.Minute
	}
	return &Orchestrator{
		svc:        svc,
		epochs:     epochs,
		normalizer: FileNormalizer{},
		opts:       opts,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Query returns all validation jobs in the insights group. An empty group
// is a legitimate empty result, not an error.
func (o *Orchestrator) Query(ctx context.Context, group string) ([]*models.PCVJob, error) {
	jobs, err := o.svc.ListPCVs(ctx, group)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.PCVJob{}
	}
	return jobs, nil
}

// QueryOne returns the job addressed by (group, site, name), or nil when it
// does not exist.
func (o *Orchestrator) QueryOne(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
	job, err := o.svc.GetPCV(ctx, group, site, name)
	if errors.Is(err, nd.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Create submits a new validation unless an equivalent one already exists.
//
// Idempotency: when the existing job was created from a file with the same
// base name as the requested file, the create is already satisfied and
// reports changed=false. A differing file name is a conflict, never an
// overwrite. Manual jobs carry no file name and fall through to
// resubmission, matching the service's own behavior.
func (o *Orchestrator) Create(ctx context.Context, req Request) (*Result, error) {
	if req.SiteName == "" || req.Name == "" {
		return nil, ErrSiteAndNameRequired
	}
	if req.FilePath != "" && req.Manual != "" {
		return nil, ErrBothSources
	}
	if req.FilePath == "" && req.Manual == "" {
		return nil, ErrSourceRequired
	}

	var changes models.ChangeList
	if req.FilePath != "" {
		if _, err := os.Stat(req.FilePath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, req.FilePath)
		}
	} else {
		if err := json.Unmarshal([]byte(req.Manual), &changes); err != nil || len(changes) == 0 {
			return nil, ErrInvalidManual
		}
	}

	existing, err := o.QueryOne(ctx, req.InsightsGroup, req.SiteName, req.Name)
	if err != nil {
		return nil, err
	}

	res := &Result{Previous: existing}

	if existing != nil && req.FilePath != "" && existing.UploadedFileName != "" {
		if filepath.Base(req.FilePath) == existing.UploadedFileName {
			res.Current = existing
			return res, nil
		}
		return nil, fmt.Errorf("%w: %s has file %s", ErrConflict, req.Name, existing.UploadedFileName)
	}

	if req.DryRun {
		res.Current = existing
		res.Changed = true
		return res, nil
	}

	epoch, err := o.resolveEpoch(ctx, req.InsightsGroup, req.SiteName)
	if err != nil {
		return nil, err
	}

	payload := &models.SubmissionPayload{
		AllowUnsupportedObjectModification: "true",
		AnalysisSubmissionTime:             o.now().UnixMilli(),
		BaseEpochID:                        epoch.EpochID,
		BaseEpochCollectionTimestamp:       epoch.CollectionTimeMsecs,
		FabricUUID:                         epoch.FabricID,
		Description:                        req.Description,
		Name:                               req.Name,
		AssuranceEntityName:                req.SiteName,
	}

	var job *models.PCVJob
	if req.FilePath != "" {
		upload, err := o.normalizer.NormalizeChangeFile(req.FilePath)
		if err != nil {
			return nil, fmt.Errorf("normalizing change file: %w", err)
		}
		job, err = o.svc.SubmitFileChanges(ctx, req.InsightsGroup, req.SiteName, payload, upload)
		if err != nil {
			return nil, fmt.Errorf("submitting pre-change validation %s: %w", req.Name, err)
		}
	} else {
		payload.IMData = changes
		job, err = o.svc.SubmitManualChanges(ctx, req.InsightsGroup, req.SiteName, payload)
		if err != nil {
			return nil, fmt.Errorf("submitting pre-change validation %s: %w", req.Name, err)
		}
	}

	slog.Info("pre-change validation submitted",
		"group", req.InsightsGroup, "site", req.SiteName, "name", req.Name, "job_id", job.JobID)

	res.Current = job
	res.Changed = true
	return res, nil
}

// Delete removes an existing validation. Deleting a job that does not exist
// (or has no identifier yet) is a no-op with changed=false.
func (o *Orchestrator) Delete(ctx context.Context, req Request) (*Result, error) {
	if req.SiteName == "" || req.Name == "" {
		return nil, ErrSiteAndNameRequired
	}

	existing, err := o.QueryOne(ctx, req.InsightsGroup, req.SiteName, req.Name)
	if err != nil {
		return nil, err
	}

	res := &Result{Previous: existing}
	if existing == nil || existing.JobID == "" {
		res.Current = existing
		return res, nil
	}

	if req.DryRun {
		res.Changed = true
		return res, nil
	}

	if err := o.svc.DeletePCVs(ctx, req.InsightsGroup, []string{existing.JobID}); err != nil {
		return nil, fmt.Errorf("pre-change validation %s could not be deleted: %w", req.Name, err)
	}

	slog.Info("pre-change validation deleted",
		"group", req.InsightsGroup, "site", req.SiteName, "name", req.Name, "job_id", existing.JobID)

	res.Changed = true
	return res, nil
}

// resolveEpoch returns the latest finished epoch for the fabric, consulting
// the cache first. Cache failures are logged and ignored; the resolver is
// authoritative.
func (o *Orchestrator) resolveEpoch(ctx context.Context, group, site string) (*models.Epoch, error) {
	if o.epochs != nil {
		epoch, ok, err := o.epochs.GetEpoch(ctx, group, site)
		if err != nil {
			slog.Warn("epoch cache read failed", "group", group, "site", site, "error", err)
		} else if ok {
			return epoch, nil
		}
	}

	epoch, err := o.svc.GetLastEpoch(ctx, group, site)
	if err != nil {
		return nil, fmt.Errorf("resolving baseline epoch for %s/%s: %w", group, site, err)
	}

	if o.epochs != nil {
		if err := o.epochs.SetEpoch(ctx, group, site, epoch, o.opts.EpochCacheTTL); err != nil {
			slog.Warn("epoch cache write failed", "group", group, "site", site, "error", err)
		}
	}
	return epoch, nil
}
