package nd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sajagana/pcvgate/pkg/models"
)

// ListPCVs fetches every pre-change validation job in the insights group,
// newest submission first.
func (c *HTTPClient) ListPCVs(ctx context.Context, group string) ([]*models.PCVJob, error) {
	path := fmt.Sprintf("config/insightsGroup/%s/prechangeAnalysis?%%24sort=-analysisSubmissionTime",
		url.PathEscape(group))

	env, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var jobs []*models.PCVJob
	if len(env.Value.Data) > 0 {
		if err := json.Unmarshal(env.Value.Data, &jobs); err != nil {
			return nil, fmt.Errorf("decoding pcv list: %w", err)
		}
	}
	return jobs, nil
}

// GetPCV fetches the single job addressed by (group, site, name).
// Returns ErrNotFound when no such job exists. The list endpoint is the only
// lookup the service offers; site/name filtering happens client-side.
func (c *HTTPClient) GetPCV(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
	jobs, err := c.ListPCVs(ctx, group)
	if err != nil {
		return nil, err
	}

	for _, job := range jobs {
		if job.Name == name && job.AssuranceEntityName == site {
			return job, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, group, site, name)
}

// SubmitFileChanges uploads a change file together with the submission
// payload as a multipart request to the fileChanges endpoint.
func (c *HTTPClient) SubmitFileChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload, filePath string) (*models.PCVJob, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening change file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding submission payload: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("data", string(data)); err != nil {
		return nil, fmt.Errorf("writing payload part: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copying change file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body: %w", err)
	}

	path := fmt.Sprintf("config/insightsGroup/%s/fabric/%s/prechangeAnalysis/fileChanges",
		url.PathEscape(group), url.PathEscape(site))

	env, err := c.do(ctx, http.MethodPost, path, buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	return decodeJob(env)
}

// SubmitManualChanges submits an inline change list to the manualChanges
// endpoint, requesting immediate execution.
func (c *HTTPClient) SubmitManualChanges(ctx context.Context, group, site string, payload *models.SubmissionPayload) (*models.PCVJob, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding submission payload: %w", err)
	}

	path := fmt.Sprintf("config/insightsGroup/%s/fabric/%s/prechangeAnalysis/manualChanges?action=RUN",
		url.PathEscape(group), url.PathEscape(site))

	env, err := c.do(ctx, http.MethodPost, path, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeJob(env)
}

// DeletePCVs removes jobs by identifier. The service models deletion as a
// POST of the job-id list to the jobs resource.
func (c *HTTPClient) DeletePCVs(ctx context.Context, group string, jobIDs []string) error {
	body, err := json.Marshal(jobIDs)
	if err != nil {
		return fmt.Errorf("encoding job ids: %w", err)
	}

	path := fmt.Sprintf("config/insightsGroup/%s/prechangeAnalysis/jobs", url.PathEscape(group))

	_, err = c.do(ctx, http.MethodPost, path, body, "application/json")
	return err
}

func decodeJob(env *envelope) (*models.PCVJob, error) {
	if len(env.Value.Data) == 0 {
		return nil, fmt.Errorf("%w: empty submission response", ErrServiceError)
	}
	var job models.PCVJob
	if err := json.Unmarshal(env.Value.Data, &job); err != nil {
		return nil, fmt.Errorf("decoding submitted job: %w", err)
	}
	return &job, nil
}
