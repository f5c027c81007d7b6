package nd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sajagana/pcvgate/pkg/models"
)

// GetLastEpoch resolves the most recent finished epoch for the fabric.
// Returns ErrNoEpoch when the fabric has never completed a collection; a
// validation cannot be submitted without a baseline.
func (c *HTTPClient) GetLastEpoch(ctx context.Context, group, site string) (*models.Epoch, error) {
	path := fmt.Sprintf("events/insightsGroup/%s/fabric/%s/epochs?%%24size=1&%%24status=FINISHED",
		url.PathEscape(group), url.PathEscape(site))

	env, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var epochs []*models.Epoch
	if len(env.Value.Data) > 0 {
		if err := json.Unmarshal(env.Value.Data, &epochs); err != nil {
			return nil, fmt.Errorf("decoding epochs: %w", err)
		}
	}
	if len(epochs) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoEpoch, group, site)
	}
	return epochs[0], nil
}
