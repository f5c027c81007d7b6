package pcv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sajagana/pcvgate/internal/nd"
)

// WaitAndQuery blocks until the validation reaches COMPLETED or FAILED, the
// job disappears, or the wait deadline passes.
//
// When no job exists at the initial lookup the operation degenerates to a
// no-op with an empty result. A not-found answer during polling means the
// job was deleted out from under us and also yields an empty result; any
// other polling error propagates. Deadline exhaustion surfaces as
// ErrWaitTimeout rather than an endless loop.
func (o *Orchestrator) WaitAndQuery(ctx context.Context, req Request) (*Result, error) {
	if req.SiteName == "" || req.Name == "" {
		return nil, ErrSiteAndNameRequired
	}

	initial, err := o.QueryOne(ctx, req.InsightsGroup, req.SiteName, req.Name)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		return &Result{}, nil
	}

	res := &Result{Previous: initial, Current: initial}
	if initial.Terminal() {
		return res, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.opts.WaitTimeout)
	defer cancel()

	interval := o.opts.PollInterval
	for {
		if err := o.sleep(waitCtx, interval); err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return res, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, req.Name, o.opts.WaitTimeout)
			}
			return res, err
		}

		job, err := o.svc.GetPCV(waitCtx, req.InsightsGroup, req.SiteName, req.Name)
		if errors.Is(err, nd.ErrNotFound) {
			// The job was removed while we were waiting on it.
			slog.Warn("pre-change validation disappeared while waiting",
				"group", req.InsightsGroup, "site", req.SiteName, "name", req.Name)
			res.Current = nil
			return res, nil
		}
		if err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return res, fmt.Errorf("%w: %s after %s", ErrWaitTimeout, req.Name, o.opts.WaitTimeout)
			}
			return res, err
		}

		res.Current = job
		if job.Terminal() {
			return res, nil
		}

		interval = nextInterval(interval, o.opts.PollMaxInterval)
	}
}

// nextInterval doubles the polling interval up to the configured cap.
func nextInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
