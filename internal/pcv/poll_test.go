package pcv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagana/pcvgate/internal/nd"
	"github.com/sajagana/pcvgate/pkg/models"
)

// statusSequence returns a GetPCV stub that walks through the given statuses,
// repeating the last one once exhausted.
func statusSequence(statuses ...string) func(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
	i := 0
	return func(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
		status := statuses[len(statuses)-1]
		if i < len(statuses) {
			status = statuses[i]
			i++
		}
		return &models.PCVJob{JobID: "job-1", Name: name, AssuranceEntityName: site, AnalysisStatus: status}, nil
	}
}

func TestWaitAndQuery_RequiresSiteAndName(t *testing.T) {
	o := newTestOrchestrator(&fakeService{})

	_, err := o.WaitAndQuery(context.Background(), Request{InsightsGroup: "default", Name: "job"})
	assert.ErrorIs(t, err, ErrSiteAndNameRequired)
}

func TestWaitAndQuery_AbsentJobIsANoOp(t *testing.T) {
	svc := &fakeService{}
	o := newTestOrchestrator(svc)

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "gone",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Previous)
	assert.Nil(t, res.Current)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, svc.getCalls, "an absent job needs no polling")
}

func TestWaitAndQuery_AlreadyTerminal(t *testing.T) {
	svc := &fakeService{getFn: statusSequence("COMPLETED")}
	o := newTestOrchestrator(svc)

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Current.AnalysisStatus)
	assert.Equal(t, 1, svc.getCalls)
}

func TestWaitAndQuery_PollsUntilTerminal(t *testing.T) {
	svc := &fakeService{getFn: statusSequence("RUNNING", "RUNNING", "COMPLETED")}
	o := newTestOrchestrator(svc)

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Current.AnalysisStatus)
	assert.Equal(t, "RUNNING", res.Previous.AnalysisStatus)
	assert.Equal(t, 3, svc.getCalls, "one initial lookup plus one per poll")
}

func TestWaitAndQuery_FailedIsTerminal(t *testing.T) {
	svc := &fakeService{getFn: statusSequence("SCHEDULED", "FAILED")}
	o := newTestOrchestrator(svc)

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", res.Current.AnalysisStatus)
}

func TestWaitAndQuery_JobDeletedWhileWaiting(t *testing.T) {
	calls := 0
	svc := &fakeService{
		getFn: func(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
			calls++
			if calls == 1 {
				return runningJob(name, site), nil
			}
			return nil, nd.ErrNotFound
		},
	}
	o := newTestOrchestrator(svc)

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	require.NoError(t, err, "a job deleted mid-wait is an empty result, not a failure")
	assert.NotNil(t, res.Previous)
	assert.Nil(t, res.Current)
}

func TestWaitAndQuery_PollErrorPropagates(t *testing.T) {
	calls := 0
	svc := &fakeService{
		getFn: func(ctx context.Context, group, site, name string) (*models.PCVJob, error) {
			calls++
			if calls == 1 {
				return runningJob(name, site), nil
			}
			return nil, nd.ErrServiceError
		},
	}
	o := newTestOrchestrator(svc)

	_, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	assert.ErrorIs(t, err, nd.ErrServiceError)
}

func TestWaitAndQuery_TimesOut(t *testing.T) {
	svc := &fakeService{getFn: statusSequence("RUNNING")}
	o := New(svc, nil, Options{
		PollInterval:    time.Millisecond,
		PollMaxInterval: 2 * time.Millisecond,
		WaitTimeout:     30 * time.Millisecond,
	})

	res, err := o.WaitAndQuery(context.Background(), Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	assert.ErrorIs(t, err, ErrWaitTimeout)
	require.NotNil(t, res)
	assert.Equal(t, "RUNNING", res.Current.AnalysisStatus)
}

func TestWaitAndQuery_CallerCancellation(t *testing.T) {
	svc := &fakeService{getFn: statusSequence("RUNNING")}
	o := newTestOrchestrator(svc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.WaitAndQuery(ctx, Request{
		InsightsGroup: "default", SiteName: "site-1", Name: "job",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWaitTimeout, "caller cancellation is not a wait timeout")
}
