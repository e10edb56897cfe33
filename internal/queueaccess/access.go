package queueaccess

import (
	"context"
	"fmt"

	"lectern/internal/api"
	"lectern/internal/ingestion"
	"lectern/internal/preflight"
	"lectern/internal/queue"
	"lectern/internal/services"
)

// Access provides ingestion operations regardless of API or direct store backing.
type Access interface {
	StartIngestion(ctx context.Context, bookID string, req api.StartIngestionRequest) (api.StartIngestionResponse, error)
	Status(ctx context.Context, bookID string) (api.IngestionStatus, error)
	Reset(ctx context.Context, bookID string, purgeAudio bool) (api.ResetResponse, error)
	Cancel(ctx context.Context, bookID string) (api.IngestionStatus, error)
	Jobs(ctx context.Context, bookID string) ([]api.Job, error)
	ResetJob(ctx context.Context, jobID string) (int64, error)
	Health(ctx context.Context) (api.HealthResponse, error)
	// Live reports whether a running daemon serves the requests.
	Live() bool
}

// NewAPIAccess returns an Access backed by the daemon's control API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. Jobs queued
// this way run the next time the daemon starts.
func NewStoreAccess(store *queue.Store, service *ingestion.Service, checks func(context.Context) []preflight.Result) Access {
	return &storeAccess{store: store, service: service, checks: checks}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) StartIngestion(ctx context.Context, bookID string, req api.StartIngestionRequest) (api.StartIngestionResponse, error) {
	return a.client.StartIngestion(ctx, bookID, req)
}

func (a *apiAccess) Status(ctx context.Context, bookID string) (api.IngestionStatus, error) {
	return a.client.IngestionStatus(ctx, bookID)
}

func (a *apiAccess) Reset(ctx context.Context, bookID string, purgeAudio bool) (api.ResetResponse, error) {
	return a.client.ResetIngestion(ctx, bookID, purgeAudio)
}

func (a *apiAccess) Cancel(ctx context.Context, bookID string) (api.IngestionStatus, error) {
	return a.client.CancelIngestion(ctx, bookID)
}

func (a *apiAccess) Jobs(ctx context.Context, bookID string) ([]api.Job, error) {
	return a.client.Jobs(ctx, bookID)
}

func (a *apiAccess) ResetJob(ctx context.Context, jobID string) (int64, error) {
	return a.client.ResetJob(ctx, jobID)
}

func (a *apiAccess) Health(ctx context.Context) (api.HealthResponse, error) {
	return a.client.Health(ctx)
}

func (a *apiAccess) Live() bool { return true }

type storeAccess struct {
	store   *queue.Store
	service *ingestion.Service
	checks  func(context.Context) []preflight.Result
}

func (a *storeAccess) StartIngestion(ctx context.Context, bookID string, req api.StartIngestionRequest) (api.StartIngestionResponse, error) {
	result, err := a.service.Start(ctx, ingestion.StartRequest{
		BookID:   bookID,
		VoiceID:  req.VoiceID,
		Provider: req.Provider,
		Model:    req.Model,
		Sections: req.Sections,
	})
	if err != nil {
		return api.StartIngestionResponse{}, err
	}
	return api.FromStartResult(result), nil
}

func (a *storeAccess) Status(ctx context.Context, bookID string) (api.IngestionStatus, error) {
	status, err := a.service.Status(ctx, bookID)
	if err != nil {
		return api.IngestionStatus{}, err
	}
	return api.FromStatus(status), nil
}

func (a *storeAccess) Reset(ctx context.Context, bookID string, purgeAudio bool) (api.ResetResponse, error) {
	result, err := a.service.Reset(ctx, bookID, ingestion.ResetOptions{PurgeAudio: purgeAudio})
	resp := api.ResetResponse{BookID: result.BookID, HadIngestion: result.HadIngestion, PurgedObjects: result.PurgedObjects}
	return resp, err
}

func (a *storeAccess) Cancel(ctx context.Context, bookID string) (api.IngestionStatus, error) {
	status, err := a.service.Cancel(ctx, bookID)
	if err != nil {
		return api.IngestionStatus{}, err
	}
	return api.FromIngestionStatus(status), nil
}

func (a *storeAccess) Jobs(ctx context.Context, bookID string) ([]api.Job, error) {
	jobs, err := a.service.Jobs(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (a *storeAccess) ResetJob(ctx context.Context, jobID string) (int64, error) {
	job, err := a.service.Job(ctx, jobID)
	if err != nil {
		return 0, err
	}
	n, err := a.service.ResetJobs(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, services.Wrap(services.ErrValidation, "queueaccess", "reset job",
			fmt.Sprintf("job %s is %s; only failed jobs can be reset", jobID, job.Status), nil)
	}
	return n, nil
}

func (a *storeAccess) Health(ctx context.Context) (api.HealthResponse, error) {
	var results []preflight.Result
	if a.checks != nil {
		results = a.checks(ctx)
	}
	stats, err := a.store.Stats(ctx, "")
	if err != nil {
		return api.HealthResponse{}, err
	}
	return api.HealthResponse{
		Healthy: len(preflight.Failed(results)) == 0,
		Checks:  api.FromCheckResults(results),
		Workflow: api.WorkflowStatus{
			JobStats:    api.MergeJobStats(stats),
			StageHealth: []api.StageHealth{},
		},
	}, nil
}

func (a *storeAccess) Live() bool { return false }
