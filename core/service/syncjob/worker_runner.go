package syncjob

import (
	"context"

	"outreach_worker/core/domain"
	"outreach_worker/pkg/apperr"
)

// Runner dispatches triggers to the registered jobs by kind.
type Runner struct {
	jobs  map[domain.JobKind]Job
	order []domain.JobKind
}

func NewRunner(jobs ...Job) *Runner {
	r := &Runner{jobs: make(map[domain.JobKind]Job, len(jobs))}
	for _, j := range jobs {
		r.jobs[j.Kind()] = j
	}
	// canonical order: replies are synced before they are classified
	for _, k := range domain.JobKinds {
		if _, ok := r.jobs[k]; ok {
			r.order = append(r.order, k)
		}
	}
	return r
}

// Jobs returns the registered kinds in run order.
func (r *Runner) Jobs() []domain.JobKind {
	return append([]domain.JobKind(nil), r.order...)
}

// Run executes the job named by req.Job.
func (r *Runner) Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error) {
	job, ok := r.jobs[req.Job]
	if !ok {
		return nil, apperr.UnknownJob(string(req.Job))
	}
	return job.Run(ctx, req)
}

// RunAll runs every registered job for one connection in order and keeps going
// after a failed job. It returns the summaries of the jobs that ran and the
// first error.
func (r *Runner) RunAll(ctx context.Context, connectionID string) ([]*domain.RunSummary, error) {
	var (
		summaries []*domain.RunSummary
		firstErr  error
	)
	for _, kind := range r.order {
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}
		s, err := r.jobs[kind].Run(ctx, domain.TriggerRequest{ConnectionID: connectionID, Job: kind})
		if s != nil {
			summaries = append(summaries, s)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return summaries, firstErr
}
