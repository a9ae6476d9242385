package cron

import "context"

// Job is one step of the negotiation cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks registered jobs.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

// NewJob adapts a function into a Job.
func NewJob(name string, run func(ctx context.Context) error) Job {
	if run == nil {
		return nil
	}
	return funcJob{name: name, run: run}
}

// Job names, in cycle order.
const (
	JobReconcileReplies = "reconcile-replies"
	JobStartShipments   = "start-shipments"
	JobAdvance          = "advance-negotiation"
	JobFinalize         = "finalize-shipments"
	JobReapStale        = "reap-stale-shipments"
)

type runner interface {
	Run(ctx context.Context) error
}

// Phases is the orchestrator surface the cycle drives.
type Phases interface {
	Start(ctx context.Context) error
	Advance(ctx context.Context) error
	Finalize(ctx context.Context) error
}

// NegotiationJobs returns the cycle steps in order: drain replies, start new
// shipments, advance and finalize negotiations, then time out stale ones.
func NegotiationJobs(replies runner, phases Phases, reaper runner) []Job {
	return []Job{
		NewJob(JobReconcileReplies, replies.Run),
		NewJob(JobStartShipments, phases.Start),
		NewJob(JobAdvance, phases.Advance),
		NewJob(JobFinalize, phases.Finalize),
		NewJob(JobReapStale, reaper.Run),
	}
}
