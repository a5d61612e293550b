package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/slok/meshforge/internal/generator"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/metrics"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/simulator"
	"github.com/slok/meshforge/internal/storage"
)

const (
	subscriberBuffer = 16

	errMsgInterrupted = "interrupted before completion"
	errMsgShutdown    = "interrupted by shutdown"
)

// Simulator starts stage simulations.
type Simulator interface {
	Start(ctx context.Context, stages []model.Stage, onUpdate simulator.UpdateFunc, onComplete simulator.CompleteFunc) (*simulator.Run, error)
}

// ServiceConfig is the configuration for the pipeline service.
type ServiceConfig struct {
	Repository storage.JobRepository
	Simulator  Simulator
	// Estimator fabricates the artifact statistics, when missing the simulator artifact is used.
	Estimator generator.Estimator
	Stages    []model.StageDefinition
	Limits    model.GenerationLimits
	// MaxRunningJobs caps the concurrent live jobs, 0 means no limit.
	MaxRunningJobs  int
	TimeNow         func() time.Time
	IDGenerator     func() string
	MetricsRecorder metrics.Recorder
	Logger          log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Simulator == nil {
		return fmt.Errorf("simulator is required")
	}
	if len(c.Stages) == 0 {
		c.Stages = model.DefaultStageDefinitions()
	}
	if err := model.ValidateStageDefinitions(c.Stages); err != nil {
		return fmt.Errorf("invalid stages: %w", err)
	}
	c.Limits = c.Limits.WithDefaults()
	if c.MaxRunningJobs < 0 {
		return fmt.Errorf("max running jobs can't be negative")
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.IDGenerator == nil {
		c.IDGenerator = func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String()
		}
	}
	if c.MetricsRecorder == nil {
		c.MetricsRecorder = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Pipeline"})
	return nil
}

// Service runs simulated generation pipeline jobs in the background and keeps
// their state in the repository on every simulation tick.
type Service struct {
	repo      storage.JobRepository
	sim       Simulator
	estimator generator.Estimator
	stages    []model.StageDefinition
	limits    model.GenerationLimits
	maxJobs   int
	now       func() time.Time
	newID     func() string
	metrics   metrics.Recorder
	logger    log.Logger

	mu       sync.Mutex
	live     map[string]*liveJob
	stopping bool
}

// NewService creates a new pipeline service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		sim:       cfg.Simulator,
		estimator: cfg.Estimator,
		stages:    cfg.Stages,
		limits:    cfg.Limits,
		maxJobs:   cfg.MaxRunningJobs,
		now:       cfg.TimeNow,
		newID:     cfg.IDGenerator,
		metrics:   cfg.MetricsRecorder,
		logger:    cfg.Logger,
		live:      map[string]*liveJob{},
	}, nil
}

type liveJob struct {
	mu        sync.Mutex
	job       model.Job
	run       *simulator.Run
	cancelled bool
	// interrupted is set by a shutdown.
	interrupted bool
	subs        map[int]chan model.Job
	nextSub     int
	finished    chan struct{}
}

// StartRequest represents the start job request parameters.
type StartRequest struct {
	Generation     model.GenerationRequest
	IdempotencyKey string
}

// Start validates the request, stores a new pending job and starts its simulation
// in the background. The returned job is the stored pending one, or the cancelled
// one when it was cancelled while being stored.
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.Job, error) {
	gen := req.Generation
	if err := gen.Validate(s.limits); err != nil {
		return nil, err
	}
	if !gen.Type.IsImage() {
		gen.Images = nil
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil, fmt.Errorf("pipeline is shutting down: %w", model.ErrConflict)
	}
	if s.maxJobs > 0 && len(s.live) >= s.maxJobs {
		s.mu.Unlock()
		return nil, fmt.Errorf("max running jobs (%d) reached: %w", s.maxJobs, model.ErrConflict)
	}

	now := s.now().UTC()
	job := model.Job{
		ID:             s.newID(),
		Request:        gen,
		IdempotencyKey: req.IdempotencyKey,
		Status:         model.JobStatusPending,
		Stages:         model.NewStages(s.stages),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	lj := &liveJob{
		job:      job.Clone(),
		subs:     map[int]chan model.Job{},
		finished: make(chan struct{}),
	}
	s.live[job.ID] = lj
	s.mu.Unlock()

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"job-id": job.ID, "type": gen.Type})

	if err := s.repo.CreateJob(ctx, job); err != nil {
		lj.mu.Lock()
		lj.job.Status = model.JobStatusFailed
		lj.job.Error = fmt.Sprintf("could not store job: %s", err)
		lj.closeSubscribers()
		close(lj.finished)
		lj.mu.Unlock()
		s.removeLive(job.ID)
		return nil, fmt.Errorf("could not store job: %w", err)
	}

	// The run outlives the request.
	runCtx := context.WithoutCancel(ctx)

	// Callbacks can be called before Start returns, the job state lock is held
	// until the run handle is set.
	lj.mu.Lock()

	// Cancelled or interrupted while being stored, the run is never started.
	if lj.cancelled || lj.interrupted {
		s.settleStopped(runCtx, lj)
		lj.closeSubscribers()
		settled := lj.job.Clone()
		close(lj.finished)
		lj.mu.Unlock()
		s.removeLive(job.ID)

		logger.Infof("Pipeline job %s before starting", settled.Status)
		return &settled, nil
	}

	run, err := s.sim.Start(runCtx, job.Stages,
		func(stages []model.Stage, current int) { s.onUpdate(runCtx, lj, stages, current) },
		func(a model.Artifact) { s.onComplete(runCtx, lj, a) },
	)
	if err != nil {
		lj.job.Status = model.JobStatusFailed
		lj.closeSubscribers()
		close(lj.finished)
		lj.mu.Unlock()
		s.removeLive(job.ID)
		if ferr := s.markFailed(ctx, job, fmt.Sprintf("could not start simulation: %s", err)); ferr != nil {
			logger.Errorf("Could not store failed job: %s", ferr)
		}
		return nil, fmt.Errorf("could not start simulation: %w", err)
	}
	lj.run = run
	lj.mu.Unlock()

	s.metrics.AddJobEvent(ctx, metrics.JobEventStarted)
	s.metrics.SetRunningJobs(ctx, s.Running())
	logger.Infof("Pipeline job started with %d stages", len(job.Stages))

	go s.watch(runCtx, lj)

	return &job, nil
}

func (s *Service) onUpdate(ctx context.Context, lj *liveJob, stages []model.Stage, current int) {
	lj.mu.Lock()
	defer lj.mu.Unlock()

	for i, st := range stages {
		if i < len(lj.job.Stages) && st.Status == model.StageStatusCompleted && lj.job.Stages[i].Status != model.StageStatusCompleted {
			s.metrics.ObserveStageDuration(ctx, st.ID, st.Duration)
		}
	}

	lj.job.Stages = stages
	lj.job.CurrentStage = current
	lj.job.Status = model.JobStatusRunning
	lj.job.UpdatedAt = s.now().UTC()

	s.persist(ctx, lj.job)
	lj.publish()
}

func (s *Service) onComplete(ctx context.Context, lj *liveJob, a model.Artifact) {
	lj.mu.Lock()
	defer lj.mu.Unlock()

	artifact := s.artifact(lj.job.Request, a)
	now := s.now().UTC()
	lj.job.Status = model.JobStatusCompleted
	lj.job.CurrentStage = len(lj.job.Stages)
	lj.job.Artifact = &artifact
	lj.job.UpdatedAt = now
	lj.job.FinishedAt = &now

	s.persist(ctx, lj.job)
	lj.publish()

	s.metrics.AddJobEvent(ctx, metrics.JobEventCompleted)
	s.logger.WithValues(log.Kv{"job-id": lj.job.ID}).Infof("Pipeline job completed")
}

// watch waits for the run to end and settles the final state of stopped runs.
func (s *Service) watch(ctx context.Context, lj *liveJob) {
	err := lj.run.Wait()

	lj.mu.Lock()
	if errors.Is(err, simulator.ErrStopped) {
		s.settleStopped(ctx, lj)
	}
	lj.closeSubscribers()
	id := lj.job.ID
	lj.mu.Unlock()

	s.removeLive(id)
	s.metrics.SetRunningJobs(ctx, s.Running())
	close(lj.finished)
}

// settleStopped sets the final state of a job whose run was stopped, the job
// state lock must be held.
func (s *Service) settleStopped(ctx context.Context, lj *liveJob) {
	if lj.job.Status.IsTerminal() {
		return
	}

	now := s.now().UTC()
	if lj.cancelled {
		lj.job.Status = model.JobStatusCancelled
		markCurrentStage(lj.job.Stages, lj.job.CurrentStage, "Cancelled")
		s.metrics.AddJobEvent(ctx, metrics.JobEventCancelled)
	} else {
		lj.job.Status = model.JobStatusFailed
		lj.job.Error = errMsgShutdown
		markCurrentStage(lj.job.Stages, lj.job.CurrentStage, errMsgShutdown)
		s.metrics.AddJobEvent(ctx, metrics.JobEventInterrupted)
	}
	lj.job.UpdatedAt = now
	lj.job.FinishedAt = &now
	s.persist(ctx, lj.job)
	lj.publish()
}

// Cancel stops a live job. Cancelling a job that already finished returns a conflict error.
func (s *Service) Cancel(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	lj, ok := s.live[id]
	s.mu.Unlock()

	if !ok {
		return s.cancelStored(ctx, id)
	}

	lj.mu.Lock()
	lj.cancelled = true
	run := lj.run
	lj.mu.Unlock()

	if run != nil {
		run.Stop()
	}

	select {
	case <-lj.finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lj.mu.Lock()
	job := lj.job.Clone()
	lj.mu.Unlock()

	if job.Status != model.JobStatusCancelled {
		return nil, fmt.Errorf("job %q already %s: %w", id, job.Status, model.ErrConflict)
	}

	s.logger.WithCtxValues(ctx).WithValues(log.Kv{"job-id": id}).Infof("Pipeline job cancelled")
	return &job, nil
}

// cancelStored cancels a job that is not running on this service, like the ones
// left by a previous process.
func (s *Service) cancelStored(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get job: %w", err)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %q already %s: %w", id, job.Status, model.ErrConflict)
	}

	now := s.now().UTC()
	job.Status = model.JobStatusCancelled
	markCurrentStage(job.Stages, job.CurrentStage, "Cancelled")
	job.UpdatedAt = now
	job.FinishedAt = &now
	if err := s.repo.UpdateJob(ctx, *job); err != nil {
		return nil, fmt.Errorf("could not update job: %w", err)
	}
	s.metrics.AddJobEvent(ctx, metrics.JobEventCancelled)

	return job, nil
}

// Subscribe returns a channel that receives the job state on every change, starting
// with the current one. The channel is closed when the job finishes or the returned
// cancel func is called. Slow subscribers only lose intermediate states, the latest
// state is always kept.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan model.Job, func(), error) {
	s.mu.Lock()
	lj, ok := s.live[id]
	s.mu.Unlock()

	if !ok {
		job, err := s.repo.GetJob(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("could not get job: %w", err)
		}
		ch := make(chan model.Job, 1)
		ch <- *job
		close(ch)
		return ch, func() {}, nil
	}

	lj.mu.Lock()
	defer lj.mu.Unlock()

	ch := make(chan model.Job, subscriberBuffer)
	ch <- lj.job.Clone()

	// Finished jobs waiting to be removed.
	if lj.subs == nil {
		close(ch)
		return ch, func() {}, nil
	}

	subID := lj.nextSub
	lj.nextSub++
	lj.subs[subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			lj.mu.Lock()
			defer lj.mu.Unlock()
			if c, ok := lj.subs[subID]; ok {
				delete(lj.subs, subID)
				close(c)
			}
		})
	}

	return ch, cancel, nil
}

// RecoverInterrupted marks the stored unfinished jobs that are not running on this
// service as failed. It's used on startup to settle the jobs of a previous process.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	for _, st := range []model.JobStatus{model.JobStatusPending, model.JobStatusRunning} {
		status := st
		jobs, err := s.repo.ListJobs(ctx, storage.ListJobsOpts{Status: &status})
		if err != nil {
			return recovered, fmt.Errorf("could not list %s jobs: %w", st, err)
		}

		for _, j := range jobs {
			s.mu.Lock()
			_, isLive := s.live[j.ID]
			s.mu.Unlock()
			if isLive {
				continue
			}

			if err := s.markFailed(ctx, j, errMsgInterrupted); err != nil {
				return recovered, err
			}
			s.metrics.AddJobEvent(ctx, metrics.JobEventInterrupted)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.WithCtxValues(ctx).Warningf("%d interrupted pipeline jobs marked as failed", recovered)
	}

	return recovered, nil
}

// Shutdown stops accepting jobs, stops all the live runs and waits until their
// final state is stored.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	jobs := make([]*liveJob, 0, len(s.live))
	for _, lj := range s.live {
		jobs = append(jobs, lj)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, lj := range jobs {
		g.Go(func() error {
			lj.mu.Lock()
			lj.interrupted = true
			run := lj.run
			lj.mu.Unlock()
			if run != nil {
				run.Stop()
			}

			select {
			case <-lj.finished:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("could not stop all the pipeline jobs: %w", err)
	}

	if len(jobs) > 0 {
		s.logger.Infof("%d pipeline jobs stopped", len(jobs))
	}
	return nil
}

// Running returns the number of live jobs.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *Service) artifact(req model.GenerationRequest, simulated model.Artifact) model.Artifact {
	if s.estimator == nil {
		return simulated
	}

	m := s.estimator.Estimate(req)
	return model.Artifact{
		ModelURL:  model.SampleModelURL(req.Type),
		Vertices:  m.Vertices,
		Triangles: m.Faces,
		FileSize:  s.estimator.FileSize(m.Vertices),
		Format:    simulated.Format,
	}
}

func (s *Service) markFailed(ctx context.Context, j model.Job, msg string) error {
	now := s.now().UTC()
	j.Status = model.JobStatusFailed
	j.Error = msg
	markCurrentStage(j.Stages, j.CurrentStage, msg)
	j.UpdatedAt = now
	j.FinishedAt = &now

	if err := s.repo.UpdateJob(ctx, j); err != nil {
		return fmt.Errorf("could not mark job %q as failed: %w", j.ID, err)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, j model.Job) {
	if err := s.repo.UpdateJob(ctx, j); err != nil {
		s.logger.WithValues(log.Kv{"job-id": j.ID}).Errorf("Could not store job state: %s", err)
	}
}

func (s *Service) removeLive(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

// markCurrentStage sets the current unfinished stage in error state.
func markCurrentStage(stages []model.Stage, current int, details string) {
	if current < 0 || current >= len(stages) {
		return
	}
	if stages[current].Status.IsTerminal() {
		return
	}
	stages[current].Status = model.StageStatusError
	stages[current].Details = details
}

// publish sends the current state to the subscribers without blocking, dropping
// their oldest buffered state when they are full. Requires the job lock.
func (lj *liveJob) publish() {
	for _, ch := range lj.subs {
		snapshot := lj.job.Clone()
		select {
		case ch <- snapshot:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// closeSubscribers requires the job lock.
func (lj *liveJob) closeSubscribers() {
	for id, ch := range lj.subs {
		close(ch)
		delete(lj.subs, id)
	}
	lj.subs = nil
}
