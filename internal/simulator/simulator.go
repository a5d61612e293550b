package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
)

// ErrStopped is returned by Run.Wait when the run was stopped before completing.
var ErrStopped = errors.New("simulation stopped")

// UpdateFunc receives a snapshot of all the stages and the index of the current
// stage after every tick. The index equals len(stages) once every stage completed.
type UpdateFunc func(stages []model.Stage, current int)

// CompleteFunc receives the result artifact once all the stages are completed.
type CompleteFunc func(artifact model.Artifact)

// Ticker is the timer that drives the simulation.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates tickers.
type TickerFactory func(d time.Duration) Ticker

// Config is the configuration of the simulator.
type Config struct {
	Tuning model.SimulationTuning
	// Rand is the random source, by default a shared, non deterministic source.
	Rand model.RandSource
	// NewTicker creates the tick driver, by default a time.Ticker.
	NewTicker TickerFactory
	// Result returns the artifact passed to the completion callback.
	// By default model.DefaultArtifact.
	Result func() model.Artifact
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Tuning.TickInterval == 0 {
		c.Tuning.TickInterval = time.Second
	}
	if c.Tuning.MinIncrement == 0 && c.Tuning.MaxIncrement == 0 {
		c.Tuning.MinIncrement = 10
		c.Tuning.MaxIncrement = 35
	}
	if c.Tuning.MinStageDuration == 0 && c.Tuning.MaxStageDuration == 0 {
		c.Tuning.MinStageDuration = 2 * time.Second
		c.Tuning.MaxStageDuration = 7 * time.Second
	}

	if c.Tuning.TickInterval < 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Tuning.MinIncrement <= 0 || c.Tuning.MaxIncrement < c.Tuning.MinIncrement {
		return fmt.Errorf("progress increment range [%v, %v) is not valid", c.Tuning.MinIncrement, c.Tuning.MaxIncrement)
	}
	if c.Tuning.MinStageDuration < 0 || c.Tuning.MaxStageDuration < c.Tuning.MinStageDuration {
		return fmt.Errorf("stage duration range [%s, %s) is not valid", c.Tuning.MinStageDuration, c.Tuning.MaxStageDuration)
	}

	if c.Rand == nil {
		c.Rand = model.GlobalRand
	}
	if c.NewTicker == nil {
		c.NewTicker = newTimeTicker
	}
	if c.Result == nil {
		c.Result = model.DefaultArtifact
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "simulator.Simulator"})

	return nil
}

// Simulator advances pipeline stages on a fixed interval, with randomized progress
// increments, until all of them complete.
//
// Progress increments and stage durations are random, so the total duration of a
// run is not deterministic unless a seeded Rand is configured.
type Simulator struct {
	tuning    model.SimulationTuning
	newTicker TickerFactory
	result    func() model.Artifact
	logger    log.Logger

	// Rand sources are not safe for concurrent use, runs share the simulator one.
	randMu sync.Mutex
	rand   model.RandSource
}

// New returns a new simulator.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Simulator{
		tuning:    cfg.Tuning,
		newTicker: cfg.NewTicker,
		result:    cfg.Result,
		logger:    cfg.Logger,
		rand:      cfg.Rand,
	}, nil
}

// Start starts a simulation run over the stages on its own goroutine and returns
// the handle to control it. The stages are copied, the caller slice is never
// mutated. Callbacks are called sequentially from the run goroutine.
//
// An empty stage list completes immediately.
func (s *Simulator) Start(ctx context.Context, stages []model.Stage, onUpdate UpdateFunc, onComplete CompleteFunc) (*Run, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.run(ctx, r, model.CloneStages(stages), onUpdate, onComplete)

	return r, nil
}

func (s *Simulator) run(ctx context.Context, r *Run, stages []model.Stage, onUpdate UpdateFunc, onComplete CompleteFunc) {
	defer close(r.done)
	logger := s.logger.WithCtxValues(ctx)

	if len(stages) > 0 {
		ticker := s.newTicker(s.tuning.TickInterval)
		defer ticker.Stop()

		current := 0
		for current < len(stages) {
			select {
			case <-ctx.Done():
				r.err = ErrStopped
				logger.Debugf("Simulation stopped at stage %d/%d", current, len(stages))
				return
			case <-ticker.C():
			}

			// Both channels could be ready, stopping has priority.
			if ctx.Err() != nil {
				r.err = ErrStopped
				return
			}

			current = s.step(stages, current)
			if onUpdate != nil {
				onUpdate(model.CloneStages(stages), current)
			}
		}
	}

	if ctx.Err() != nil {
		r.err = ErrStopped
		return
	}

	artifact := s.result()
	logger.Debugf("Simulation completed with %d stages", len(stages))
	if onComplete != nil {
		onComplete(artifact)
	}
}

// step applies one tick to the current stage and returns the new current stage index.
func (s *Simulator) step(stages []model.Stage, current int) int {
	stage := &stages[current]

	switch stage.Status {
	case model.StageStatusPending:
		stage.Status = model.StageStatusRunning
		stage.Progress = 0
		stage.Details = fmt.Sprintf("Processing %s...", strings.ToLower(stage.Name))
	case model.StageStatusRunning:
		stage.Progress = math.Min(stage.Progress+s.increment(), 100)
		if stage.Progress >= 100 {
			stage.Status = model.StageStatusCompleted
			stage.Duration = s.stageDuration()
			stage.Details = fmt.Sprintf("%s completed successfully", stage.Name)
			return current + 1
		}
	}

	return current
}

func (s *Simulator) randFloat() float64 {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64()
}

func (s *Simulator) increment() float64 {
	t := s.tuning
	return t.MinIncrement + s.randFloat()*(t.MaxIncrement-t.MinIncrement)
}

// stageDuration returns a random whole second duration in the configured range.
func (s *Simulator) stageDuration() time.Duration {
	t := s.tuning
	d := t.MinStageDuration + time.Duration(s.randFloat()*float64(t.MaxStageDuration-t.MinStageDuration))
	return d.Truncate(time.Second)
}

func validateStages(stages []model.Stage) error {
	seen := make(map[string]struct{}, len(stages))
	for i, st := range stages {
		if st.ID == "" {
			return fmt.Errorf("stage %d id is required: %w", i, model.ErrNotValid)
		}
		if _, ok := seen[st.ID]; ok {
			return fmt.Errorf("stage %q is duplicated: %w", st.ID, model.ErrNotValid)
		}
		seen[st.ID] = struct{}{}

		if st.Status != model.StageStatusPending {
			return fmt.Errorf("stage %q must be pending, got %q: %w", st.ID, st.Status, model.ErrNotValid)
		}
	}
	return nil
}

// Run is the handle of a running simulation.
type Run struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop stops the simulation timer. It's safe to call multiple times and from the
// callbacks. A stopped run never calls the completion callback.
func (r *Run) Stop() { r.cancel() }

// Done is closed when the run goroutine finishes, after that no more callbacks are called.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes. It returns nil if the simulation completed
// and ErrStopped if it was stopped.
func (r *Run) Wait() error {
	<-r.done
	return r.err
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
