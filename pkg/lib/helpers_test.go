package lib_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/app/generate"
	"github.com/slok/meshforge/internal/app/list"
	"github.com/slok/meshforge/internal/app/pipeline"
	"github.com/slok/meshforge/internal/app/status"
	"github.com/slok/meshforge/internal/generator/fake"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/simulator"
	"github.com/slok/meshforge/internal/storage/memory"
)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

// localServer runs a meshforge API with deterministic generation and a fast
// pipeline simulation, every tick completes a stage.
type localServer struct {
	URL   string
	close func()
}

func (s localServer) Close() { s.close() }

func newLocalServer(tickInterval time.Duration) (localServer, error) {
	gen, err := fake.NewGenerator(fake.GeneratorConfig{NoDelay: true, Rand: constRand(0.5)})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create generator: %w", err)
	}

	genSvc, err := generate.NewService(generate.ServiceConfig{Generator: gen})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create generate service: %w", err)
	}

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create repository: %w", err)
	}

	sim, err := simulator.New(simulator.Config{
		Tuning: model.SimulationTuning{
			TickInterval:     tickInterval,
			MinIncrement:     100,
			MaxIncrement:     100,
			MinStageDuration: time.Second,
			MaxStageDuration: time.Second,
		},
		Rand: constRand(0.5),
	})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create simulator: %w", err)
	}

	jobSvc, err := pipeline.NewService(pipeline.ServiceConfig{
		Repository: repo,
		Simulator:  sim,
		Estimator:  gen,
	})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create pipeline service: %w", err)
	}

	listSvc, err := list.NewService(list.ServiceConfig{Repository: repo})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create list service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: repo})
	if err != nil {
		return localServer{}, fmt.Errorf("could not create status service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h, err := api.NewHandler(api.HandlerConfig{
		GenerateService: genSvc,
		JobService:      jobSvc,
		ListService:     listSvc,
		StatusService:   statusSvc,
		Ctx:             ctx,
		Logger:          log.Noop,
	})
	if err != nil {
		cancel()
		return localServer{}, fmt.Errorf("could not create handler: %w", err)
	}

	srv := httptest.NewServer(h)
	return localServer{
		URL: srv.URL,
		close: func() {
			cancel()
			_ = jobSvc.Shutdown(context.Background())
			srv.Close()
		},
	}, nil
}
