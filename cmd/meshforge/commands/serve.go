package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/app/generate"
	"github.com/slok/meshforge/internal/app/list"
	"github.com/slok/meshforge/internal/app/pipeline"
	"github.com/slok/meshforge/internal/app/status"
	"github.com/slok/meshforge/internal/conventions"
	"github.com/slok/meshforge/internal/generator/fake"
	"github.com/slok/meshforge/internal/log"
	metricsprometheus "github.com/slok/meshforge/internal/metrics/prometheus"
	"github.com/slok/meshforge/internal/simulator"
	"github.com/slok/meshforge/internal/storage"
	"github.com/slok/meshforge/internal/storage/memory"
	"github.com/slok/meshforge/internal/storage/redis"
	"github.com/slok/meshforge/internal/storage/sqlite"
)

const (
	storageMemory = "memory"
	storageSQLite = "sqlite"
	storageRedis  = "redis"
)

// ServeCommand runs the generation HTTP API.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr        string
	metricsListenAddr string
	storage           string
	redisAddr         string
	redisPrefix       string
	pipelineConfig    string
	delayScale        float64
	noDelay           bool
	maxRunningJobs    int
	rateLimitRPS      float64
	rateLimitBurst    int
	shutdownTimeout   time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the generation HTTP API server.")
	c.Cmd.Flag("listen", "Address the API listens on.").Default(conventions.DefaultListenAddr).StringVar(&c.listenAddr)
	c.Cmd.Flag("metrics-listen", "Address the Prometheus metrics are served on (empty disables it).").Default(conventions.DefaultMetricsListenAddr).StringVar(&c.metricsListenAddr)
	c.Cmd.Flag("storage", "Job storage backend.").Default(storageMemory).EnumVar(&c.storage, storageMemory, storageSQLite, storageRedis)
	c.Cmd.Flag("redis-addr", "Redis address (redis storage).").Default("127.0.0.1:6379").StringVar(&c.redisAddr)
	c.Cmd.Flag("redis-prefix", "Redis key prefix (redis storage).").Default(redis.DefaultKeyPrefix).StringVar(&c.redisPrefix)
	c.Cmd.Flag("pipeline-config", "Path to the pipeline YAML configuration.").StringVar(&c.pipelineConfig)
	c.Cmd.Flag("delay-scale", "Multiplier of the artificial generation delay.").Default("1").Float64Var(&c.delayScale)
	c.Cmd.Flag("no-delay", "Disable the artificial generation delay.").BoolVar(&c.noDelay)
	c.Cmd.Flag("max-running-jobs", "Maximum concurrent pipeline jobs (0 is unlimited).").Default("0").IntVar(&c.maxRunningJobs)
	c.Cmd.Flag("rate-limit-rps", "Requests per second allowed per client IP (0 disables it).").Default("0").Float64Var(&c.rateLimitRPS)
	c.Cmd.Flag("rate-limit-burst", "Request burst allowed per client IP.").Default("10").IntVar(&c.rateLimitBurst)
	c.Cmd.Flag("shutdown-timeout", "Time to wait for the in flight requests on shutdown.").Default("5s").DurationVar(&c.shutdownTimeout)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	if c.delayScale < 0 {
		return fmt.Errorf("delay scale can't be negative")
	}

	pipelineCfg, err := loadPipelineConfig(ctx, c.pipelineConfig)
	if err != nil {
		return err
	}

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsRec := metricsprometheus.NewRecorder(reg)

	// Storage.
	repo, readiness, closeRepo, err := c.newRepository(ctx, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Domain.
	gen, err := fake.NewGenerator(fake.GeneratorConfig{
		Tuning:     pipelineCfg.Generator,
		DelayScale: c.delayScale,
		NoDelay:    c.noDelay,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generator: %w", err)
	}

	sim, err := simulator.New(simulator.Config{
		Tuning: pipelineCfg.Simulation,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create simulator: %w", err)
	}

	// Services.
	genSvc, err := generate.NewService(generate.ServiceConfig{
		Generator:       gen,
		MetricsRecorder: metricsRec,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generate service: %w", err)
	}

	jobSvc, err := pipeline.NewService(pipeline.ServiceConfig{
		Repository:      repo,
		Simulator:       sim,
		Estimator:       gen,
		Stages:          pipelineCfg.Stages,
		MaxRunningJobs:  c.maxRunningJobs,
		MetricsRecorder: metricsRec,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create pipeline service: %w", err)
	}

	recovered, err := jobSvc.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("could not recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warningf("%d jobs from a previous run were marked as failed", recovered)
	}

	listSvc, err := list.NewService(list.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create list service: %w", err)
	}

	statusSvc, err := status.NewService(status.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create status service: %w", err)
	}

	var g run.Group

	// API server.
	{
		ctx, cancel := context.WithCancel(ctx)

		handler, err := api.NewHandler(api.HandlerConfig{
			GenerateService: genSvc,
			JobService:      jobSvc,
			ListService:     listSvc,
			StatusService:   statusSvc,
			ReadinessCheck:  readiness,
			RateLimitRPS:    c.rateLimitRPS,
			RateLimitBurst:  c.rateLimitBurst,
			Ctx:             ctx,
			MetricsRecorder: metricsRec,
			Logger:          logger,
		})
		if err != nil {
			cancel()
			return fmt.Errorf("could not create API handler: %w", err)
		}

		server, err := api.NewServer(api.ServerConfig{
			ListenAddr:      c.listenAddr,
			Handler:         handler,
			ShutdownTimeout: c.shutdownTimeout,
			Logger:          logger.WithValues(log.Kv{"server": "api"}),
		})
		if err != nil {
			cancel()
			return fmt.Errorf("could not create API server: %w", err)
		}

		g.Add(
			func() error { return server.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Metrics server.
	if c.metricsListenAddr != "" {
		ctx, cancel := context.WithCancel(ctx)

		mux := http.NewServeMux()
		mux.Handle(conventions.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		server, err := api.NewServer(api.ServerConfig{
			ListenAddr:      c.metricsListenAddr,
			Handler:         mux,
			ShutdownTimeout: c.shutdownTimeout,
			Logger:          logger.WithValues(log.Kv{"server": "metrics"}),
		})
		if err != nil {
			cancel()
			return fmt.Errorf("could not create metrics server: %w", err)
		}

		g.Add(
			func() error { return server.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Running jobs are interrupted when the server stops.
	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
				defer shutdownCancel()

				logger.Infof("Stopping %d running jobs", jobSvc.Running())
				if err := jobSvc.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("could not stop running jobs: %w", err)
				}
				return nil
			},
			func(_ error) { cancel() },
		)
	}

	return g.Run()
}

// newRepository returns the job repository, its readiness check and the func that releases it.
func (c ServeCommand) newRepository(ctx context.Context, logger log.Logger) (storage.JobRepository, api.ReadinessCheck, func(), error) {
	switch c.storage {
	case storageSQLite:
		repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: c.rootCmd.DBPath,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not create sqlite repository: %w", err)
		}
		return repo, repo.Ping, func() { _ = repo.Close() }, nil

	case storageRedis:
		client := goredis.NewClient(&goredis.Options{Addr: c.redisAddr})
		repo, err := redis.NewRepository(redis.RepositoryConfig{
			Client:    client,
			KeyPrefix: c.redisPrefix,
			Logger:    logger,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("could not create redis repository: %w", err)
		}
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("could not connect to redis: %w", err)
		}
		return repo, repo.Ping, func() { _ = client.Close() }, nil

	default:
		repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not create memory repository: %w", err)
		}
		return repo, nil, func() {}, nil
	}
}
