package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/action"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/analytics"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/conditional"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/config"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/flow"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/loop"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metadata"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/metrics"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/model"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/memory"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/postgres"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/persistence/redis"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/provider"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/rest"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/state"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const CONNECT_TIMEOUT = 30 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type Agent struct {
	Config           config.Config
	templates        metadata.Storage
	fastStore        persistence.StateStore
	durableStore     persistence.ExecutionStore
	stateManager     *state.Manager
	metadataService  *metadata.ServiceImpl
	providers        provider.Set
	executor         *flow.Executor
	launcher         flow.Launcher
	executionService *flow.Service
	httpServer       *rest.Server
	closers          []func() error
	shutdown         bool
	shutdownLock     sync.Mutex
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupMetrics,
		a.setupFastStore,
		a.setupDurableStore,
		a.setupTemplateStorage,
		a.setupStateManager,
		a.setupProviders,
		a.setupExecutionService,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAnalytics() error {
	return analytics.InitDataCollector(a.Config.AnalyticsConfig)
}

func (a *Agent) setupMetrics() error {
	return metrics.Register()
}

func (a *Agent) setupFastStore() error {
	switch a.Config.StateStoreType {
	case config.STATE_STORE_REDIS:
		store := redis.NewRedisStateStore(a.redisConfig())
		if err := connect("redis", a.Config.RedisConfig.ConnectRetries, store); err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.fastStore = store
	case config.STATE_STORE_MEMORY, "":
		a.fastStore = memory.NewStateStore()
	default:
		return fmt.Errorf("unsupported state store %q", a.Config.StateStoreType)
	}
	return nil
}

func (a *Agent) setupDurableStore() error {
	switch a.Config.DurableStoreType {
	case config.DURABLE_STORE_POSTGRES:
		pool, err := a.openPostgres()
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		store := postgres.NewExecutionStore(pool)
		ctx, cancel := context.WithTimeout(context.Background(), CONNECT_TIMEOUT)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating postgres schema: %w", err)
		}
		a.durableStore = store
	case config.DURABLE_STORE_MEMORY, "":
		a.durableStore = memory.NewExecutionStore()
	default:
		return fmt.Errorf("unsupported durable store %q", a.Config.DurableStoreType)
	}
	return nil
}

func (a *Agent) openPostgres() (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(a.Config.PostgresConfig.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if a.Config.PostgresConfig.MaxConns > 0 {
		poolConfig.MaxConns = a.Config.PostgresConfig.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	if err := connect("postgres", a.Config.PostgresConfig.ConnectRetries, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (a *Agent) setupTemplateStorage() error {
	codec, err := util.NewEncoderDecoder[model.WorkflowTemplate](string(a.Config.EncoderDecoderType))
	if err != nil {
		return err
	}
	if a.Config.StateStoreType == config.STATE_STORE_REDIS {
		storage := redis.NewRedisTemplateStorage(a.redisConfig(), codec)
		a.closers = append(a.closers, storage.Close)
		a.templates = storage
	} else {
		a.templates = memory.NewTemplateStorage()
	}
	a.metadataService = metadata.NewService(a.templates)
	return nil
}

func (a *Agent) setupStateManager() error {
	a.stateManager = state.NewManager(a.fastStore, a.durableStore, a.Config.TTL())
	return nil
}

func (a *Agent) setupProviders() error {
	a.providers = provider.NewInProcessSet()
	return nil
}

func (a *Agent) setupExecutionService() error {
	conditions := conditional.NewExecutor()
	loops := loop.NewExecutor(a.Config.LoopCap(), conditions)
	nodes := action.NewExecutor(a.durableStore, a.providers, conditions, loops)
	a.executor = flow.NewExecutor(a.metadataService, a.durableStore, a.stateManager, nodes).
		WithRunLease(a.Config.LauncherConfig.RunLease)
	a.launcher = flow.NewPoolLauncher(a.executor, a.Config.LauncherConfig.Partitions, a.Config.LauncherConfig.Capacity)
	a.executionService = flow.NewService(a.metadataService, a.durableStore, a.stateManager, a.executor, a.launcher)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.executionService)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) redisConfig() redis.Config {
	return redis.Config{
		Addrs:     a.Config.RedisConfig.Addrs,
		Namespace: a.Config.RedisConfig.Namespace,
	}
}

// connect pings a store with exponential backoff until it answers or the
// retries run out.
func connect(name string, retries int, p pinger) error {
	ctx, cancel := context.WithTimeout(context.Background(), CONNECT_TIMEOUT)
	defer cancel()
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	err := backoff.RetryNotify(func() error {
		return p.Ping(ctx)
	}, policy, func(err error, wait time.Duration) {
		logger.Warn("store not reachable, retrying", zap.String("store", name), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", name, err)
	}
	logger.Info("connected to store", zap.String("store", name))
	return nil
}

// Run starts the launcher and the HTTP server and blocks until ctx ends or
// the server fails.
func (a *Agent) Run(ctx context.Context) error {
	a.launcher.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})
	return g.Wait()
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		a.launcher.Stop,
		func() error {
			a.close()
			return nil
		},
		func() error {
			_ = logger.Sync()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logger.Error("error closing store", zap.Error(err))
		}
	}
	a.closers = nil
}
