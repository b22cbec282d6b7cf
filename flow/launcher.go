package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/spaolacci/murmur3"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/logger"
	"github.com/yanffernandes/xtyl-creativity-machine-sub000/util"
	"go.uber.org/zap"
)

var ErrLauncherFull = errors.New("launcher queue is full")

type Runner interface {
	Run(ctx context.Context, executionId string, emit Emitter) error
}

// Launcher starts runs out of band from the request that created them.
type Launcher interface {
	Launch(executionId string) error
	Start()
	Stop() error
}

var _ Launcher = new(PoolLauncher)
var _ Launcher = new(DirectLauncher)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type partition string

func (p partition) String() string {
	return string(p)
}

const RING_PARTITION_COUNT = 271

// PoolLauncher runs executions on a fixed set of workers. Each execution id
// hashes to one worker, so a relaunched execution queues behind its own
// previous run instead of racing it.
type PoolLauncher struct {
	runner  Runner
	ring    *consistent.Consistent
	workers map[string]*util.Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewPoolLauncher(runner Runner, partitions int, capacity int) *PoolLauncher {
	if partitions <= 0 {
		partitions = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &PoolLauncher{
		runner:  runner,
		workers: make(map[string]*util.Worker, partitions),
		ctx:     ctx,
		cancel:  cancel,
	}
	members := make([]consistent.Member, 0, partitions)
	for i := 0; i < partitions; i++ {
		name := fmt.Sprintf("launcher-%d", i)
		members = append(members, partition(name))
		l.workers[name] = util.NewWorker(name, &l.wg, l.handle, capacity)
	}
	l.ring = consistent.New(members, consistent.Config{
		PartitionCount:    RING_PARTITION_COUNT,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	})
	return l
}

func (l *PoolLauncher) handle(task util.Task) error {
	executionId, ok := task.(string)
	if !ok {
		return fmt.Errorf("unexpected task %T", task)
	}
	err := l.runner.Run(l.ctx, executionId, nil)
	if errors.Is(err, ErrHalted) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Worker returns the name of the worker an execution is pinned to.
func (l *PoolLauncher) Worker(executionId string) string {
	return l.ring.LocateKey([]byte(executionId)).String()
}

func (l *PoolLauncher) Launch(executionId string) error {
	w := l.workers[l.Worker(executionId)]
	select {
	case w.Sender() <- executionId:
		logger.Debug("execution queued", zap.String("executionId", executionId), zap.String("worker", w.Name()))
		return nil
	default:
		return ErrLauncherFull
	}
}

func (l *PoolLauncher) Start() {
	for _, w := range l.workers {
		w.Start()
	}
}

// Stop cancels in-flight runs and waits for the workers to exit. A run
// finishes the node in flight and pauses its execution at the next node
// boundary, so it can be resumed.
func (l *PoolLauncher) Stop() error {
	logger.Info("stopping launcher")
	l.cancel()
	for _, w := range l.workers {
		w.Stop()
	}
	l.wg.Wait()
	return nil
}

// DirectLauncher starts one goroutine per launch.
type DirectLauncher struct {
	runner Runner
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDirectLauncher(runner Runner) *DirectLauncher {
	ctx, cancel := context.WithCancel(context.Background())
	return &DirectLauncher{runner: runner, ctx: ctx, cancel: cancel}
}

func (l *DirectLauncher) Launch(executionId string) error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := l.runner.Run(l.ctx, executionId, nil)
		if err != nil && !errors.Is(err, ErrHalted) && !errors.Is(err, context.Canceled) {
			logger.Error("run failed", zap.String("executionId", executionId), zap.Error(err))
		}
	}()
	return nil
}

func (l *DirectLauncher) Start() {}

func (l *DirectLauncher) Stop() error {
	l.cancel()
	l.wg.Wait()
	return nil
}

// Wait blocks until every launched run has returned.
func (l *DirectLauncher) Wait() {
	l.wg.Wait()
}
