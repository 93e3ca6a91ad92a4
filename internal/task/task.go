// Package task implements the coordinator's bounded-parallelism scheduler
// (spec §4.6): a semaphore-gated pool of worker goroutines, task IDs, a
// reentrant submission form that lets a worker keep making progress
// without deadlocking against a saturated pool, and a "same thread"
// tail-call form used to avoid oversubscription on the last subtask of a
// fan-out.
//
// Concurrency is bounded the same way the teacher's executor bounds
// concurrent compilation: a goroutine is spawned immediately for each
// task, and that goroutine blocks acquiring a semaphore.Weighted permit
// before doing any real work. A task that is about to block waiting on
// its own subtasks releases its permit first and reacquires it
// afterward, so waiting never reduces available concurrency.
package task

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ID uniquely identifies a submitted task.
type ID uuid.UUID

// Func is a unit of work. It returns whether it succeeded; the final
// value is the task's outcome (spec's mutable TaskContext.successful).
type Func func(ctx context.Context) bool

// NoWorker is the sentinel WorkerID returns when ctx was not produced by
// a task running on a Manager's worker.
const NoWorker = -1

type workerIDKey struct{}
type holdsPermitKey struct{}

// WorkerID returns the identity of the worker goroutine ctx is executing
// on, or (NoWorker, false) if ctx does not carry one.
func WorkerID(ctx context.Context) (int, bool) {
	v := ctx.Value(workerIDKey{})
	if v == nil {
		return NoWorker, false
	}
	return v.(int), true
}

// HoldsPermit reports whether the goroutine running ctx currently holds a
// semaphore permit it acquired itself (as opposed to running inline via
// AddTaskSameThread/a saturated RunTask, which borrows the caller's
// permit instead of acquiring a new one). Code that is about to block for
// a while should check this and, if true, call ReleasePermit before
// blocking and ReacquirePermit after, so waiting never reduces the pool's
// available concurrency.
func HoldsPermit(ctx context.Context) bool {
	v, _ := ctx.Value(holdsPermitKey{}).(bool)
	return v
}

type result struct {
	done       chan struct{}
	successful bool
}

func (r *result) finish(ok bool) {
	r.successful = ok
	close(r.done)
}

// Manager runs Funcs across at most N concurrently-executing goroutines.
type Manager struct {
	log *zap.Logger
	sem *semaphore.Weighted

	workerSeq int64 // atomic

	mu      sync.Mutex
	results map[ID]*result
}

// New creates a Manager bounding concurrency to workers (clamped to at
// least 1). Per spec §5, the caller's own goroutine additionally
// participates as a worker: it is only ever "on a worker" while running
// inside a Func, so the caller of Manager's top-level entry point should
// itself run as the first task if it wants to participate in the pool
// rather than sit idle.
func New(log *zap.Logger, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		log:     log,
		sem:     semaphore.NewWeighted(int64(workers)),
		results: make(map[ID]*result),
	}
}

func (m *Manager) register(id ID) *result {
	r := &result{done: make(chan struct{})}
	m.mu.Lock()
	m.results[id] = r
	m.mu.Unlock()
	return r
}

func (m *Manager) nextWorkerID() int {
	return int(atomic.AddInt64(&m.workerSeq, 1))
}

// AddTask enqueues f to run on a worker goroutine as soon as a permit is
// available. It never runs on the calling goroutine. Returns a task ID
// usable with WaitForTasks/AllSuccessful.
func (m *Manager) AddTask(f Func) ID {
	id := ID(uuid.New())
	r := m.register(id)
	go func() {
		if err := m.sem.Acquire(context.Background(), 1); err != nil {
			r.finish(false)
			return
		}
		defer m.sem.Release(1)
		ctx := context.WithValue(context.Background(), workerIDKey{}, m.nextWorkerID())
		ctx = context.WithValue(ctx, holdsPermitKey{}, true)
		r.finish(f(ctx))
	}()
	return id
}

// RunTask behaves like AddTask, except that if the calling goroutine is
// itself a worker (ctx carries a worker ID) and no permit is immediately
// available, f runs inline on the calling goroutine instead of queuing
// behind a blocking Acquire. This is the reentrant-submission contract
// (spec §4.6, §9 "Reentrant scheduling"): it lets a worker that submits
// further work make progress instead of deadlocking against a saturated
// pool.
func (m *Manager) RunTask(ctx context.Context, f Func) ID {
	if _, onWorker := WorkerID(ctx); onWorker {
		if m.sem.TryAcquire(1) {
			return m.spawnWithPermitHeld(ctx, f)
		}
		return m.runInline(ctx, f)
	}
	return m.AddTask(f)
}

func (m *Manager) spawnWithPermitHeld(ctx context.Context, f Func) ID {
	id := ID(uuid.New())
	r := m.register(id)
	go func() {
		defer m.sem.Release(1)
		workerCtx := context.WithValue(context.Background(), workerIDKey{}, m.nextWorkerID())
		workerCtx = context.WithValue(workerCtx, holdsPermitKey{}, true)
		r.finish(f(workerCtx))
	}()
	_ = ctx
	return id
}

// AddTaskSameThread forces f to run inline on the calling goroutine,
// without acquiring a new permit. This is the "same_thread" tail-call
// form used to schedule the last subtask of a fan-out: the waiting
// worker reuses its own already-held permit instead of spawning a
// goroutine that would have to wait for one (spec §4.6, §4.8 step 3).
func (m *Manager) AddTaskSameThread(ctx context.Context, f Func) ID {
	return m.runInline(ctx, f)
}

func (m *Manager) runInline(ctx context.Context, f Func) ID {
	id := ID(uuid.New())
	r := m.register(id)
	// f borrows the caller's permit rather than acquiring its own, so it
	// must not see HoldsPermit as true.
	r.finish(f(context.WithValue(ctx, holdsPermitKey{}, false)))
	return id
}

// ReleasePermit releases the calling worker's permit. A task that is
// about to block for a while (e.g. in WaitForTasks) should call this
// first and ReacquirePermit afterward, so waiting never reduces the
// pool's available concurrency (mirrors the teacher's release-before-
// wait/reacquire-after pattern around dependency resolution).
func (m *Manager) ReleasePermit() {
	m.sem.Release(1)
}

// ReacquirePermit blocks until a permit is available, undoing a prior
// ReleasePermit.
func (m *Manager) ReacquirePermit(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// WaitForTasks blocks until every task in ids has finished.
func (m *Manager) WaitForTasks(ids ...ID) {
	for _, id := range ids {
		m.mu.Lock()
		r, ok := m.results[id]
		m.mu.Unlock()
		if !ok {
			continue
		}
		<-r.done
	}
}

// WaitForAllTasks blocks until every task submitted so far has finished.
func (m *Manager) WaitForAllTasks() {
	m.mu.Lock()
	ids := make([]ID, 0, len(m.results))
	for id := range m.results {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	m.WaitForTasks(ids...)
}

// AllSuccessful reports whether every task in ids finished successfully.
// Must only be called after those tasks are known to be done (e.g. after
// WaitForTasks).
func (m *Manager) AllSuccessful(ids ...ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		r, ok := m.results[id]
		if !ok || !r.successful {
			return false
		}
	}
	return true
}
