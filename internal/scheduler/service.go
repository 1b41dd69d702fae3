// Package scheduler registers stored report schedules against a cron runtime
// and executes them synchronously through a small worker pool. Each firing
// resolves its date window fresh, runs the extraction to completion, and then
// attempts delivery; a failed extraction aborts the firing but never the
// trigger, so the next occurrence still fires.
package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reportd/internal/jobs"
	"reportd/internal/schedule"
	logx "reportd/pkg/logx"
)

type Config struct {
	Enabled   bool
	Workers   int    // worker pool size, default 2
	QueueSize int    // pending firing buffer, default 64
	Timezone  string // IANA name; empty means local time
}

// Store is the slice of the schedule store the service reads on rebuild.
type Store interface {
	ListEnabled(ctx context.Context) ([]schedule.Schedule, error)
}

// Runner executes one extraction to completion. Unlike the job controller's
// launcher, the scheduler waits: delivery only makes sense after the file
// exists.
type Runner interface {
	Run(ctx context.Context, spec jobs.TaskSpec) error
}

// Sender delivers a finished report file to a recipient.
type Sender interface {
	SendReport(ctx context.Context, to, subject, body, path, filename string) error
}

type task struct {
	sched schedule.Schedule
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store    Store
	runner   Runner
	sender   Sender
	spoolDir string

	loc       *time.Location
	c         *cron.Cron
	entries   []cron.EntryID
	queue     chan task
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	tmu    sync.Mutex
	timers map[string]*time.Timer
	ver    uint64 // bumped on rebuild and stop; stale one-time timers check it

	now func() time.Time
}

func New(cfg Config, store Store, runner Runner, sender Sender, spoolDir string, log logx.Logger) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		store:    store,
		runner:   runner,
		sender:   sender,
		spoolDir: spoolDir,
		timers:   map[string]*time.Timer{},
		now:      time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	loc := s.loadLocationLocked()
	s.loc = loc
	s.stopCh = make(chan struct{})
	// Detached from the caller: firings must survive the Start caller's scope.
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := s.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	// Fresh queue per run so firings enqueued before a stop never execute
	// after a restart.
	s.queue = make(chan task, queueSize)
	s.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))

	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()

	if err := s.rebuildLocked(ctx); err != nil {
		return err
	}
	s.log.Info("scheduler started",
		logx.Int("workers", workers), logx.String("tz", loc.String()),
		logx.Int("schedules", len(s.entries)+s.timerCount()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	s.stopCh = nil
	s.runCancel = nil
	s.runCtx = nil
	s.c = nil
	s.entries = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	s.tmu.Lock()
	s.ver++
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// workers drain in background
	}
}

// Apply takes a new config. An enable/disable flip starts or stops the
// service; a timezone change restarts it so the cron runtime picks up the
// new location. Both happen off the caller's goroutine because the config
// watcher must not block on a drain.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	running := s.stopCh != nil
	s.mu.Unlock()

	newTZ := strings.TrimSpace(cfg.Timezone)
	switch {
	case running && !cfg.Enabled:
		go s.Stop(context.Background())
	case !running && cfg.Enabled:
		go s.startBackground()
	case running && oldTZ != newTZ:
		go func() {
			ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancelFn()
			s.Stop(ctx)
			s.startBackground()
		}()
	}
}

func (s *Service) startBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		s.log.Error("scheduler restart failed", logx.Err(err))
	}
}

// Reload rebuilds the trigger table from the store. Called after every
// schedule mutation; a no-op while the service is stopped.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	return s.rebuildLocked(ctx)
}

// rebuildLocked replaces every registered trigger with the store's current
// enabled set. Full replacement keeps the runtime and the database trivially
// consistent; the schedule count is small.
func (s *Service) rebuildLocked(ctx context.Context) error {
	scheds, err := s.store.ListEnabled(ctx)
	if err != nil {
		return err
	}

	for _, id := range s.entries {
		s.c.Remove(id)
	}
	s.entries = s.entries[:0]

	s.tmu.Lock()
	s.ver++
	ver := s.ver
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = map[string]*time.Timer{}
	s.tmu.Unlock()

	for _, sc := range scheds {
		tr, err := BuildTrigger(sc.ScheduleType, sc.ScheduleValue, sc.RunTime, s.loc)
		if err != nil {
			s.log.Warn("skipping schedule with bad trigger",
				logx.String("schedule_id", sc.ID), logx.Err(err))
			continue
		}
		if tr.Spec != "" {
			s.addCronLocked(sc, tr.Spec)
		} else {
			s.addOnceTimer(sc, tr.At, ver)
		}
	}
	return nil
}

func (s *Service) addCronLocked(sc schedule.Schedule, spec string) {
	sched := sc
	id, err := s.c.AddFunc(spec, func() { s.enqueue(task{sched: sched}) })
	if err != nil {
		s.log.Warn("cron registration failed",
			logx.String("schedule_id", sc.ID), logx.String("spec", spec), logx.Err(err))
		return
	}
	s.entries = append(s.entries, id)
}

func (s *Service) addOnceTimer(sc schedule.Schedule, at time.Time, ver uint64) {
	d := time.Until(at)
	if d <= 0 {
		s.log.Debug("one-time schedule already past",
			logx.String("schedule_id", sc.ID), logx.Time("at", at))
		return
	}
	sched := sc
	s.tmu.Lock()
	s.timers[sc.ID] = time.AfterFunc(d, func() {
		s.tmu.Lock()
		stale := s.ver != ver
		delete(s.timers, sched.ID)
		s.tmu.Unlock()
		if stale {
			return
		}
		s.enqueue(task{sched: sched})
	})
	s.tmu.Unlock()
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping firing",
			logx.String("schedule_id", t.sched.ID))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping firing",
			logx.String("schedule_id", t.sched.ID),
			logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.fire(ctx, t.sched)
		}
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) timerCount() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.timers)
}
