package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one unit of scheduled work
type Job func(ctx context.Context) error

// Config holds scheduler settings
type Config struct {
	// Timeout bounds a single job run; zero means no limit
	Timeout time.Duration
	// Location is the time zone cron specs are evaluated in
	Location *time.Location
}

type registeredJob struct {
	name    string
	spec    string
	entryID cron.EntryID
	run     func(ctx context.Context) error
}

// CronScheduler runs named jobs on cron specs. A job still running when its
// next tick arrives is skipped, and a panicking job is recovered and logged.
type CronScheduler struct {
	cron    *cron.Cron
	config  Config
	logger  *zap.Logger
	mu      sync.Mutex
	jobs    map[string]*registeredJob
	baseCtx context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a scheduler
func New(config Config, logger *zap.Logger) *CronScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	cronLogger := zapCronLogger{logger: logger}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		config:  config,
		logger:  logger,
		jobs:    make(map[string]*registeredJob),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Register adds a job under a unique name with a standard 5-field cron spec
// or a descriptor such as "@hourly" or "@every 30m"
func (s *CronScheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	rj := &registeredJob{name: name, spec: spec}
	rj.run = func(ctx context.Context) error { return s.execute(ctx, name, job) }

	entryID, err := s.cron.AddFunc(spec, func() {
		_ = rj.run(s.baseCtx)
	})
	if err != nil {
		return fmt.Errorf("%w %q for job %s: %v", ErrInvalidSchedule, spec, name, err)
	}
	rj.entryID = entryID
	s.jobs[name] = rj

	s.logger.Info("Job registered", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// RunNow runs a registered job synchronously, outside its schedule
func (s *CronScheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return rj.run(ctx)
}

// NextRun returns when a job fires next; zero before Start
func (s *CronScheduler) NextRun(name string) (time.Time, error) {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.cron.Entry(rj.entryID).Next, nil
}

// Start begins firing jobs
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CronScheduler) execute(ctx context.Context, name string, job Job) error {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Debug("Job started", zap.String("job", name))
	err := job(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("Job completed", zap.String("job", name), zap.Duration("duration", elapsed))
	return nil
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	logger *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
