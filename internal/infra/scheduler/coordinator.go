package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"warranty_reminder/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobID names the periodic notification job in status output.
const JobID = "warranty_expiration_notifications"

// ErrAlreadyRunning is returned by TriggerNow while another pass holds the lock.
var ErrAlreadyRunning = errors.New("already running")

// Dispatcher runs one notification pass.
type Dispatcher interface {
	Run(ctx context.Context, mode app.PassMode) (*app.DispatchResult, error)
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	ID      string    `json:"id"`
	NextRun time.Time `json:"next_run"`
}

// Status is the coordinator snapshot exposed to administrators.
type Status struct {
	Initialized    bool           `json:"initialized"`
	Running        bool           `json:"running"`
	RetryAttempted bool           `json:"retry_attempted"`
	Jobs           []JobStatus    `json:"jobs"`
	Leader         LeaderDecision `json:"leader"`
	LastPassAt     *time.Time     `json:"last_pass_at,omitempty"`
	LastMessage    string         `json:"last_message,omitempty"`
}

// TriggerResult is the aggregate outcome of a manual pass. It never carries internal error detail.
type TriggerResult struct {
	Message    string `json:"message"`
	Errors     int    `json:"errors"`
	EmailsSent int    `json:"emails_sent"`
	PushSent   int    `json:"push_sent"`
}

// Coordinator owns the periodic timer of one process. It starts the timer only
// when the leader resolver elects this process, and serializes every pass
// (timer or manual) behind a single non-blocking lock.
type Coordinator struct {
	cronEngine *cron.Cron
	dispatcher Dispatcher
	resolver   LeaderResolver
	interval   time.Duration
	logger     *logrus.Entry

	baseCtx context.Context
	cancel  context.CancelFunc

	// passMu is held for the whole duration of a pass.
	passMu sync.Mutex

	promoteOnce sync.Once

	mu             sync.Mutex
	initialized    bool
	running        bool
	retryAttempted bool
	entryID        cron.EntryID
	decision       LeaderDecision
	lastPassAt     time.Time
	lastMessage    string
}

func NewCoordinator(dispatcher Dispatcher, resolver LeaderResolver, interval time.Duration, logger *logrus.Entry) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cron.PrintfLogger(logger)),
		),
		dispatcher: dispatcher,
		resolver:   resolver,
		interval:   interval,
		logger:     logger,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Start runs the leadership check once. A non-leader stays dormant until
// PromoteOnFirstRequest re-checks.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	c.initialized = true
	c.decision = c.resolver.Resolve()

	logCtx := c.logger.WithFields(logrus.Fields{"pid": c.decision.PID, "reason": c.decision.Reason})
	if !c.decision.IsLeader {
		logCtx.Info("Scheduler dormant: this process is not the leader")
		return nil
	}
	if err := c.startTimerLocked(); err != nil {
		return err
	}
	logCtx.WithField("interval", c.interval).Info("Scheduler started")
	return nil
}

// PromoteOnFirstRequest re-runs the leadership check for a dormant process.
// Only the first call does anything.
func (c *Coordinator) PromoteOnFirstRequest() {
	c.promoteOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if !c.initialized || c.running {
			return
		}
		c.retryAttempted = true
		c.decision = c.resolver.Resolve()
		if !c.decision.IsLeader {
			c.logger.WithField("reason", c.decision.Reason).Info("Scheduler promotion declined, staying dormant")
			return
		}
		if err := c.startTimerLocked(); err != nil {
			c.logger.WithError(err).Error("Scheduler promotion failed")
			return
		}
		c.logger.WithField("reason", c.decision.Reason).Info("Scheduler promoted on first request")
	})
}

func (c *Coordinator) startTimerLocked() error {
	id, err := c.cronEngine.AddFunc(fmt.Sprintf("@every %s", c.interval), c.tick)
	if err != nil {
		return fmt.Errorf("could not add %s job: %w", JobID, err)
	}
	c.entryID = id
	c.cronEngine.Start()
	c.running = true
	return nil
}

// Stop cancels in-flight work and waits for a running job to return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	running := c.running
	c.running = false
	c.mu.Unlock()

	c.cancel()
	if !running {
		return
	}
	c.logger.Info("Stopping scheduler...")
	ctx := c.cronEngine.Stop()
	<-ctx.Done()
	c.logger.Info("Scheduler gracefully stopped")
}

// Status snapshots the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		Initialized:    c.initialized,
		Running:        c.running,
		RetryAttempted: c.retryAttempted,
		Jobs:           []JobStatus{},
		Leader:         c.decision,
		LastMessage:    c.lastMessage,
	}
	if !c.lastPassAt.IsZero() {
		at := c.lastPassAt
		st.LastPassAt = &at
	}
	if c.running {
		if e := c.cronEngine.Entry(c.entryID); e.Valid() {
			st.Jobs = append(st.Jobs, JobStatus{ID: JobID, NextRun: e.Next})
		}
	}
	return st
}

// TriggerNow runs one manual pass synchronously. A concurrent caller gets
// ErrAlreadyRunning immediately instead of waiting.
func (c *Coordinator) TriggerNow(ctx context.Context) (TriggerResult, error) {
	if !c.passMu.TryLock() {
		c.logger.Info("Manual trigger rejected: a pass is already running")
		return TriggerResult{Message: "Notification pass already running"}, ErrAlreadyRunning
	}
	defer c.passMu.Unlock()

	res, err := c.runPass(ctx, app.PassManual)
	if res == nil {
		return TriggerResult{Message: "Notification pass failed", Errors: 1}, nil
	}
	if err != nil && !res.Aborted {
		return TriggerResult{Message: "Notification pass failed", Errors: res.Errors() + 1}, nil
	}
	return TriggerResult{
		Message:    res.Message(),
		Errors:     res.Errors(),
		EmailsSent: res.EmailsSent,
		PushSent:   res.PushSent,
	}, nil
}

func (c *Coordinator) tick() {
	if !c.passMu.TryLock() {
		c.logger.Info("Skipping scheduled pass: previous pass still running")
		return
	}
	defer c.passMu.Unlock()

	if c.baseCtx.Err() != nil {
		return
	}
	c.runPass(c.baseCtx, app.PassScheduled)
}

// runPass is the pass boundary: nothing escapes it, panics included.
func (c *Coordinator) runPass(ctx context.Context, mode app.PassMode) (res *app.DispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"mode":  mode,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Notification pass panicked")
			res, err = nil, fmt.Errorf("notification pass panicked: %v", r)
		}
		c.record(res)
	}()

	res, err = c.dispatcher.Run(ctx, mode)
	if err != nil {
		c.logger.WithError(err).WithField("mode", mode).Error("Notification pass failed")
	} else if res != nil {
		c.logger.WithFields(logrus.Fields{
			"pass_id":     res.PassID,
			"mode":        mode,
			"emails_sent": res.EmailsSent,
			"push_sent":   res.PushSent,
			"errors":      res.Errors(),
		}).Info("Notification pass finished")
	}
	return res, err
}

func (c *Coordinator) record(res *app.DispatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPassAt = time.Now().UTC()
	if res == nil {
		c.lastMessage = "Notification pass failed"
		return
	}
	c.lastMessage = res.Message()
}
