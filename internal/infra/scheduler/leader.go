package scheduler

import (
	"os"
	"strconv"
	"strings"
)

// LeaderDecision explains whether this process owns the periodic scheduler.
type LeaderDecision struct {
	IsLeader bool   `json:"is_leader"`
	Reason   string `json:"reason"`
	PID      int    `json:"pid"`
}

// LeaderResolver decides scheduler ownership. The environment resolver is a
// single-host heuristic; a lock-service election can replace it behind this interface.
type LeaderResolver interface {
	Resolve() LeaderDecision
}

// EnvLeaderResolver reads worker identity hints from the process environment.
//
// Precedence: SCHEDULER_FORCE_LEADER, then WORKER_ID == 0, then the absence of
// multi-worker hints (WORKER_CLASS, WEB_CONCURRENCY > 1) which means a single process.
type EnvLeaderResolver struct {
	lookup func(string) (string, bool)
	pid    func() int
}

func NewEnvLeaderResolver() *EnvLeaderResolver {
	return &EnvLeaderResolver{lookup: os.LookupEnv, pid: os.Getpid}
}

func (r *EnvLeaderResolver) Resolve() LeaderDecision {
	d := LeaderDecision{PID: r.pid()}

	if v, ok := r.env("SCHEDULER_FORCE_LEADER"); ok {
		if force, err := strconv.ParseBool(v); err == nil {
			d.IsLeader = force
			d.Reason = "override SCHEDULER_FORCE_LEADER=" + strconv.FormatBool(force)
			return d
		}
	}

	if v, ok := r.env("WORKER_ID"); ok {
		if id, err := strconv.Atoi(v); err == nil {
			d.IsLeader = id == 0
			d.Reason = "worker ordinal " + strconv.Itoa(id)
			return d
		}
	}

	if class, ok := r.env("WORKER_CLASS"); ok {
		d.Reason = "worker class " + class + " without ordinal"
		return d
	}
	if v, ok := r.env("WEB_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			d.Reason = "web concurrency " + strconv.Itoa(n) + " without ordinal"
			return d
		}
	}

	d.IsLeader = true
	d.Reason = "no multi-worker hints, assuming single process"
	return d
}

func (r *EnvLeaderResolver) env(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
