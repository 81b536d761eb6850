// internal/app/dispatch_service.go
package app

import (
	"context"
	"fmt"
	"time"

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/settings"
	"warranty_reminder/internal/domain/warranty"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mailer delivers one email. Implementations enforce their own I/O timeouts.
type Mailer interface {
	Available() bool
	Send(ctx context.Context, msg EmailMessage) error
}

// PushTransport fans one notification out to every registered destination.
type PushTransport interface {
	Available() bool
	Send(ctx context.Context, title, body string) error
}

// PushDialer builds a push transport from the destination URLs configured right now.
type PushDialer func(urls []string) PushTransport

// PassMode tells a dispatch pass whether timing predicates apply.
type PassMode string

const (
	PassScheduled PassMode = "scheduled"
	PassManual    PassMode = "manual"
)

// DispatchResult is the aggregate outcome of one pass. It carries counts only.
type DispatchResult struct {
	PassID          string
	Mode            PassMode
	StartedAt       time.Time
	UsersEvaluated  int
	EmailEligible   int
	PushEligible    int
	EmailsSent      int
	EmailErrors     int
	PushSent        int
	PushErrors      int
	PushUnavailable bool
	Aborted         bool
}

// Errors is the number of failed deliveries, plus one if the pass aborted.
func (r *DispatchResult) Errors() int {
	n := r.EmailErrors + r.PushErrors
	if r.Aborted {
		n++
	}
	return n
}

// Message renders the result for the administrative surface.
func (r *DispatchResult) Message() string {
	if r.Aborted {
		return "Notification pass aborted: storage unavailable"
	}
	return fmt.Sprintf("Notification pass complete: %d email(s) and %d push message(s) sent, %d user(s) evaluated",
		r.EmailsSent, r.PushSent, r.UsersEvaluated)
}

// pushTarget is a push-eligible user with the horizon that applies to push items.
type pushTarget struct {
	pref    ResolvedPreference
	horizon int
}

// DispatchService runs dispatch passes: resolve preferences, evaluate eligibility,
// query expiring warranties once per horizon, compose and deliver.
type DispatchService struct {
	prefRepo     preference.Repository
	warrantyRepo warranty.Repository
	settingsRepo settings.Repository
	resolver     *PreferenceResolver
	evaluator    *Evaluator
	composer     *Composer
	mailer       Mailer
	dialPush     PushDialer
	logger       *logrus.Entry
	now          func() time.Time
}

func NewDispatchService(
	prefRepo preference.Repository,
	warrantyRepo warranty.Repository,
	settingsRepo settings.Repository,
	resolver *PreferenceResolver,
	evaluator *Evaluator,
	composer *Composer,
	mailer Mailer,
	dialPush PushDialer,
	logger *logrus.Entry,
) *DispatchService {
	return &DispatchService{
		prefRepo:     prefRepo,
		warrantyRepo: warrantyRepo,
		settingsRepo: settingsRepo,
		resolver:     resolver,
		evaluator:    evaluator,
		composer:     composer,
		mailer:       mailer,
		dialPush:     dialPush,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes one dispatch pass. Storage failures abort the pass before any dedup
// entry is committed; delivery failures are counted and never abort the batch.
func (s *DispatchService) Run(ctx context.Context, mode PassMode) (*DispatchResult, error) {
	now := s.now().UTC()
	res := &DispatchResult{PassID: uuid.NewString(), Mode: mode, StartedAt: now}
	logCtx := s.logger.WithFields(logrus.Fields{"pass_id": res.PassID, "mode": mode})
	logCtx.Debug("Starting notification pass")

	if pruned := s.evaluator.Prune(now); pruned > 0 {
		logCtx.WithField("pruned", pruned).Debug("Pruned expired dedup entries")
	}

	pushCfg, err := s.settingsRepo.GetPushSettings(ctx)
	if err != nil {
		return s.abort(logCtx, res, "load push settings", err)
	}
	rows, err := s.prefRepo.ListActiveUsersWithPreferences(ctx)
	if err != nil {
		return s.abort(logCtx, res, "list active users", err)
	}
	res.UsersEvaluated = len(rows)

	emailReady := s.mailer != nil && s.mailer.Available()
	if !emailReady {
		logCtx.Debug("Email transport not configured, skipping email channel")
	}
	pushHorizon := pushCfg.MaxHorizon()
	adminID := designatedAdmin(rows)
	// Push slots are only reserved when something can deliver them.
	var transport PushTransport
	if pushCfg.Enabled {
		if s.dialPush != nil {
			transport = s.dialPush(pushCfg.URLs)
		}
		if transport == nil || !transport.Available() {
			res.PushUnavailable = true
			transport = nil
			logCtx.Warn("Push transport unavailable: no valid destination URLs configured")
		}
	}

	var (
		reservations []Reservation
		emailTargets []ResolvedPreference
		pushTargets  []pushTarget
		horizons     = make(map[int]struct{})
	)
	for _, row := range rows {
		rp := s.resolver.Resolve(row.User, row.Preference)

		if emailReady {
			if r, ok := s.check(mode, now, rp.User.ID, rp.Email); ok {
				reservations = append(reservations, r)
				emailTargets = append(emailTargets, rp)
				horizons[rp.HorizonDays] = struct{}{}
			}
		}

		if transport != nil && (pushCfg.Scope != settings.ScopeAdmin || rp.User.ID == adminID) {
			if r, ok := s.check(mode, now, rp.User.ID, rp.Push); ok {
				h := rp.HorizonDays
				if pushHorizon > 0 && pushHorizon < h {
					h = pushHorizon
				}
				reservations = append(reservations, r)
				pushTargets = append(pushTargets, pushTarget{pref: rp, horizon: h})
				horizons[h] = struct{}{}
			}
		}
	}
	res.EmailEligible = len(emailTargets)
	res.PushEligible = len(pushTargets)

	if len(reservations) == 0 {
		logCtx.WithField("users", res.UsersEvaluated).Debug("No user is due for a reminder")
		return res, nil
	}

	// One query per distinct horizon, not per user.
	today := warranty.DateOnly(now)
	byHorizon := make(map[int][]warranty.ExpiringRecord, len(horizons))
	for h := range horizons {
		recs, err := s.warrantyRepo.ListExpiring(ctx, today, h)
		if err != nil {
			return s.abort(logCtx, res, fmt.Sprintf("list warranties expiring within %d days", h), err)
		}
		byHorizon[h] = recs
	}

	s.evaluator.Commit(reservations)

	for _, rp := range emailTargets {
		s.sendEmail(ctx, logCtx, res, rp, relevant(byHorizon[rp.HorizonDays], rp.User.ID, today, rp.HorizonDays))
	}
	if len(pushTargets) > 0 {
		s.sendPush(ctx, logCtx, res, transport, pushCfg, pushTargets, byHorizon, today)
	}

	logCtx.WithFields(logrus.Fields{
		"users":          res.UsersEvaluated,
		"email_eligible": res.EmailEligible,
		"emails_sent":    res.EmailsSent,
		"email_errors":   res.EmailErrors,
		"push_eligible":  res.PushEligible,
		"push_sent":      res.PushSent,
		"push_errors":    res.PushErrors,
	}).Info("Notification pass finished")
	return res, nil
}

// designatedAdmin is the administrative push recipient: the active admin with the
// lowest id, or 0 when there is none.
func designatedAdmin(rows []preference.UserPreference) int64 {
	var id int64
	for _, row := range rows {
		if row.User.IsAdmin && (id == 0 || row.User.ID < id) {
			id = row.User.ID
		}
	}
	return id
}

func (s *DispatchService) check(mode PassMode, now time.Time, userID int64, sched ChannelSchedule) (Reservation, bool) {
	if mode == PassManual {
		return s.evaluator.CheckManual(now, userID, sched)
	}
	return s.evaluator.Check(now, userID, sched)
}

func (s *DispatchService) abort(logCtx *logrus.Entry, res *DispatchResult, op string, err error) (*DispatchResult, error) {
	res.Aborted = true
	logCtx.WithError(err).Errorf("Notification pass aborted: %s", op)
	return res, fmt.Errorf("%w: %s: %v", ErrTransientStorage, op, err)
}

func (s *DispatchService) sendEmail(ctx context.Context, logCtx *logrus.Entry, res *DispatchResult, rp ResolvedPreference, recs []warranty.ExpiringRecord) {
	logCtx = logCtx.WithFields(logrus.Fields{"user_id": rp.User.ID, "channel": preference.ChannelEmail})
	if len(recs) == 0 {
		logCtx.Debug("No expiring warranties, nothing to email")
		return
	}
	groups := GroupByOwner(recs)
	msg, err := s.composer.Email(groups[0], rp.HorizonDays)
	if err != nil {
		res.EmailErrors++
		logCtx.WithError(err).Error("Failed to render reminder email")
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		res.EmailErrors++
		logCtx.WithError(fmt.Errorf("%w: %v", ErrTransport, err)).Error("Failed to send reminder email")
		return
	}
	res.EmailsSent++
	logCtx.WithField("items", len(recs)).Info("Reminder email sent")
}

func (s *DispatchService) sendPush(
	ctx context.Context,
	logCtx *logrus.Entry,
	res *DispatchResult,
	transport PushTransport,
	cfg *settings.PushSettings,
	targets []pushTarget,
	byHorizon map[int][]warranty.ExpiringRecord,
	today time.Time,
) {
	logCtx = logCtx.WithFields(logrus.Fields{"channel": preference.ChannelPush, "push_mode": cfg.Mode})

	deliver := func(msg PushMessage, userField interface{}) {
		entry := logCtx.WithField("user_id", userField)
		if err := transport.Send(ctx, msg.Title, msg.Body); err != nil {
			res.PushErrors++
			entry.WithError(fmt.Errorf("%w: %v", ErrTransport, err)).Error("Failed to deliver push reminder")
			return
		}
		res.PushSent++
		entry.WithField("urgency", msg.Urgency).Info("Push reminder sent")
	}

	if cfg.Mode == settings.ModeGlobal {
		var union []warranty.ExpiringRecord
		minHorizon := 0
		for _, t := range targets {
			recs := relevant(byHorizon[t.horizon], t.pref.User.ID, today, t.horizon)
			if len(recs) == 0 {
				continue
			}
			union = append(union, recs...)
			if minHorizon == 0 || t.horizon < minHorizon {
				minHorizon = t.horizon
			}
		}
		if len(union) == 0 {
			logCtx.Debug("No expiring warranties for push-eligible users")
			return
		}
		msg := s.composer.Push(cfg.TitlePrefix, GroupByOwner(union), minHorizon)
		deliver(msg, msg.UserIDs)
		return
	}

	for _, t := range targets {
		recs := relevant(byHorizon[t.horizon], t.pref.User.ID, today, t.horizon)
		if len(recs) == 0 {
			continue
		}
		deliver(s.composer.Push(cfg.TitlePrefix, GroupByOwner(recs), t.horizon), t.pref.User.ID)
	}
}

