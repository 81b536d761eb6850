package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/settings"
	"warranty_reminder/internal/domain/user"
	"warranty_reminder/internal/domain/warranty"
	idb "warranty_reminder/internal/infra/database"
)

type harness struct {
	prefs    *fakePrefRepo
	warr     *fakeWarrantyRepo
	settings *fakeSettingsRepo
	mailer   *fakeMailer
	push     *fakePush
	ledger   *Ledger
	svc      *DispatchService
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		prefs:    &fakePrefRepo{},
		warr:     &fakeWarrantyRepo{},
		settings: &fakeSettingsRepo{push: settings.DefaultPush()},
		mailer:   &fakeMailer{available: true},
		push:     &fakePush{},
		ledger:   NewLedger(),
	}
	h.svc = NewDispatchService(
		h.prefs,
		h.warr,
		h.settings,
		NewPreferenceResolver(quietLogger()),
		NewEvaluator(h.ledger, 2, 2*time.Minute),
		NewComposer("https://warranty.example.com"),
		h.mailer,
		h.push.dial,
		quietLogger(),
	)
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) run(t *testing.T, mode PassMode) *DispatchResult {
	t.Helper()
	res, err := h.svc.Run(context.Background(), mode)
	if err != nil {
		t.Fatalf("Run(%s): %v", mode, err)
	}
	return res
}

func member(id int64, admin bool, p *preference.Preference) preference.UserPreference {
	return preference.UserPreference{
		User:       user.User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), IsActive: true, IsAdmin: admin},
		Preference: p,
	}
}

func nyPreference(id int64, sel preference.Selector) *preference.Preference {
	p := preference.Default(id)
	p.Channels = sel
	p.EmailTimezone = "America/New_York"
	p.PushTimezone = "America/New_York"
	return &p
}

// User A in New York at local 09:01 gets one email; ten minutes later nothing;
// push enabled without destinations sends nothing and reports no errors.
func TestDispatchNewYorkScenario(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nyPreference(1, preference.SelectBoth))}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(1, "Ann", "Car battery", "2026-05-30"), // beyond 30 days
		rec(2, "Bob", "Drill", "2026-03-05"),       // someone else's
	}
	h.settings.push.Enabled = true
	h.settings.push.URLs = nil

	h.now = utc("2026-03-02 14:01") // 09:01 EST
	res := h.run(t, PassScheduled)

	if res.EmailEligible != 1 || res.EmailsSent != 1 || res.EmailErrors != 0 {
		t.Fatalf("email counts = %+v", res)
	}
	if len(h.mailer.sent) != 1 {
		t.Fatalf("sent %d emails", len(h.mailer.sent))
	}
	body := h.mailer.sent[0].Text
	if !strings.Contains(body, "Laptop") || strings.Contains(body, "Car battery") || strings.Contains(body, "Drill") {
		t.Errorf("email lists the wrong items:\n%s", body)
	}
	if res.PushEligible != 0 || !res.PushUnavailable || res.PushSent != 0 || res.PushErrors != 0 {
		t.Errorf("push counts = %+v", res)
	}
	if h.ledger.Len() != 1 {
		t.Errorf("ledger holds %d entries, want only the email slot", h.ledger.Len())
	}
	if res.Errors() != 0 {
		t.Errorf("Errors() = %d, want 0", res.Errors())
	}

	h.now = utc("2026-03-02 14:11")
	res = h.run(t, PassScheduled)
	if res.EmailsSent != 0 || len(h.mailer.sent) != 1 {
		t.Errorf("second tick re-sent: %+v", res)
	}
}

func TestDispatchDedupWithinWindow(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nil)} // defaults: email, 09:00 UTC
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}

	h.now = utc("2026-03-02 09:00")
	h.run(t, PassScheduled)
	h.now = utc("2026-03-02 09:01")
	res := h.run(t, PassScheduled)

	if res.EmailEligible != 0 || len(h.mailer.sent) != 1 {
		t.Errorf("duplicate within window: eligible %d, sent %d", res.EmailEligible, len(h.mailer.sent))
	}
}

func TestDispatchQueriesOncePerHorizon(t *testing.T) {
	h := newHarness(t)
	short := preference.Default(3)
	short.HorizonDays = 7
	h.prefs.rows = []preference.UserPreference{
		member(1, false, nil),
		member(2, false, nil),
		member(3, false, &short),
	}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(2, "Bob", "Drill", "2026-03-20"),
		rec(3, "Cid", "Kettle", "2026-03-05"),
		rec(3, "Cid", "Boiler", "2026-03-25"), // outside Cid's 7 days
	}
	h.now = utc("2026-03-02 09:00")
	res := h.run(t, PassScheduled)

	if len(h.warr.horizons) != 2 {
		t.Errorf("queried horizons %v, want two distinct", h.warr.horizons)
	}
	if res.EmailsSent != 3 {
		t.Fatalf("EmailsSent = %d", res.EmailsSent)
	}
	for _, m := range h.mailer.sent {
		if m.UserID == 3 && strings.Contains(m.Text, "Boiler") {
			t.Error("item outside the user's horizon was emailed")
		}
	}
}

func TestDispatchSkipsUsersWithoutItems(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nil)}
	h.now = utc("2026-03-02 09:00")

	res := h.run(t, PassScheduled)
	if res.EmailEligible != 1 || res.EmailsSent != 0 || res.Errors() != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchEmailFailureDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nil), member(2, false, nil)}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(2, "Bob", "Drill", "2026-03-12"),
	}
	h.mailer.failFor = map[int64]bool{1: true}
	h.now = utc("2026-03-02 09:00")

	res := h.run(t, PassScheduled)
	if res.EmailsSent != 1 || res.EmailErrors != 1 || res.Errors() != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchMailerUnavailable(t *testing.T) {
	h := newHarness(t)
	h.mailer.available = false
	h.prefs.rows = []preference.UserPreference{member(1, false, nil)}
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}
	h.now = utc("2026-03-02 09:00")

	res := h.run(t, PassScheduled)
	if res.EmailEligible != 0 || res.Errors() != 0 || len(h.warr.horizons) != 0 {
		t.Errorf("result = %+v, queries %v", res, h.warr.horizons)
	}
}

func TestDispatchAbortsOnStorageFailureWithoutCommit(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nil)}
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}
	h.warr.err = idb.ErrStorageUnavailable
	h.now = utc("2026-03-02 09:00")

	res, err := h.svc.Run(context.Background(), PassScheduled)
	if !errors.Is(err, ErrTransientStorage) {
		t.Fatalf("err = %v, want ErrTransientStorage", err)
	}
	if !res.Aborted || res.Errors() != 1 || len(h.mailer.sent) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if strings.Contains(res.Message(), "storage unavailable:") {
		t.Errorf("message leaks detail: %q", res.Message())
	}
	if h.ledger.Len() != 0 {
		t.Fatalf("aborted pass committed %d dedup entries", h.ledger.Len())
	}

	// Storage recovers within the same window: the user is still due.
	h.warr.err = nil
	h.now = utc("2026-03-02 09:01")
	res = h.run(t, PassScheduled)
	if res.EmailsSent != 1 {
		t.Errorf("retry after abort sent %d emails", res.EmailsSent)
	}
}

func TestDispatchAbortsWhenUsersCannotBeListed(t *testing.T) {
	h := newHarness(t)
	h.prefs.err = idb.ErrStorageUnavailable
	h.now = utc("2026-03-02 09:00")

	res, err := h.svc.Run(context.Background(), PassScheduled)
	if !errors.Is(err, ErrTransientStorage) || !res.Aborted {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestDispatchPushIndividual(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{
		member(1, false, nyPreference(1, preference.SelectPush)),
		member(2, false, nyPreference(2, preference.SelectPush)),
		member(3, false, nyPreference(3, preference.SelectEmail)),
	}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(2, "Bob", "Drill", "2026-03-20"),
		rec(3, "Cid", "Kettle", "2026-03-05"),
	}
	h.settings.push = settings.PushSettings{
		Enabled: true, URLs: []string{"json://hooks.local/notify"}, Horizons: []int{30},
		TitlePrefix: "Warracker", Mode: settings.ModeIndividual, Scope: settings.ScopeAll,
	}
	h.push.available = true
	h.now = utc("2026-03-02 14:00")

	res := h.run(t, PassScheduled)
	if res.PushEligible != 2 || res.PushSent != 2 || res.PushErrors != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(h.push.dialed) != 1 || h.push.dialed[0][0] != "json://hooks.local/notify" {
		t.Errorf("dialed = %v", h.push.dialed)
	}
	for _, p := range h.push.sent {
		if strings.Contains(p.body, "Kettle") {
			t.Error("push went to an email-only user")
		}
		if strings.Contains(p.body, ": ") {
			t.Errorf("individual push carries owner prefixes: %q", p.body)
		}
	}
	if len(h.mailer.sent) != 1 {
		t.Errorf("email-only user got %d emails", len(h.mailer.sent))
	}
}

func TestDispatchPushSlotSurvivesMissingDestinations(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nyPreference(1, preference.SelectPush))}
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}
	h.settings.push.Enabled = true
	h.now = utc("2026-03-02 14:00")

	res := h.run(t, PassScheduled)
	if !res.PushUnavailable || res.PushEligible != 0 || len(h.warr.horizons) != 0 {
		t.Fatalf("result = %+v, queries %v", res, h.warr.horizons)
	}

	// Destinations configured a minute later, still inside the window.
	h.settings.push.URLs = []string{"json://hooks.local/notify"}
	h.push.available = true
	h.now = utc("2026-03-02 14:01")
	res = h.run(t, PassScheduled)
	if res.PushUnavailable || res.PushSent != 1 {
		t.Errorf("push after fixing destinations = %+v", res)
	}
}

func TestDesignatedAdmin(t *testing.T) {
	rows := []preference.UserPreference{
		member(5, true, nil),
		member(2, false, nil),
		member(3, true, nil),
	}
	if got := designatedAdmin(rows); got != 3 {
		t.Errorf("designatedAdmin = %d, want 3", got)
	}
	if got := designatedAdmin(rows[1:2]); got != 0 {
		t.Errorf("designatedAdmin without admins = %d, want 0", got)
	}
}

func TestDispatchPushGlobalAdminScope(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{
		member(1, true, nyPreference(1, preference.SelectPush)),
		member(2, false, nyPreference(2, preference.SelectPush)),
		member(3, true, nyPreference(3, preference.SelectPush)),
	}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(2, "Bob", "Drill", "2026-03-20"),
		rec(3, "Cid", "Kettle", "2026-03-05"),
	}
	h.settings.push = settings.PushSettings{
		Enabled: true, URLs: []string{"json://hooks.local/notify"}, Horizons: []int{30},
		TitlePrefix: "Warracker", Mode: settings.ModeGlobal, Scope: settings.ScopeAdmin,
	}
	h.push.available = true
	h.now = utc("2026-03-02 14:00")

	res := h.run(t, PassScheduled)
	if res.PushEligible != 1 || res.PushSent != 1 {
		t.Fatalf("result = %+v", res)
	}
	body := h.push.sent[0].body
	if body != "Laptop (2026-03-12)" {
		t.Errorf("admin-scoped body = %q, want only the designated admin's items", body)
	}
	if !strings.Contains(h.push.sent[0].title, "1 warranty ") {
		t.Errorf("title = %q", h.push.sent[0].title)
	}
}

func TestDispatchPushHorizonCap(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nyPreference(1, preference.SelectBoth))}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-05"),
		rec(1, "Ann", "Fridge", "2026-03-20"),
	}
	h.settings.push = settings.PushSettings{
		Enabled: true, URLs: []string{"json://hooks.local/notify"}, Horizons: []int{7, 1},
		TitlePrefix: "Warracker", Mode: settings.ModeIndividual, Scope: settings.ScopeAll,
	}
	h.push.available = true
	h.now = utc("2026-03-02 14:00")

	h.run(t, PassScheduled)
	if len(h.push.sent) != 1 || strings.Contains(h.push.sent[0].body, "Fridge") {
		t.Errorf("push = %+v", h.push.sent)
	}
	if len(h.mailer.sent) != 1 || !strings.Contains(h.mailer.sent[0].Text, "Fridge") {
		t.Error("email lost items inside the user's own horizon")
	}
}

func TestDispatchPushFailureCounted(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nyPreference(1, preference.SelectPush))}
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}
	h.settings.push.Enabled = true
	h.settings.push.URLs = []string{"json://hooks.local/notify"}
	h.push.available = true
	h.push.fail = true
	h.now = utc("2026-03-02 14:00")

	res := h.run(t, PassScheduled)
	if res.PushErrors != 1 || res.PushSent != 0 || res.Aborted {
		t.Errorf("result = %+v", res)
	}
}

func TestDispatchPushDisabled(t *testing.T) {
	h := newHarness(t)
	h.prefs.rows = []preference.UserPreference{member(1, false, nyPreference(1, preference.SelectPush))}
	h.warr.records = []warranty.ExpiringRecord{rec(1, "Ann", "Laptop", "2026-03-12")}
	h.now = utc("2026-03-02 14:00")

	res := h.run(t, PassScheduled)
	if res.PushEligible != 0 || len(h.push.dialed) != 0 {
		t.Errorf("disabled push was evaluated: %+v", res)
	}
}

func TestDispatchManualBypassesTiming(t *testing.T) {
	h := newHarness(t)
	none := preference.Default(2)
	none.Channels = preference.SelectNone
	h.prefs.rows = []preference.UserPreference{member(1, false, nil), member(2, false, &none)}
	h.warr.records = []warranty.ExpiringRecord{
		rec(1, "Ann", "Laptop", "2026-03-12"),
		rec(2, "Bob", "Drill", "2026-03-12"),
	}
	h.now = utc("2026-03-02 15:37")

	res := h.run(t, PassManual)
	if res.EmailsSent != 1 || h.mailer.sent[0].UserID != 1 {
		t.Fatalf("manual pass = %+v", res)
	}
	if res.Message() == "" {
		t.Error("empty message")
	}

	// A double invocation inside the cool-down does not re-send.
	h.now = h.now.Add(30 * time.Second)
	res = h.run(t, PassManual)
	if res.EmailsSent != 0 {
		t.Errorf("double trigger re-sent %d emails", res.EmailsSent)
	}

	// The scheduled slot of the day is unaffected by manual sends.
	h.now = utc("2026-03-03 09:00")
	res = h.run(t, PassScheduled)
	if res.EmailsSent != 1 {
		t.Errorf("scheduled pass after manual sent %d", res.EmailsSent)
	}
}
