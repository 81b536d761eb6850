package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/settings"
	"warranty_reminder/internal/domain/warranty"
)

type fakePrefRepo struct {
	rows []preference.UserPreference
	err  error
}

func (f *fakePrefRepo) ListActiveUsersWithPreferences(ctx context.Context) ([]preference.UserPreference, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

// fakeWarrantyRepo applies the horizon predicate the way the SQL adapters do.
type fakeWarrantyRepo struct {
	records  []warranty.ExpiringRecord
	err      error
	horizons []int
}

func (f *fakeWarrantyRepo) ListExpiring(ctx context.Context, today time.Time, horizonDays int) ([]warranty.ExpiringRecord, error) {
	f.horizons = append(f.horizons, horizonDays)
	if f.err != nil {
		return nil, f.err
	}
	var out []warranty.ExpiringRecord
	for _, r := range f.records {
		if warranty.WithinHorizon(today, r.ExpirationDate, horizonDays) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSettingsRepo struct {
	push settings.PushSettings
	err  error
}

func (f *fakeSettingsRepo) GetPushSettings(ctx context.Context) (*settings.PushSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	ps := f.push
	return &ps, nil
}

type fakeMailer struct {
	mu        sync.Mutex
	available bool
	failFor   map[int64]bool
	sent      []EmailMessage
}

func (f *fakeMailer) Available() bool { return f.available }

func (f *fakeMailer) Send(ctx context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.UserID] {
		return errors.New("550 mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type sentPush struct {
	title, body string
}

type fakePush struct {
	available bool
	fail      bool
	sent      []sentPush
	dialed    [][]string
}

func (f *fakePush) dial(urls []string) PushTransport {
	f.dialed = append(f.dialed, urls)
	return f
}

func (f *fakePush) Available() bool { return f.available }

func (f *fakePush) Send(ctx context.Context, title, body string) error {
	if f.fail {
		return errors.New("destination unreachable")
	}
	f.sent = append(f.sent, sentPush{title, body})
	return nil
}
