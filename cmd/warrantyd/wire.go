package main

import (
	"context"
	"database/sql"
	"fmt"

	"warranty_reminder/internal/app"
	"warranty_reminder/internal/domain/preference"
	"warranty_reminder/internal/domain/settings"
	"warranty_reminder/internal/domain/warranty"
	"warranty_reminder/internal/infra/config"
	idb "warranty_reminder/internal/infra/database"
	"warranty_reminder/internal/infra/logger"
	"warranty_reminder/internal/infra/mail"
	"warranty_reminder/internal/infra/push"

	"github.com/sirupsen/logrus"
)

// deps is everything a pass needs, built once per process.
type deps struct {
	db       *sql.DB
	dispatch *app.DispatchService
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
}

type repositories struct {
	prefs    preference.Repository
	warranty warranty.Repository
	settings settings.Repository
}

func openStorage(ctx context.Context, cfg *config.AppConfig) (*sql.DB, repositories, error) {
	storeLog := logger.Component("storage")

	var (
		db  *sql.DB
		err error
	)
	switch cfg.StorageDriver {
	case "postgres":
		db, err = idb.NewPostgresConnection(cfg.DatabaseURL)
	case "sqlite":
		db, err = idb.NewSQLiteConnection(ctx, cfg.SQLitePath)
	default:
		return nil, repositories{}, fmt.Errorf("%w: unknown storage driver %q", app.ErrConfiguration, cfg.StorageDriver)
	}
	if err != nil {
		return nil, repositories{}, err
	}

	retrier := idb.NewRetrier(db, cfg.StorageRetries, cfg.StorageRetryDelay, storeLog)
	if cfg.StorageDriver == "sqlite" {
		return db, repositories{
			prefs:    idb.NewSQLitePreferenceRepository(retrier),
			warranty: idb.NewSQLiteWarrantyRepository(retrier),
			settings: idb.NewSQLiteSettingsRepository(retrier, storeLog),
		}, nil
	}
	return db, repositories{
		prefs:    idb.NewPostgresPreferenceRepository(retrier),
		warranty: idb.NewPostgresWarrantyRepository(retrier),
		settings: idb.NewPostgresSettingsRepository(retrier, storeLog),
	}, nil
}

func buildDeps(ctx context.Context, cfg *config.AppConfig) (*deps, error) {
	db, repos, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Log.WithField("driver", cfg.StorageDriver).Info("Database connection established successfully.")

	mailer := mail.NewSMTPMailer(mail.FromAppConfig(cfg))
	if mailer.Available() {
		logger.Log.WithFields(logrus.Fields{
			"host":     cfg.SMTPHost,
			"port":     cfg.SMTPPort,
			"security": mailer.Security(),
		}).Info("SMTP transport configured.")
		if mailer.PlaintextAuth() {
			logger.Log.WithField("host", cfg.SMTPHost).Warn("SMTP credentials are set but the session is unencrypted; authentication will be refused. Set SMTP_USE_TLS=true or use port 587/465.")
		}
	} else {
		logger.Log.Warn("SMTP is not configured; email notifications will be skipped.")
	}

	pushLog := logger.Component("push")
	pushOpts := push.Options{Timeout: cfg.PushTimeout, RatePerSec: cfg.PushRatePerSec}
	dialPush := func(urls []string) app.PushTransport {
		return push.NewClient(urls, pushOpts, pushLog)
	}

	resolver := app.NewPreferenceResolver(logger.Component("preferences"))
	evaluator := app.NewEvaluator(app.NewLedger(), cfg.SchedulerWindowMins, cfg.ManualCooldown)
	composer := app.NewComposer(cfg.AppBaseURL)

	dispatch := app.NewDispatchService(
		repos.prefs,
		repos.warranty,
		repos.settings,
		resolver,
		evaluator,
		composer,
		mailer,
		dialPush,
		logger.Component("dispatch"),
	)
	return &deps{db: db, dispatch: dispatch}, nil
}
