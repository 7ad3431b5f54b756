package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/securestore"
	"github.com/Tiliavir/boring-time-tracker/internal/storage"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
	"github.com/Tiliavir/boring-time-tracker/internal/tracking"
	"github.com/Tiliavir/boring-time-tracker/internal/weekcache"
)

// weeks is shared by every tracker the process opens.
var weeks = weekcache.New(0, 0)

// app bundles what a command needs once configuration is loaded.
type app struct {
	store   storage.RecordStore
	tracker *tracking.Tracker
	owner   string
	tz      string
}

func openApp(ctx context.Context) (*app, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Dir:         cfg.Storage.Dir,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresURL: cfg.Storage.PostgresURL,
	})
	if err != nil {
		return nil, runtimeError(err)
	}

	tr := tracking.New(store,
		tracking.WithClock(tracking.ClockFunc(now)),
		tracking.WithLogger(logrus.StandardLogger()),
		tracking.WithWeekCache(weeks),
	)
	return &app{store: store, tracker: tr, owner: cfg.Tracker.OwnerID, tz: cfg.Tracker.Timezone}, nil
}

func (a *app) Close() {
	closeLogged("record store", a.store)
}

// closeLogged closes c and logs a failure.
func closeLogged(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logrus.WithError(err).Warnf("closing %s", what)
	}
}

// today returns the current calendar date in the configured timezone.
func (a *app) today() string {
	loc, _ := timecalc.LoadZone(a.tz)
	return now().In(loc).Format(model.DateLayout)
}

// selectRecords returns the owner's records within r, most recent first,
// and a label for the range. The current week is read through the week
// cache.
func (a *app) selectRecords(ctx context.Context, r dateRange, defaultWeek bool) ([]model.TimeRecord, string, error) {
	f, label, err := r.filter(a.tz, defaultWeek)
	if err != nil {
		return nil, "", err
	}
	if !r.currentWeek(defaultWeek) {
		records, err := a.tracker.List(ctx, a.owner, f)
		return records, label, classify(err)
	}
	week, err := a.tracker.Week(ctx, a.owner, now(), a.tz)
	if err != nil {
		return nil, "", classify(err)
	}
	return timecalc.FilterRecords(week, f), label, nil
}

// openPrefs returns the encrypted key/value store. The sqlite driver keeps
// items in the database; other drivers use the prefs file.
func openPrefs(ctx context.Context) (*securestore.Store, func(), error) {
	var (
		kv      securestore.KV
		closeFn = func() {}
	)
	if cfg.Storage.Driver == storage.DriverSQLite {
		db, err := storage.NewSQLiteStore(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, runtimeError(err)
		}
		kv = db
		closeFn = func() { closeLogged("preferences database", db) }
	} else {
		kv = securestore.NewFileKV(cfg.Prefs.Path)
	}

	var opts []securestore.Option
	if !cfg.Prefs.Encrypt {
		opts = append(opts, securestore.WithPlaintext())
	}
	store, err := securestore.New(kv, opts...)
	if err != nil {
		closeFn()
		return nil, nil, runtimeError(fmt.Errorf("opening preferences: %w", err))
	}
	return store, closeFn, nil
}
