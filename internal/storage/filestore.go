package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Tiliavir/boring-time-tracker/internal/model"
	"github.com/Tiliavir/boring-time-tracker/internal/timecalc"
)

// DayFile is the on-disk content of one UTC calendar day.
type DayFile struct {
	Date    string             `json:"date"`
	Records []model.TimeRecord `json:"records"`
}

// FileStore keeps records in one JSON file per UTC day under
// base/YYYY/MM/DD.json.
type FileStore struct {
	base string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at base. Directories are created
// lazily on first write.
func NewFileStore(base string) *FileStore {
	return &FileStore{base: base}
}

// dayFilePath returns the path for the given date's JSON file.
func (s *FileStore) dayFilePath(t time.Time) string {
	t = t.UTC()
	return filepath.Join(s.base, t.Format("2006"), t.Format("01"), t.Format("02")+".json")
}

// LoadDay loads the DayFile holding records that start on t's UTC date.
// Returns an empty DayFile if not found.
func (s *FileStore) LoadDay(t time.Time) (DayFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDay(t)
}

func (s *FileStore) loadDay(t time.Time) (DayFile, error) {
	path := s.dayFilePath(t)
	df, err := readDayFile(path)
	if os.IsNotExist(err) {
		return DayFile{Date: t.UTC().Format(model.DateLayout), Records: []model.TimeRecord{}}, nil
	}
	return df, err
}

func readDayFile(path string) (DayFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DayFile{}, err
		}
		return DayFile{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var df DayFile
	if err := json.Unmarshal(data, &df); err != nil {
		// Back up corrupt file and abort.
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return DayFile{}, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", path, backupPath, err)
	}
	return df, nil
}

// SaveDay atomically writes a DayFile for t's UTC date. An empty file is
// removed instead.
func (s *FileStore) SaveDay(t time.Time, df DayFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveDay(t, df)
}

func (s *FileStore) saveDay(t time.Time, df DayFile) error {
	path := s.dayFilePath(t)
	if len(df.Records) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage error removing %s: %w", path, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	df.Date = t.UTC().Format(model.DateLayout)
	data, err := json.MarshalIndent(df, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// Insert adds r to the file of its start date.
func (s *FileStore) Insert(_ context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return model.TimeRecord{}, err
	}
	for _, existing := range all {
		if existing.ID == r.ID {
			return model.TimeRecord{}, fmt.Errorf("%w: duplicate id %s", ErrConflict, r.ID)
		}
		if r.Running() && existing.Running() && existing.OwnerID == r.OwnerID {
			return model.TimeRecord{}, fmt.Errorf("%w: owner %s already has running record %s", ErrConflict, r.OwnerID, existing.ID)
		}
	}

	df, err := s.loadDay(r.StartTime)
	if err != nil {
		return model.TimeRecord{}, err
	}
	df.Records = append(df.Records, r.Clone())
	if err := s.saveDay(r.StartTime, df); err != nil {
		return model.TimeRecord{}, err
	}
	return r.Clone(), nil
}

// Get returns the record with the given id.
func (s *FileStore) Get(_ context.Context, id string) (model.TimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return model.TimeRecord{}, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Select returns the records matching q. When q bounds the start time only
// the day files inside the bounds are read.
func (s *FileStore) Select(_ context.Context, q Query) ([]model.TimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []model.TimeRecord
	var err error
	if q.StartFrom != nil && q.StartTo != nil {
		candidates, err = s.loadRange(*q.StartFrom, *q.StartTo)
	} else {
		candidates, err = s.loadAll()
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.TimeRecord, 0, len(candidates))
	for _, r := range candidates {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	timecalc.SortByStartDesc(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Replace overwrites the stored record with r.ID, moving it to another day
// file when its start date changed.
func (s *FileStore) Replace(_ context.Context, r model.TimeRecord) (model.TimeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return model.TimeRecord{}, err
	}
	var old *model.TimeRecord
	for i := range all {
		existing := all[i]
		if existing.ID == r.ID {
			old = &all[i]
			continue
		}
		if r.Running() && existing.Running() && existing.OwnerID == r.OwnerID {
			return model.TimeRecord{}, fmt.Errorf("%w: owner %s already has running record %s", ErrConflict, r.OwnerID, existing.ID)
		}
	}
	if old == nil {
		return model.TimeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}

	if !sameUTCDate(old.StartTime, r.StartTime) {
		if err := s.removeFromDay(old.StartTime, r.ID); err != nil {
			return model.TimeRecord{}, err
		}
	}
	df, err := s.loadDay(r.StartTime)
	if err != nil {
		return model.TimeRecord{}, err
	}
	replaced := false
	for i, e := range df.Records {
		if e.ID == r.ID {
			df.Records[i] = r.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		df.Records = append(df.Records, r.Clone())
	}
	if err := s.saveDay(r.StartTime, df); err != nil {
		return model.TimeRecord{}, err
	}
	return r.Clone(), nil
}

// Delete removes the record with the given id.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadAll()
	if err != nil {
		return err
	}
	for _, r := range all {
		if r.ID == id {
			return s.removeFromDay(r.StartTime, id)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Close is a no-op; every write is flushed immediately.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) removeFromDay(day time.Time, id string) error {
	df, err := s.loadDay(day)
	if err != nil {
		return err
	}
	kept := df.Records[:0]
	for _, e := range df.Records {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	df.Records = kept
	return s.saveDay(day, df)
}

// loadRange loads all records on UTC days in [from, to] inclusive.
func (s *FileStore) loadRange(from, to time.Time) ([]model.TimeRecord, error) {
	from = truncateUTCDay(from)
	to = truncateUTCDay(to)
	var records []model.TimeRecord
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		df, err := s.loadDay(d)
		if err != nil {
			return nil, err
		}
		records = append(records, df.Records...)
	}
	return records, nil
}

// loadAll reads every day file under the base directory.
func (s *FileStore) loadAll() ([]model.TimeRecord, error) {
	var records []model.TimeRecord
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.base {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		df, err := readDayFile(path)
		if err != nil {
			return err
		}
		records = append(records, df.Records...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage error scanning %s: %w", s.base, err)
	}
	return records, nil
}

func truncateUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameUTCDate(a, b time.Time) bool {
	return truncateUTCDay(a).Equal(truncateUTCDay(b))
}
