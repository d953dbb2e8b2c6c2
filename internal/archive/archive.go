// internal/archive/archive.go
package archive

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/trace"
)

const (
	DefaultIntervalMinutes = 5
	DefaultSaveHours       = 6

	// TimeLayout is the layout of the record "time" key.
	TimeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"
)

// Config is the runtime config of the archive.
type Config struct {
	Path            string
	IntervalMinutes int
	SaveHours       int
	Keys            []string
	Upload          Uploader // optional, runs after every successful save
	Log             *logrus.Entry
}

// Archive collects one CSV row per interval into a day buffer and saves
// it to <path>/<yyyy>/<yyyy-mm-dd>.csv.
//
// Rows are taken on minute boundaries divisible by IntervalMinutes. The
// buffer is saved on day change and on hour boundaries divisible by
// SaveHours. After a restart the day file is restored when its header
// matches Keys.
type Archive struct {
	mu  sync.Mutex
	cfg Config
	log *logrus.Entry

	hour   int // -1 before the first record
	minute int

	buf  *bytes.Buffer // nil: no buffer yet
	date string        // day of buf

	uploads sync.WaitGroup
}

func New(cfg Config) (*Archive, error) {
	if cfg.Path == "" {
		return nil, errors.New("archive: path required")
	}
	if len(cfg.Keys) == 0 {
		return nil, errors.New("archive: keys required")
	}
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = DefaultIntervalMinutes
	}
	if cfg.SaveHours <= 0 {
		cfg.SaveHours = DefaultSaveHours
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Archive{
		cfg:    cfg,
		log:    log.WithField("component", "archive"),
		hour:   -1,
		minute: -1,
	}, nil
}

// Push processes one record. The record's "time" key drives all timing.
func (a *Archive) Push(r trace.Record) {
	ts, _ := r["time"].(string)
	t, err := time.ParseInLocation(TimeLayout, ts, time.Local)
	if err != nil {
		a.log.WithError(err).Error("push: bad time")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	date := t.Format(dateLayout)
	hour, minute := t.Hour(), t.Minute()

	// base interval
	if a.minute >= 0 && minute != a.minute && minute%a.cfg.IntervalMinutes == 0 {
		a.appendRow(r, date, hour)
	}
	a.hour = hour
	a.minute = minute
}

func (a *Archive) appendRow(r trace.Record, date string, hour int) {
	// restore today's file after a restart
	if a.buf == nil {
		a.restore(date)
	}

	// new day: close the old one
	if a.buf != nil && a.date != date {
		a.saveLocked()
		a.buf, a.date = nil, ""
	}

	// save interval
	if a.buf != nil && hour != a.hour && hour%a.cfg.SaveHours == 0 {
		a.saveLocked()
	}

	if a.buf == nil {
		a.buf = &bytes.Buffer{}
		a.writeRow(a.cfg.Keys)
	}

	row := make([]string, len(a.cfg.Keys))
	for i, k := range a.cfg.Keys {
		row[i] = trace.FormatValue(r[k])
	}
	a.writeRow(row)
	a.date = date

	a.log.WithField("date", date).Debug("row added")
}

func (a *Archive) writeRow(row []string) {
	w := csv.NewWriter(a.buf)
	w.Comma = ';'
	_ = w.Write(row) // bytes.Buffer does not fail
	w.Flush()
}

// Buffer returns the current day buffer, empty if none.
func (a *Archive) Buffer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return ""
	}
	return a.buf.String()
}

// Save writes the current buffer to its day file.
func (a *Archive) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf == nil {
		return errors.New("archive: nothing to save")
	}
	return a.saveLocked()
}

// File returns the path of the day file for date (yyyy-mm-dd).
func (a *Archive) File(date string) string {
	year := date
	if len(date) >= 4 {
		year = date[:4]
	}
	return filepath.Join(a.cfg.Path, year, date+".csv")
}

func (a *Archive) saveLocked() error {
	name := a.File(a.date)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		a.log.WithError(err).Error("save failed")
		return fmt.Errorf("archive: %w", err)
	}

	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, a.buf.Bytes(), 0o644); err != nil {
		a.log.WithError(err).Error("save failed")
		return fmt.Errorf("archive: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		a.log.WithError(err).Error("save failed")
		return fmt.Errorf("archive: %w", err)
	}

	a.log.WithField("file", name).Info("file saved")
	a.upload(a.date, bytes.Clone(a.buf.Bytes()))
	return nil
}

// upload runs off the push path; a failure never fails the save.
func (a *Archive) upload(date string, data []byte) {
	if a.cfg.Upload == nil {
		return
	}
	a.uploads.Add(1)
	go func() {
		defer a.uploads.Done()
		log := a.log.WithField("date", date)
		if err := a.cfg.Upload.Upload(date, data); err != nil {
			log.WithError(err).Warn("upload failed")
			return
		}
		log.Info("file uploaded")
	}()
}

// Wait blocks until pending uploads are done.
func (a *Archive) Wait() {
	a.uploads.Wait()
}

func (a *Archive) restore(date string) {
	name := a.File(date)
	data, err := os.ReadFile(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.log.WithError(err).WithField("file", name).Error("restore failed")
		}
		return
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		a.log.WithError(err).WithField("file", name).Error("restore failed")
		return
	}

	for i, k := range a.cfg.Keys {
		if i >= len(header) || header[i] != k {
			a.log.WithFields(logrus.Fields{"file": name, "index": i, "want": k}).Info("restore: header mismatch")
			return
		}
	}

	a.buf = bytes.NewBuffer(data)
	a.date = date
	a.log.WithField("file", name).Info("restored")
}
