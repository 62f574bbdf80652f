package logger

import (
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DailyFile writes to {dir}/{YYYY-MM-DD}.log and switches files when the
// local date changes. Within a day lumberjack still rotates on size.
type DailyFile struct {
	dir        string
	maxSizeMB  int
	maxBackups int
	compress   bool
	now        func() time.Time

	mu   sync.Mutex
	day  string
	file *lumberjack.Logger
}

// NewDailyFile creates a date-switching log file in dir.
func NewDailyFile(dir string, maxSizeMB, maxBackups int, compress bool) *DailyFile {
	return &DailyFile{
		dir:        dir,
		maxSizeMB:  maxSizeMB,
		maxBackups: maxBackups,
		compress:   compress,
		now:        time.Now,
	}
}

// Filename returns the path the next write goes to.
func (d *DailyFile) Filename() string {
	return filepath.Join(d.dir, d.now().Format("2006-01-02")+".log")
}

// Write implements io.Writer.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("2006-01-02")
	if d.file == nil || day != d.day {
		if d.file != nil {
			_ = d.file.Close()
		}
		d.day = day
		d.file = &lumberjack.Logger{
			Filename:   filepath.Join(d.dir, day+".log"),
			MaxSize:    d.maxSizeMB,
			MaxBackups: d.maxBackups,
			Compress:   d.compress,
		}
	}
	return d.file.Write(p)
}

// Sync is a no-op; lumberjack writes straight to the file.
func (d *DailyFile) Sync() error {
	return nil
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
