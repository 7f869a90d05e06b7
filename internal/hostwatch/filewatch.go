package hostwatch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	hperrors "github.com/hamed0406/hostprobe/internal/errors"
)

const defaultDebounce = 250 * time.Millisecond

// FileWatcher follows a file holding the operator's terminal title (or a bare
// host name) and reports every change of the resolved host. A missing or
// empty file selects the local machine.
type FileWatcher struct {
	Path     string
	Log      *zap.Logger
	OnChange func(host string)
	// Debounce collapses bursts of events from editors writing in steps.
	Debounce time.Duration

	last   string
	seeded bool
}

func NewFileWatcher(log *zap.Logger, path string, onChange func(host string)) *FileWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileWatcher{Path: path, Log: log, OnChange: onChange, Debounce: defaultDebounce}
}

// Run reports the file's current host, then follows changes until ctx ends.
func (w *FileWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return hperrors.WrapWithCode(err, hperrors.ErrConfig, "Couldn't start the host file watcher", "")
	}
	defer fw.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return hperrors.WrapWithCode(err, hperrors.ErrConfig,
			"Couldn't watch "+dir,
			"Make sure the directory of host_file exists")
	}
	w.apply()

	file := filepath.Base(w.Path)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var fire <-chan time.Time
		if timer != nil {
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("hostwatch_error", zap.String("path", w.Path), zap.Error(err))
		case <-fire:
			w.apply()
		}
	}
}

func (w *FileWatcher) apply() {
	host := ""
	b, err := os.ReadFile(w.Path)
	switch {
	case err == nil:
		line, _, _ := strings.Cut(string(b), "\n")
		host = Resolve(line)
	case errors.Is(err, fs.ErrNotExist):
	default:
		w.Log.Warn("hostwatch_read_failed", zap.String("path", w.Path), zap.Error(err))
		return
	}

	if w.seeded && host == w.last {
		return
	}
	w.seeded = true
	w.last = host
	w.Log.Debug("hostwatch_host", zap.String("host", host))
	if w.OnChange != nil {
		w.OnChange(host)
	}
}
