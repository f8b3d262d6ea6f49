package soloconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Quiet period after the last file event before the file is re-read, so an editor's
// partial writes are never parsed.
const ReloadDelay = 250 * time.Millisecond

// Watch calls onChange with every new valid config written to path until ctx is done.
// Invalid or unchanged documents are logged and skipped. The watcher is recreated with
// exponential backoff if fsnotify stops delivering events.
func Watch(ctx context.Context, path string, current *Config, onChange func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	r := &reloader{path: path, onChange: onChange, last: fingerprint(current)}
	defer r.stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				w.Close()
			}
		}
		if err != nil {
			wait := b.NextBackOff()
			log.WithFields(log.Fields{"dir": dir, "err": err}).Warnf("Config watch failed, retrying in %v", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}

		b.Reset()
		log.WithFields(log.Fields{"dir": dir, "file": file}).Debug("Config watcher started")
		r.watch(ctx, w, file)
		w.Close()
	}
}

type reloader struct {
	path     string
	onChange func(*Config)

	mu    sync.Mutex
	timer *time.Timer
	last  []byte
}

// watch runs until ctx is done or w breaks.
func (r *reloader) watch(ctx context.Context, w *fsnotify.Watcher, file string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				r.schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err == fsnotify.ErrEventOverflow {
				log.Warn("Config watch overflow, forcing reload")
				r.schedule()
				continue
			}
			log.WithFields(log.Fields{"err": err}).Warn("Config watch error")
		}
	}
}

func (r *reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(ReloadDelay, r.reload)
}

func (r *reloader) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *reloader) reload() {
	c, err := Load(r.path)
	if err != nil {
		log.WithFields(log.Fields{"path": r.path, "err": err}).Warn("Config rejected")
		return
	}
	fp := fingerprint(c)
	r.mu.Lock()
	unchanged := bytes.Equal(fp, r.last)
	r.last = fp
	r.mu.Unlock()
	if unchanged {
		log.WithFields(log.Fields{"path": r.path}).Debug("Config unchanged")
		return
	}
	log.WithFields(log.Fields{"path": r.path}).Info("Config reloaded")
	r.onChange(c)
}

func fingerprint(c *Config) []byte {
	if c == nil {
		return nil
	}
	b, _ := json.Marshal(c)
	return b
}
