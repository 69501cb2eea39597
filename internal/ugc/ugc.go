// Package ugc loads the Universal Geographic Code lookup table (zone
// and county code to name/state) and watches the backing file for
// updates so a long-running bridge process can pick up a refreshed
// NWS zone list without a restart.
package ugc

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nwws-bridge/nwws-bridge/logger"
)

// Entry is one row of the lookup table.
type Entry struct {
	Name  string `yaml:"name"`
	State string `yaml:"state"`
}

// Table is a concurrent-safe UGC code to Entry lookup.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func newTable() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Lookup returns the name and state for a UGC code, if known.
func (t *Table) Lookup(code string) (name, state string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[code]
	return e.Name, e.State, ok
}

// Len reports how many codes are currently loaded.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) replace(entries map[string]Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = entries
}

// Load parses a UGC seed file. YAML (`.yaml`/`.yml`) and CSV
// (`code,name,state`) are both supported; the format is chosen by
// file extension.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := decode(f, path)
	if err != nil {
		return nil, err
	}

	t := newTable()
	t.replace(entries)
	return t, nil
}

func decode(r io.Reader, path string) (map[string]Entry, error) {
	if strings.HasSuffix(path, ".csv") {
		return decodeCSV(r)
	}
	return decodeYAML(r)
}

func decodeYAML(r io.Reader) (map[string]Entry, error) {
	var raw map[string]Entry
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	if raw == nil {
		raw = make(map[string]Entry)
	}
	return raw, nil
}

func decodeCSV(r io.Reader) (map[string]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]Entry, len(records))
	for _, rec := range records {
		if len(rec) < 3 {
			continue
		}
		entries[strings.TrimSpace(rec[0])] = Entry{
			Name:  strings.TrimSpace(rec[1]),
			State: strings.TrimSpace(rec[2]),
		}
	}
	return entries, nil
}

// Watcher reloads a Table from its backing file whenever that file
// changes on disk, debouncing rapid successive writes the same way a
// config-file watcher would.
type Watcher struct {
	path   string
	table  *Table
	fsw    *fsnotify.Watcher
	period time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// NewWatcher loads the initial table and begins watching path for
// subsequent changes once Start is called.
func NewWatcher(path string) (*Watcher, error) {
	table, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:   path,
		table:  table,
		fsw:    fsw,
		period: 500 * time.Millisecond,
		done:   make(chan struct{}),
	}, nil
}

// Table returns the live, concurrently-updated lookup table.
func (w *Watcher) Table() *Table { return w.table }

// Start begins watching for file changes in the background.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Write == fsnotify.Write || ev.Op&fsnotify.Create == fsnotify.Create {
				w.scheduleReload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnw("ugc watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.period, w.reload)
}

func (w *Watcher) reload() {
	entries, err := func() (map[string]Entry, error) {
		f, err := os.Open(w.path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return decode(f, w.path)
	}()
	if err != nil {
		logger.Errorw("ugc reload failed", "path", w.path, "error", err)
		return
	}
	w.table.replace(entries)
	logger.Infow("ugc table reloaded", "path", w.path, "entries", len(entries))
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
