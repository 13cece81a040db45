package rule

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML document shape for file-backed rules.
type ruleFile struct {
	Version string  `yaml:"version"`
	Rules   []*Rule `yaml:"rules"`
}

// FileStore loads rules from a YAML file and watches it for changes.
// It is a read-only Store: authoring happens by editing the file, and every
// reload notifies the registered callbacks so callers can invalidate caches.
type FileStore struct {
	path     string
	mu       sync.RWMutex
	rules    map[string]*Rule
	onReload []func()
	watcher  *fsnotify.Watcher
}

// NewFileStore creates a FileStore and performs the initial load.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rules %s: %w", s.path, err)
	}
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse rules %s: %w", s.path, err)
	}

	byID := make(map[string]*Rule, len(doc.Rules))
	var errs []string
	for i, r := range doc.Rules {
		if r.ID == "" {
			r.ID = fmt.Sprintf("file-rule-%d", i)
		}
		if problems := Validate(r); len(problems) > 0 {
			errs = append(errs, problems...)
			continue
		}
		byID[r.ID] = r
	}
	if len(errs) > 0 {
		return fmt.Errorf("rules %s invalid:\n  - %s", s.path, strings.Join(errs, "\n  - "))
	}

	s.mu.Lock()
	s.rules = byID
	s.mu.Unlock()
	return nil
}

// OnReload registers a callback invoked after every successful reload.
func (s *FileStore) OnReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Watch starts a background goroutine that hot-reloads the rule file on
// changes. A reload that fails validation keeps the previous rule set.
// Call the returned stop function to clean up.
func (s *FileStore) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules watcher: %w", err)
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rules watcher add %s: %w", s.path, err)
	}
	s.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := s.load(); err != nil {
						logrus.Warnf("rules hot-reload skipped: %v", err)
						continue
					}
					logrus.Infof("rules hot-reloaded from %s", s.path)
					s.notify()
				}
			case <-w.Errors:
				// Ignore watcher errors; the next write still triggers a reload.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the rule file.
func (s *FileStore) Reload() error {
	if err := s.load(); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *FileStore) notify() {
	s.mu.RLock()
	callbacks := make([]func(), len(s.onReload))
	copy(callbacks, s.onReload)
	s.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}

func (s *FileStore) Create(context.Context, *Rule) error  { return ErrReadOnly }
func (s *FileStore) Update(context.Context, *Rule) error  { return ErrReadOnly }
func (s *FileStore) Delete(context.Context, string) error { return ErrReadOnly }

func (s *FileStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *FileStore) ListActive(context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*Rule
	for _, r := range s.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}
