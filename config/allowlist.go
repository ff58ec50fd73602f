package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"clipfm/logger"
)

// Allowlist holds the set of authorized account emails.
// The backing file is one email per line; blank lines and lines starting
// with '#' are ignored. Lookups are case-insensitive.
type Allowlist struct {
	path string

	mu     sync.RWMutex
	emails map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadAllowlist reads the allow-list file and starts watching it for changes.
// A missing file yields an empty list (every request is rejected) rather
// than an error, so a fresh deployment fails closed.
func LoadAllowlist(path string) (*Allowlist, error) {
	a := &Allowlist{
		path:   path,
		emails: make(map[string]bool),
		done:   make(chan struct{}),
	}
	if err := a.reload(); err != nil {
		logger.Warn("allowlist not readable, starting empty",
			logger.String("path", path),
			logger.ErrorField(err),
		)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	a.watcher = watcher

	// Watch the directory, not the file: editors replace files on save,
	// which drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go a.watchLoop()
	return a, nil
}

// Allowed reports whether the email is on the allow-list.
func (a *Allowlist) Allowed(email string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.emails[strings.ToLower(strings.TrimSpace(email))]
}

// Size returns the number of emails currently loaded.
func (a *Allowlist) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.emails)
}

// Close stops the file watcher.
func (a *Allowlist) Close() error {
	close(a.done)
	return a.watcher.Close()
}

func (a *Allowlist) watchLoop() {
	for {
		select {
		case event, ok := <-a.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(a.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := a.reload(); err != nil {
				logger.Warn("allowlist reload failed", logger.ErrorField(err))
				continue
			}
			logger.Info("allowlist reloaded",
				logger.String("path", a.path),
				logger.Int("emails", a.Size()),
			)
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("allowlist watcher error", logger.ErrorField(err))
		case <-a.done:
			return
		}
	}
}

func (a *Allowlist) reload() error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer f.Close()

	emails := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		emails[strings.ToLower(line)] = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.emails = emails
	a.mu.Unlock()
	return nil
}
