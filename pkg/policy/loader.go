package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay is how long the loader waits for a burst of edits to settle.
const reloadDelay = 300 * time.Millisecond

// ReloadFunc receives the full policy set after a change on disk.
type ReloadFunc func(ctx context.Context, policies []Policy) error

// Loader reads custom policies from .rego and .json files.
//
// A .rego file holds one policy named after the file. Leading comment lines
// of the form "# key: value" set description, severity, enabled and tags;
// the first other comment line becomes the description.
// A .json file holds either one Policy object or a PolicyBundle.
type Loader struct {
	logger zerolog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
}

// NewLoader creates a loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths reads every policy under paths. Directories are scanned one
// level deep. Two policies with the same name are an error.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var files []string
	for _, p := range paths {
		found, err := policyFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	seen := make(map[string]string)
	var out []Policy
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		policies, err := l.LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, p := range policies {
			if prev, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("policy %q defined in both %s and %s", p.Name, prev, f)
			}
			seen[p.Name] = f
			out = append(out, p)
		}
	}

	l.logger.Debug().Int("files", len(files)).Int("policies", len(out)).Msg("Read custom policies")
	return out, nil
}

// policyFiles expands path into the policy files it names, sorted.
func policyFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("policy path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read policy directory %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isPolicyFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile reads the policies held by a single file.
func (l *Loader) LoadFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	var policies []Policy
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rego":
		p, err := parseRego(path, string(data))
		if err != nil {
			return nil, err
		}
		policies = []Policy{p}
	case ".json":
		policies, err = parseJSON(path, data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%s: unsupported policy file type", path)
	}

	now := time.Now()
	for i := range policies {
		policies[i].Source = path
		if policies[i].LoadedAt.IsZero() {
			policies[i].LoadedAt = now
		}
	}
	return policies, nil
}

func parseRego(path, src string) (Policy, error) {
	if strings.TrimSpace(src) == "" {
		return Policy{}, fmt.Errorf("%s: empty policy", path)
	}
	p := Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Rego:     src,
		Severity: SeverityError,
		Enabled:  true,
	}

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		key, value, _ := strings.Cut(text, ":")
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "description":
			p.Description = value
		case "severity":
			sev, err := parseSeverity(value)
			if err != nil {
				return Policy{}, fmt.Errorf("%s: %w", path, err)
			}
			p.Severity = sev
		case "enabled":
			on, err := strconv.ParseBool(value)
			if err != nil {
				return Policy{}, fmt.Errorf("%s: enabled header: %w", path, err)
			}
			p.Enabled = on
		case "tags":
			for _, t := range strings.Split(value, ",") {
				if t = strings.TrimSpace(t); t != "" {
					p.Tags = append(p.Tags, t)
				}
			}
		default:
			if p.Description == "" {
				p.Description = text
			}
		}
	}
	return p, nil
}

func parseJSON(path string, data []byte) ([]Policy, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var policies []Policy
	if _, isBundle := probe["policies"]; isBundle {
		var bundle PolicyBundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		policies = bundle.Policies
	} else {
		p := Policy{Enabled: true}
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		policies = []Policy{p}
	}

	for i := range policies {
		p := &policies[i]
		if p.Name == "" {
			return nil, fmt.Errorf("%s: policy %d has no name", path, i)
		}
		if strings.TrimSpace(p.Rego) == "" {
			return nil, fmt.Errorf("%s: policy %q has no rego source", path, p.Name)
		}
		if p.Severity == "" {
			p.Severity = SeverityError
		} else if _, err := parseSeverity(string(p.Severity)); err != nil {
			return nil, fmt.Errorf("%s: policy %q: %w", path, p.Name, err)
		}
	}
	return policies, nil
}

func parseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(s)); sev {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func isPolicyFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".rego", ".json":
		return true
	}
	return false
}

// Watch re-reads paths whenever a policy file under them changes and hands
// the complete set to reloadFn. A set that fails to load is logged and the
// previous one stays active. Watch returns once the watch is in place.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	for _, p := range paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	l.mu.Lock()
	if l.watcher != nil {
		l.mu.Unlock()
		_ = w.Close()
		return fmt.Errorf("policy loader is already watching")
	}
	l.watcher = w
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				l.cancelReload()
				_ = w.Close()
				return
			case ev, ok := <-w.Events:
				if !ok {
					l.cancelReload()
					return
				}
				if !isPolicyFile(ev.Name) || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				l.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Policy file changed")
				l.scheduleReload(ctx, paths, reloadFn)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn().Err(err).Msg("Policy watcher error")
			}
		}
	}()

	l.logger.Info().Strs("paths", paths).Msg("Watching policy files")
	return nil
}

func (l *Loader) scheduleReload(ctx context.Context, paths []string, reloadFn ReloadFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(reloadDelay, func() {
		if ctx.Err() != nil {
			return
		}
		policies, err := l.LoadFromPaths(ctx, paths)
		if err != nil {
			l.logger.Error().Err(err).Msg("Policy reload failed, keeping previous set")
			return
		}
		if err := reloadFn(ctx, policies); err != nil {
			l.logger.Error().Err(err).Msg("Policy reload rejected")
			return
		}
		l.logger.Info().Int("policies", len(policies)).Msg("Policies reloaded")
	})
}

func (l *Loader) cancelReload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
	}
}

// Stop ends a running Watch and waits for it to exit. It is a no-op when
// nothing is being watched.
func (l *Loader) Stop() error {
	l.mu.Lock()
	w, done := l.watcher, l.done
	l.watcher = nil
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
