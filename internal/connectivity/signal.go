package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

// NewSignalFromConfig creates a Signal based on the connectivity config type.
func NewSignalFromConfig(cfg config.ConnectivityConfig) (Signal, error) {
	switch cfg.Type {
	case "probe", "":
		if cfg.ProbeURL == "" {
			return nil, fmt.Errorf("probe_url required for probe connectivity")
		}
		interval, err := cfg.ProbeIntervalDuration()
		if err != nil {
			return nil, err
		}
		return NewProbeSignal(cfg.ProbeURL, interval, nil), nil
	case "file":
		if cfg.StateFile == "" {
			return nil, fmt.Errorf("state_file required for file connectivity")
		}
		return NewFileSignal(cfg.StateFile), nil
	case "static":
		state, err := ParseState(cfg.State)
		if err != nil {
			return nil, err
		}
		return NewStaticSignal(state), nil
	default:
		return nil, fmt.Errorf("unknown connectivity type: %s", cfg.Type)
	}
}

// ParseState parses "online" or "offline", case-insensitively.
func ParseState(s string) (qc.State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return qc.Online, nil
	case "offline":
		return qc.Offline, nil
	default:
		return qc.Offline, fmt.Errorf("invalid connectivity state %q", s)
	}
}

// ProbeSignal polls an HTTP health URL. Any 2xx response means ONLINE.
type ProbeSignal struct {
	url      string
	interval time.Duration
	client   *http.Client
}

// NewProbeSignal creates a ProbeSignal. A nil client gets a 5 second timeout.
func NewProbeSignal(url string, interval time.Duration, client *http.Client) *ProbeSignal {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ProbeSignal{url: url, interval: interval, client: client}
}

func (p *ProbeSignal) Check(ctx context.Context) qc.State {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return qc.Offline
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return qc.Offline
	}
	resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return qc.Online
	}
	return qc.Offline
}

func (p *ProbeSignal) Watch(ctx context.Context, fn func(qc.State)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state := p.Check(ctx)
			if ctx.Err() != nil {
				return nil
			}
			fn(state)
		}
	}
}

// FileSignal reads reachability from a file maintained by an OS network hook.
// The file holds "online" or "offline"; a missing or unreadable file is OFFLINE.
type FileSignal struct {
	path string
}

func NewFileSignal(path string) *FileSignal {
	return &FileSignal{path: filepath.Clean(path)}
}

func (f *FileSignal) Check(ctx context.Context) qc.State {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return qc.Offline
	}
	state, err := ParseState(string(data))
	if err != nil {
		return qc.Offline
	}
	return state
}

// Watch watches the file's directory so that atomic replacement by rename is
// seen as well as in-place writes.
func (f *FileSignal) Watch(ctx context.Context, fn func(qc.State)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	// Report once so a write made before the watch was installed is not missed.
	fn(f.Check(ctx))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			fn(f.Check(ctx))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", f.path, err)
		}
	}
}

// StaticSignal always reports the same state.
type StaticSignal struct {
	state qc.State
}

func NewStaticSignal(state qc.State) *StaticSignal {
	return &StaticSignal{state: state}
}

func (s *StaticSignal) Check(context.Context) qc.State {
	return s.state
}

func (s *StaticSignal) Watch(ctx context.Context, fn func(qc.State)) error {
	<-ctx.Done()
	return nil
}
