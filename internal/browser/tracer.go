// File: internal/browser/tracer.go
package browser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
)

// checkpoint is one captured step.
type checkpoint struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	At         time.Time `json:"at"`
	URL        string    `json:"url,omitempty"`
	Screenshot string    `json:"screenshot,omitempty"`
	Snapshot   string    `json:"snapshot,omitempty"`
	Error      string    `json:"error,omitempty"`

	png  []byte
	html string
}

type traceEvent struct {
	At     time.Time              `json:"at"`
	Kind   string                 `json:"kind"`
	Fields map[string]interface{} `json:"fields"`
}

// Tracer collects screenshots, DOM snapshots and a page event log for one
// browser session and writes them as a zip archive on Stop. A nil *Tracer
// records nothing.
type Tracer struct {
	path    string
	started time.Time

	mu          sync.Mutex
	checkpoints []*checkpoint
	events      []traceEvent
	stopped     bool
}

// NewTracer returns a tracer that will write its archive to path.
func NewTracer(path string) *Tracer {
	return &Tracer{path: path, started: time.Now()}
}

// Path is where Stop writes the archive.
func (t *Tracer) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Event appends one entry to the event log.
func (t *Tracer) Event(kind string, fields map[string]interface{}) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.events = append(t.events, traceEvent{At: time.Now(), Kind: kind, Fields: fields})
}

// Checkpoint stores a captured step. Either capture may be empty when it failed.
func (t *Tracer) Checkpoint(name, url string, png []byte, html string, captureErr error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	cp := &checkpoint{
		Index: len(t.checkpoints) + 1,
		Name:  name,
		At:    time.Now(),
		URL:   url,
		png:   png,
		html:  html,
	}
	if captureErr != nil {
		cp.Error = captureErr.Error()
	}
	t.checkpoints = append(t.checkpoints, cp)
}

// Stop writes the archive. It is idempotent; only the first call writes.
func (t *Tracer) Stop() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true

	data, err := t.archive()
	if err != nil {
		return fmt.Errorf("failed to build trace archive: %w", err)
	}
	if dir := filepath.Dir(t.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create trace directory: %w", err)
		}
	}
	// Write to a temp file first so a crash never leaves a truncated archive.
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write trace archive: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to finalize trace archive: %w", err)
	}
	return nil
}

func (t *Tracer) archive() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, cp := range t.checkpoints {
		base := fmt.Sprintf("%02d-%s", cp.Index, sanitize(cp.Name))
		if len(cp.png) > 0 {
			cp.Screenshot = "screenshots/" + base + ".png"
			if err := writeEntry(zw, cp.Screenshot, cp.png); err != nil {
				return nil, err
			}
		}
		if cp.html != "" {
			cp.Snapshot = "snapshots/" + base + ".html"
			if err := writeEntry(zw, cp.Snapshot, []byte(cp.html)); err != nil {
				return nil, err
			}
		}
	}

	var events bytes.Buffer
	for _, ev := range t.events {
		line, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		events.Write(line)
		events.WriteByte('\n')
	}
	if err := writeEntry(zw, "events.jsonl", events.Bytes()); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(map[string]interface{}{
		"started":     t.started,
		"stopped":     time.Now(),
		"checkpoints": t.checkpoints,
		"events":      len(t.events),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeEntry(zw, "manifest.json", manifest); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
