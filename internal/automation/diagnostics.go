package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ecobee_automation/internal/logger"
	"ecobee_automation/internal/models"

	"github.com/google/uuid"
)

// Capturer provides the raw evidence for a diagnostic artifact: the rendered
// page and a visual capture. The production implementation is the session's
// navigator; tests substitute a fake.
type Capturer interface {
	SnapshotHTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// ArtifactSink mirrors captured artifact metadata into a queryable index.
// Optional; a nil sink means the collector only keeps its in-memory list.
type ArtifactSink interface {
	Insert(ctx context.Context, a models.DiagnosticArtifact) error
	Delete(ctx context.Context, id string) error
}

// Collector writes failure artifacts (page HTML + screenshot) to a bounded
// on-disk store. Eviction is FIFO by capture time, by count on every capture
// and by age via Sweep. Capture problems are logged and swallowed: evidence
// collection must never displace the error it documents.
type Collector struct {
	enabled      bool
	dir          string
	maxArtifacts int
	maxAge       time.Duration
	sink         ArtifactSink
	log          *logger.Logger

	mu        sync.Mutex
	artifacts []models.DiagnosticArtifact // oldest first
}

func NewCollector(enabled bool, dir string, maxArtifacts int, maxAge time.Duration, sink ArtifactSink, log *logger.Logger) *Collector {
	return &Collector{
		enabled:      enabled,
		dir:          dir,
		maxArtifacts: maxArtifacts,
		maxAge:       maxAge,
		sink:         sink,
		log:          log,
	}
}

// Capture records evidence for one failed attempt. Returns the artifact id,
// or "" when capture is disabled or failed.
func (c *Collector) Capture(ctx context.Context, cap Capturer, op string, attempt int, cause error) string {
	if c == nil || !c.enabled || cap == nil {
		return ""
	}

	a := models.DiagnosticArtifact{
		ID:         uuid.NewString(),
		CapturedAt: time.Now().UTC(),
		Operation:  op,
		Attempt:    attempt,
		ErrorKind:  string(KindOf(cause)),
	}
	if cause != nil {
		a.Summary = cause.Error()
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.log.Warnw("diagnostics_dir_failed", "dir", c.dir, "err", err)
		return ""
	}

	base := fmt.Sprintf("%s_%s", a.CapturedAt.Format("20060102T150405"), a.ID[:8])
	if html, err := cap.SnapshotHTML(ctx); err != nil {
		c.log.Warnw("diagnostics_html_failed", "op", op, "err", err)
	} else {
		path := filepath.Join(c.dir, base+".html")
		if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
			c.log.Warnw("diagnostics_html_write_failed", "path", path, "err", err)
		} else {
			a.HTMLPath = path
		}
	}
	if png, err := cap.Screenshot(ctx); err != nil {
		c.log.Warnw("diagnostics_screenshot_failed", "op", op, "err", err)
	} else {
		path := filepath.Join(c.dir, base+".png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			c.log.Warnw("diagnostics_screenshot_write_failed", "path", path, "err", err)
		} else {
			a.ScreenPath = path
		}
	}

	if a.HTMLPath == "" && a.ScreenPath == "" {
		return ""
	}

	c.mu.Lock()
	c.artifacts = append(c.artifacts, a)
	evicted := c.evictLocked(time.Now().UTC())
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.Insert(ctx, a); err != nil {
			c.log.Warnw("diagnostics_index_failed", "id", a.ID, "err", err)
		}
	}
	c.remove(ctx, evicted)

	c.log.Infow("diagnostic_captured", "op", op, "attempt", attempt, "artifact", a.ID)
	return a.ID
}

// Sweep drops artifacts older than the configured age. Run periodically.
func (c *Collector) Sweep(ctx context.Context) int {
	if c == nil || !c.enabled {
		return 0
	}
	c.mu.Lock()
	evicted := c.evictLocked(time.Now().UTC())
	c.mu.Unlock()
	c.remove(ctx, evicted)
	return len(evicted)
}

// List returns a copy of the current index, oldest first.
func (c *Collector) List() []models.DiagnosticArtifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.DiagnosticArtifact, len(c.artifacts))
	copy(out, c.artifacts)
	return out
}

// evictLocked trims by age first, then by count, oldest out first.
func (c *Collector) evictLocked(now time.Time) []models.DiagnosticArtifact {
	var evicted []models.DiagnosticArtifact

	if c.maxAge > 0 {
		cutoff := now.Add(-c.maxAge)
		for len(c.artifacts) > 0 && c.artifacts[0].CapturedAt.Before(cutoff) {
			evicted = append(evicted, c.artifacts[0])
			c.artifacts = c.artifacts[1:]
		}
	}
	if c.maxArtifacts > 0 {
		for len(c.artifacts) > c.maxArtifacts {
			evicted = append(evicted, c.artifacts[0])
			c.artifacts = c.artifacts[1:]
		}
	}
	return evicted
}

func (c *Collector) remove(ctx context.Context, evicted []models.DiagnosticArtifact) {
	for _, a := range evicted {
		for _, path := range []string{a.HTMLPath, a.ScreenPath} {
			if path == "" {
				continue
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				c.log.Warnw("diagnostics_evict_failed", "path", path, "err", err)
			}
		}
		if c.sink != nil {
			if err := c.sink.Delete(ctx, a.ID); err != nil {
				c.log.Warnw("diagnostics_index_delete_failed", "id", a.ID, "err", err)
			}
		}
	}
}
