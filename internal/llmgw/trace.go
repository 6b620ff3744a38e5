package llmgw

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TraceEntry is one JSON line appended to a per-stage trace file (spec.md
// §4.1's trace(stage, payload)). Authorization material is never stored here
// — callers pass already-masked payloads.
type TraceEntry struct {
	Stage     string         `json:"stage"`
	Label     string         `json:"trace_label"`
	Tier      int            `json:"parse_tier,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Err       string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

// Tracer writes debug trace lines for stages whose debug flag is enabled.
// One file per stage, opened lazily and kept append-only for the process
// lifetime — mirrors the teacher's single manifold.log append-writer idiom,
// generalized to per-stage files.
type Tracer struct {
	dir     string
	enabled map[string]bool

	mu    sync.Mutex
	files map[string]*os.File
}

func NewTracer(dir string, enabled map[string]bool) *Tracer {
	return &Tracer{dir: dir, enabled: enabled, files: map[string]*os.File{}}
}

// Trace appends entry to the stage's trace file if that stage's debug flag is
// on. Failures to write are logged and otherwise swallowed — tracing
// must never fail a request.
func (t *Tracer) Trace(stage string, entry TraceEntry) {
	if t == nil || !t.enabled[stage] {
		return
	}
	entry.Stage = stage
	entry.Timestamp = time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[stage]
	if !ok {
		if err := os.MkdirAll(t.dir, 0o755); err != nil {
			log.Error().Err(err).Str("dir", t.dir).Msg("llmgw: trace dir create failed")
			return
		}
		path := filepath.Join(t.dir, stage+".jsonl")
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("llmgw: trace file open failed")
			return
		}
		t.files[stage] = f
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		log.Error().Err(err).Str("stage", stage).Msg("llmgw: trace write failed")
	}
}

// maskAuth redacts an Authorization-style header value for log lines,
// keeping only the first and last four characters so operators can tell keys
// apart without the
// secret ever reaching the trace file.
func maskAuth(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "…" + v[len(v)-4:]
}
