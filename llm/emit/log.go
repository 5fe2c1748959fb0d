package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing events to a writer in one of
// two modes:
//   - Text mode: human-readable key=value lines
//   - JSON mode: one JSON object per line (JSONL)
//
// Example text output:
//
//	[provider_attempt] request=req-42 provider=anthropic model=claude-3-5-sonnet-20241022 meta={"attempt":0}
//
// Example JSON output:
//
//	{"request_id":"req-42","provider":"anthropic","model":"claude-3-5-sonnet-20241022","msg":"provider_attempt","meta":{"attempt":0}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes one event in the configured format. Concurrent calls are
// serialized so lines never interleave.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RequestID string                 `json:"request_id"`
		Provider  string                 `json:"provider,omitempty"`
		Model     string                 `json:"model,omitempty"`
		Msg       string                 `json:"msg"`
		Meta      map[string]interface{} `json:"meta,omitempty"`
	}{
		RequestID: event.RequestID,
		Provider:  event.Provider,
		Model:     event.Model,
		Msg:       event.Msg,
		Meta:      event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] request=%s", event.Msg, event.RequestID)
	if event.Provider != "" {
		fmt.Fprintf(l.writer, " provider=%s", event.Provider)
	}
	if event.Model != "" {
		fmt.Fprintf(l.writer, " model=%s", event.Model)
	}

	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
