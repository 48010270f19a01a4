package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-go/vai-phone/pkg/call"
)

// FileStore writes one plain-text file per call into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the record to call_<timestamp>_<sid>.txt.
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	name := fmt.Sprintf("call_%s_%s.txt", rec.StartedAt.Format("20060102_150405"), rec.CallSID)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, []byte(formatRecord(rec)), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func formatRecord(rec Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Call: %s\n", rec.CallSID)
	fmt.Fprintf(&b, "From: %s\n", rec.From)
	fmt.Fprintf(&b, "To: %s\n", rec.To)
	fmt.Fprintf(&b, "Started: %s\n", rec.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Duration: %ds\n", int(rec.Duration.Seconds()))
	b.WriteString("\n")

	for _, t := range rec.Turns {
		speaker := "Caller"
		if t.Speaker == call.SpeakerAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.At.Format("15:04:05"), speaker, t.Text)
	}
	return b.String()
}
