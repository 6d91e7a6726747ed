package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rule = "============================================================"

// Reporter prints human-readable progress lines. When a log file is
// attached every line is also appended to it with a timestamp.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
	log *os.File
	now func() time.Time
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = io.Discard
	}
	return &Reporter{out: w, now: time.Now}
}

// OpenLog mirrors every following line into the file at path, creating its
// directory if needed.
func (r *Reporter) OpenLog(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.log = f
	r.mu.Unlock()
	return nil
}

// Close closes the log file, if any.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		return nil
	}
	err := r.log.Close()
	r.log = nil
	return err
}

// Printf writes one or more lines.
func (r *Reporter) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, msg)
	if r.log == nil {
		return
	}
	ts := r.now().Format("2006-01-02 15:04:05")
	for _, line := range strings.Split(msg, "\n") {
		_, _ = r.log.WriteString("[" + ts + "] " + line + "\n")
	}
}

func (r *Reporter) banner(title string) {
	r.Printf("\n%s\n%s\n%s", rule, title, rule)
}

func (r *Reporter) header(name string, scale float64) {
	r.Printf("\n%s\nProcessing: %s\nScale factor: %gx\n%s", rule, name, scale, rule)
}

func (r *Reporter) skipped(name string) {
	r.Printf("skip: %s (already scaled)", name)
}

func (r *Reporter) warn(format string, args ...any) {
	r.Printf("warning: "+format, args...)
}

func (r *Reporter) fail(format string, args ...any) {
	r.Printf("error: "+format, args...)
}

func (r *Reporter) summary(s Summary) {
	r.banner("BATCH RESCALE COMPLETE")
	r.Printf("Success: %d\nFailed: %d\nSkipped: %d", s.Succeeded, s.Failed, s.Skipped)
	r.Printf(rule)
}
