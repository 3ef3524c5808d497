package controller

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// DebugLog is the per-session log shown in the page's debug panel. It keeps
// the newest limit lines.
type DebugLog struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func NewDebugLog(limit int) *DebugLog {
	if limit < 1 {
		limit = 1
	}
	return &DebugLog{limit: limit}
}

// Add appends one line per arg, each prefixed with the timestamp. Strings
// and errors are written as-is; anything else is indented JSON.
func (d *DebugLog) Add(at time.Time, args ...any) {
	stamp := at.Local().Format(timeLayout)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, arg := range args {
		d.lines = append(d.lines, stamp+" "+renderArg(arg))
	}
	if over := len(d.lines) - d.limit; over > 0 {
		d.lines = append(d.lines[:0:0], d.lines[over:]...)
	}
}

func (d *DebugLog) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d *DebugLog) String() string {
	return strings.Join(d.Lines(), "\n")
}

func renderArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case nil:
		return "null"
	}

	data, err := json.MarshalIndent(arg, "", "    ")
	if err != nil {
		return fmt.Sprintf("%v", arg)
	}
	return string(data)
}
