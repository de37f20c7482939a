package experiment

import (
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

// runLog persists run lifecycle records, one JSON object per line. Every
// write is best-effort: a disk issue must never stall the phase loop.
type runLog struct {
	mu   sync.Mutex
	file *os.File
}

func openRunLog(path string) *runLog {
	if path == "" {
		return &runLog{}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logs.Warnf("open run log %s, err: %+v", path, err)
		return &runLog{}
	}
	return &runLog{file: file}
}

// write appends one record of the given type, stamped with the current
// RFC3339 time. fields must not contain "type" or "at".
func (l *runLog) write(recordType string, fields map[string]any) {
	if l == nil || l.file == nil {
		return
	}

	record := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		record[k] = v
	}
	record["type"] = recordType
	record["at"] = time.Now().Format(time.RFC3339)

	line, err := sonic.Marshal(record)
	if err != nil {
		logs.Debugf("marshal run log record, err: %+v", err)
		return
	}

	l.mu.Lock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		logs.Debugf("append run log record, err: %+v", err)
	}
	l.mu.Unlock()
}

func (l *runLog) close() {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	_ = l.file.Close()
	l.file = nil
	l.mu.Unlock()
}
