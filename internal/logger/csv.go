// Package logger is the async CSV writer for Snapshots. Grounded on the
// teacher's internal/logger/csv.go: a buffered channel decouples the tick
// goroutine from disk I/O, a background goroutine batches writes through
// bufio and rotates the file daily.
package logger

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"infusioncore/internal/core"
)

const (
	chanSize    = 4096
	bufSize     = 1 << 20 // 1 MB
	flushPeriod = 1 * time.Second
)

// Logger is the async CSV writer. Log() is a non-blocking send from the
// tick goroutine; a dedicated goroutine owns the file handle and does all
// the actual I/O.
type Logger struct {
	ch     chan core.Snapshot
	logDir string
}

// NewLogger creates the logger, rotating daily CSV files under logDir, and
// starts its background goroutine.
func NewLogger(logDir string) *Logger {
	l := &Logger{
		ch:     make(chan core.Snapshot, chanSize),
		logDir: logDir,
	}
	go l.run()
	return l
}

// Log is a non-blocking send. The row is dropped if the channel is full —
// logging never stalls the tick loop.
func (l *Logger) Log(snap core.Snapshot) {
	select {
	case l.ch <- snap:
	default:
	}
}

func (l *Logger) run() {
	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		log.Printf("logger: failed to create dir: %v", err)
		return
	}

	var (
		currentDay string
		file       *os.File
		writer     *bufio.Writer
	)

	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	header := strings.Join(core.Columns, ",")

	openFile := func(day string) {
		if file != nil {
			writer.Flush()
			file.Close()
		}

		path := filepath.Join(l.logDir, day+".csv")
		var err error
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("logger: failed to open %s: %v", path, err)
			return
		}
		writer = bufio.NewWriterSize(file, bufSize)

		info, _ := file.Stat()
		if info != nil && info.Size() == 0 {
			fmt.Fprintln(writer, header)
		}

		currentDay = day
		log.Printf("logger: writing to %s", path)
	}

	for {
		select {
		case snap, ok := <-l.ch:
			if !ok {
				if writer != nil {
					writer.Flush()
				}
				if file != nil {
					file.Close()
				}
				return
			}

			day := time.UnixMilli(snap.TimeMs).UTC().Format("2006-01-02")
			if day != currentDay {
				openFile(day)
			}
			if writer == nil {
				continue
			}

			fmt.Fprintln(writer, snap.CSVRow())

		case <-ticker.C:
			if writer != nil {
				writer.Flush()
			}
		}
	}
}
