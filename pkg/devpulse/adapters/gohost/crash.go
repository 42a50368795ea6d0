// crash.go persists Go runtime crash reports and reads them back as fatal
// last errors. A crashed process cannot report itself, so its report is sent
// by the next run (CrashDir) or by a sidecar (CrashWatcher).

package gohost

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

const (
	crashPrefix     = "crash-"
	crashSuffix     = ".log"
	reportedSuffix  = ".reported"
	crashDebounce   = 200 * time.Millisecond
	maxCrashFileLen = 1 << 20
)

// EnableCrashOutput directs the runtime's crash report for this process to a
// new file in dir and returns its path. Empty files left by earlier runs that
// did not crash are removed.
func EnableCrashOutput(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	removeEmptyCrashFiles(dir)

	name := fmt.Sprintf("%s%d-%d%s", crashPrefix, os.Getpid(), time.Now().UnixNano(), crashSuffix)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open crash file: %w", err)
	}
	defer f.Close()

	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		return "", fmt.Errorf("set crash output: %w", err)
	}
	return path, nil
}

func removeEmptyCrashFiles(dir string) {
	for _, path := range crashFiles(dir) {
		if info, err := os.Stat(path); err == nil && info.Size() == 0 {
			_ = os.Remove(path)
		}
	}
}

func crashFiles(dir string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, crashPrefix+"*"+crashSuffix))
	return matches
}

func isCrashFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, crashPrefix) && strings.HasSuffix(base, crashSuffix)
}

// ParseCrash converts a runtime crash report into a fatal RuntimeError. The
// origin is the innermost frame outside the panic machinery.
func ParseCrash(data []byte) (*devpulse.RuntimeError, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxCrashFileLen)

	var message string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "panic: ") || strings.HasPrefix(line, "fatal error: ") {
			message = strings.TrimSuffix(line, " [recovered]")
			break
		}
	}
	if message == "" {
		return nil, errors.New("no panic or fatal error in crash report")
	}

	var trace []devpulse.TraceFrame
	inGoroutine := false
	var function string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case !inGoroutine:
			inGoroutine = strings.HasPrefix(line, "goroutine ")
		case line == "" || strings.HasPrefix(line, "created by ") || strings.HasPrefix(line, "goroutine "):
			if len(trace) > 0 {
				return crashError(message, trace), nil
			}
		case strings.HasPrefix(line, "\t"):
			if function == "" {
				continue
			}
			file, lineNo := parseFileLine(strings.TrimSpace(line))
			trace = append(trace, devpulse.TraceFrame{Function: function, File: file, Line: lineNo})
			function = ""
		default:
			function = trimArgs(line)
		}
	}
	return crashError(message, trace), nil
}

func crashError(message string, trace []devpulse.TraceFrame) *devpulse.RuntimeError {
	var file string
	var line int
	for _, f := range trace {
		if !isRuntimeFrame(f.Function) {
			file, line = f.File, f.Line
			break
		}
	}
	if file == "" && len(trace) > 0 {
		file, line = trace[0].File, trace[0].Line
	}
	return devpulse.NewRuntimeError(devpulse.SeverityFatal, message, file, line).WithTrace(trace)
}

// isRuntimeFrame reports frames that belong to the panic machinery. The
// runtime prints gopanic as a bare "panic".
func isRuntimeFrame(function string) bool {
	return function == "panic" || strings.HasPrefix(function, "runtime.")
}

// trimArgs strips the argument list from "pkg.(*T).M(0x1, ...)".
func trimArgs(line string) string {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, ")") {
		return line
	}
	if i := strings.LastIndex(line, "("); i > 0 {
		return line[:i]
	}
	return line
}

// parseFileLine splits "/src/main.go:12 +0x1d".
func parseFileLine(s string) (string, int) {
	if i := strings.LastIndex(s, " +0x"); i > 0 {
		s = s[:i]
	}
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, 0
	}
	return s[:i], n
}

// CrashDir reports crashes of earlier runs found in a crash directory.
// It implements devpulse.LastErrorSource.
type CrashDir struct {
	dir string
}

// PreviousCrash returns a last-error source over dir.
func PreviousCrash(dir string) *CrashDir {
	return &CrashDir{dir: dir}
}

// LastError returns the newest unreported crash and marks it reported.
func (c *CrashDir) LastError() *devpulse.RuntimeError {
	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, path := range crashFiles(c.dir) {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			continue
		}
		found = append(found, candidate{path, info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	for _, cand := range found {
		rerr, err := readCrash(cand.path)
		if err != nil {
			continue
		}
		return rerr
	}
	return nil
}

// readCrash parses a crash file and renames it so it is reported once.
func readCrash(path string) (*devpulse.RuntimeError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > maxCrashFileLen {
		data = data[:maxCrashFileLen]
	}
	rerr, err := ParseCrash(data)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(path, path+reportedSuffix); err != nil {
		return nil, fmt.Errorf("mark crash reported: %w", err)
	}
	return rerr, nil
}

// CrashWatcher watches a crash directory and reports crash files as they are
// written by other processes.
type CrashWatcher struct {
	dir      string
	report   func(ctx context.Context, crash *devpulse.RuntimeError)
	logger   devpulse.Logger
	debounce time.Duration
}

// NewCrashWatcher creates a watcher that passes each new crash to report.
func NewCrashWatcher(dir string, report func(ctx context.Context, crash *devpulse.RuntimeError), logger devpulse.Logger) *CrashWatcher {
	if logger == nil {
		logger = devpulse.DefaultLogger()
	}
	return &CrashWatcher{
		dir:      dir,
		report:   report,
		logger:   logger,
		debounce: crashDebounce,
	}
}

// Run reports crash files already present and then watches for new ones.
// It blocks until ctx is cancelled.
func (w *CrashWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	var mu sync.Mutex
	pending := make(map[string]bool)
	for _, path := range crashFiles(w.dir) {
		pending[path] = true
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		sort.Strings(batch)
		for _, p := range batch {
			w.handle(ctx, p)
		}
	}
	flush()

	// Crash output is written in several chunks; wait for writes to settle.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isCrashFile(event.Name) {
				continue
			}
			mu.Lock()
			pending[event.Name] = true
			mu.Unlock()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("msg", "Crash watcher error",
				"component", "crashwatch",
				"error", err)
		}
	}
}

func (w *CrashWatcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return
	}
	rerr, err := readCrash(path)
	if err != nil {
		w.logger.Warn("msg", "Unreadable crash file",
			"component", "crashwatch",
			"path", path,
			"error", err)
		return
	}
	w.logger.Info("msg", "Reporting crash",
		"component", "crashwatch",
		"path", path)
	w.report(ctx, rerr)
}
