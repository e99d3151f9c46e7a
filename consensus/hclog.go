package consensus

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/streamstore/logengine/logging"
)

// hclogAdapter routes hashicorp/raft's internal logging through the
// engine's own leveled logging package instead of carrying a second,
// independent log sink — every other component logs through `logging`,
// and raft's Config.Logger is the one place the ecosystem forces a
// different interface on us.
type hclogAdapter struct {
	name  string
	args  []interface{}
	level hclog.Level
}

func newHCLogAdapter(name string) *hclogAdapter {
	return &hclogAdapter{name: name, level: hclog.Info}
}

func (h *hclogAdapter) format(msg string, args ...interface{}) string {
	all := make([]interface{}, 0, len(h.args)+len(args))
	all = append(all, h.args...)
	all = append(all, args...)
	if len(all) == 0 {
		return fmt.Sprintf("[%s] %s", h.name, msg)
	}
	pairs := make([]string, 0, len(all)/2+1)
	for i := 0; i < len(all); i += 2 {
		if i+1 < len(all) {
			pairs = append(pairs, fmt.Sprintf("%v=%v", all[i], all[i+1]))
		} else {
			pairs = append(pairs, fmt.Sprintf("%v", all[i]))
		}
	}
	return fmt.Sprintf("[%s] %s %s", h.name, msg, strings.Join(pairs, " "))
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) {
	if h.IsTrace() {
		logging.Debug(h.format(msg, args...))
	}
}

func (h *hclogAdapter) Debug(msg string, args ...interface{}) {
	if h.IsDebug() {
		logging.Debug(h.format(msg, args...))
	}
}

func (h *hclogAdapter) Info(msg string, args ...interface{}) {
	if h.IsInfo() {
		logging.Info(h.format(msg, args...))
	}
}

func (h *hclogAdapter) Warn(msg string, args ...interface{}) {
	if h.IsWarn() {
		logging.Warn(h.format(msg, args...))
	}
}

func (h *hclogAdapter) Error(msg string, args ...interface{}) {
	logging.Error(h.format(msg, args...))
}

func (h *hclogAdapter) IsTrace() bool { return h.level <= hclog.Trace }
func (h *hclogAdapter) IsDebug() bool { return h.level <= hclog.Debug }
func (h *hclogAdapter) IsInfo() bool  { return h.level <= hclog.Info }
func (h *hclogAdapter) IsWarn() bool  { return h.level <= hclog.Warn }
func (h *hclogAdapter) IsError() bool { return h.level <= hclog.Error }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return h.args }

func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	merged := make([]interface{}, 0, len(h.args)+len(args))
	merged = append(merged, h.args...)
	merged = append(merged, args...)
	return &hclogAdapter{name: h.name, level: h.level, args: merged}
}

func (h *hclogAdapter) Name() string { return h.name }

func (h *hclogAdapter) Named(name string) hclog.Logger {
	full := name
	if h.name != "" {
		full = h.name + "." + name
	}
	return &hclogAdapter{name: full, level: h.level, args: h.args}
}

func (h *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{name: name, level: h.level, args: h.args}
}

func (h *hclogAdapter) SetLevel(level hclog.Level) { h.level = level }
func (h *hclogAdapter) GetLevel() hclog.Level       { return h.level }

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace:
		h.Trace(msg, args...)
	case hclog.Debug:
		h.Debug(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	default:
		h.Info(msg, args...)
	}
}

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return &hclogWriter{h: h}
}

type hclogWriter struct{ h *hclogAdapter }

func (w *hclogWriter) Write(p []byte) (int, error) {
	w.h.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
