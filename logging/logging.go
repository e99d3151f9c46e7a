package logging

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// logging levels
const (
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

var levelWeight = map[string]int{
	DEBUG: 1,
	INFO:  2,
	WARN:  3,
	ERROR: 4,
}

var levelColor = map[string]*color.Color{
	DEBUG: color.New(color.FgHiBlack),
	INFO:  color.New(color.FgCyan),
	WARN:  color.New(color.FgYellow),
	ERROR: color.New(color.FgRed, color.Bold),
}

// LogLevel defines the current logging level (default is INFO)
var LogLevel = "INFO"

var out = colorable.NewColorable(os.Stdout)

func init() {
	// colorable degrades to plain text automatically when stdout isn't a
	// TTY; isatty.IsTerminal just lets us skip even building the color
	// escape codes in that case.
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	log.SetOutput(out)
}

// SetLogLevel sets the log level for filtering logs
func SetLogLevel(logLevel string) {
	LogLevel = logLevel
}

// Log writes a log message at a specified level, formatted with optional arguments
func Log(level, message string, a ...any) {
	if levelWeight[level] < levelWeight[LogLevel] {
		return
	}
	tag := "[" + level + "]"
	if c, ok := levelColor[level]; ok {
		tag = c.Sprint(tag)
	}
	log.Printf("%s %s\n", tag, fmt.Sprintf(message, a...))
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	Log(DEBUG, message, a...)
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	Log(INFO, message, a...)
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	Log(WARN, message, a...)
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	Log(ERROR, message, a...)
}

// Panic exits with a panic; used for invariant violations that must stop
// the process rather than be handled (§7 "fatal assertions").
func Panic(message string, a ...any) {
	panic(fmt.Sprintf(message, a...))
}
