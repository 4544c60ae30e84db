package sidecar

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// StderrLogger writes leveled, free-form log lines to stderr, leaving
// stdout exclusively for the wire protocol. A thin layer over the standard
// log package with a level prefix.
type StderrLogger struct {
	std *log.Logger
}

// NewStderrLogger builds a StderrLogger writing through the standard
// library logger configured with a timestamp prefix.
func NewStderrLogger() *StderrLogger {
	return &StderrLogger{std: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *StderrLogger) Debug(msg string, args ...interface{}) { l.write("DEBUG", msg, args) }
func (l *StderrLogger) Info(msg string, args ...interface{})  { l.write("INFO", msg, args) }
func (l *StderrLogger) Warn(msg string, args ...interface{})  { l.write("WARN", msg, args) }
func (l *StderrLogger) Error(msg string, args ...interface{}) { l.write("ERROR", msg, args) }

func (l *StderrLogger) write(level, msg string, args []interface{}) {
	if len(args) == 0 {
		l.std.Printf("[%s] %s", level, msg)
		return
	}
	var b strings.Builder
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.std.Printf("[%s] %s%s", level, msg, b.String())
}
