// Package klog layers leveled, module-tagged records on top of the kfmt
// output primitives. It is meant for boot progress and error reporting;
// trap and context-switch paths never log.
package klog

import "github.com/Oxmose/roOs-sub001/kernel/kfmt"

// Level describes the severity of a log record.
type Level uint8

const (
	// LevelDebug records are only emitted when the debug level is enabled.
	LevelDebug Level = iota

	// LevelInfo records report regular boot progress.
	LevelInfo

	// LevelSuccess records report the completion of an init stage.
	LevelSuccess

	// LevelError records report recoverable errors.
	LevelError
)

var levelTags = [...]string{"DEBUG", "INFO", "OK", "ERROR"}

// minLevel silences records below it; boot code raises it once the debug
// console is no longer needed.
var minLevel = LevelInfo

// SetMinLevel adjusts the minimum severity that gets emitted.
func SetMinLevel(l Level) { minLevel = l }

func output(l Level, module, format string, args ...interface{}) {
	if l < minLevel {
		return
	}
	kfmt.Printf("[%s] %s: ", levelTags[l], module)
	kfmt.Printf(format, args...)
	kfmt.Printf("\n")
}

// Debug emits a debug record for the given module.
func Debug(module, format string, args ...interface{}) {
	output(LevelDebug, module, format, args...)
}

// Info emits an informational record for the given module.
func Info(module, format string, args ...interface{}) {
	output(LevelInfo, module, format, args...)
}

// Success emits an init-stage completion record for the given module.
func Success(module, format string, args ...interface{}) {
	output(LevelSuccess, module, format, args...)
}

// Error emits an error record for the given module.
func Error(module, format string, args ...interface{}) {
	output(LevelError, module, format, args...)
}
