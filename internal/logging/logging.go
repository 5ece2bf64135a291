// Package logging provides category-scoped loggers for the patcher.
// Every subsystem logs through its own named zap logger so a single
// run can be filtered down to the component being debugged.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryEdit     Category = "edit"
	CategorySafety   Category = "safety"
	CategoryCST      Category = "cst"
	CategoryPattern  Category = "pattern"
	CategoryToml     Category = "toml"
	CategoryPatch    Category = "patch"
	CategoryCompiler Category = "compiler"
	CategoryWatch    Category = "watch"
	CategoryCLI      Category = "cli"
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	level   = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	loggers = map[Category]*zap.SugaredLogger{}
)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	root = l
}

// Initialize reconfigures the process-wide logger. levelName is one of
// debug, info, warn, error; jsonOutput selects the production JSON
// encoder over the console encoder.
func Initialize(levelName string, jsonOutput bool) error {
	lvl, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", levelName, err)
	}

	cfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	root = l
	level.SetLevel(lvl)
	loggers = map[Category]*zap.SugaredLogger{}
	return nil
}

// SetLevel adjusts the level of the current logger without rebuilding it.
func SetLevel(levelName string) error {
	lvl, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", levelName, err)
	}
	level.SetLevel(lvl)
	return nil
}

// Get returns the sugared logger for a category, creating it on first use.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Called by the CLI on exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Edit logs to the edit category.
func Edit(format string, args ...interface{}) {
	Get(CategoryEdit).Infof(format, args...)
}

// EditDebug logs debug to the edit category.
func EditDebug(format string, args ...interface{}) {
	Get(CategoryEdit).Debugf(format, args...)
}

// Safety logs to the safety category.
func Safety(format string, args ...interface{}) {
	Get(CategorySafety).Infof(format, args...)
}

// SafetyDebug logs debug to the safety category.
func SafetyDebug(format string, args ...interface{}) {
	Get(CategorySafety).Debugf(format, args...)
}

// CST logs to the cst category.
func CST(format string, args ...interface{}) {
	Get(CategoryCST).Infof(format, args...)
}

// CSTDebug logs debug to the cst category.
func CSTDebug(format string, args ...interface{}) {
	Get(CategoryCST).Debugf(format, args...)
}

// Pattern logs to the pattern category.
func Pattern(format string, args ...interface{}) {
	Get(CategoryPattern).Infof(format, args...)
}

// PatternDebug logs debug to the pattern category.
func PatternDebug(format string, args ...interface{}) {
	Get(CategoryPattern).Debugf(format, args...)
}

// Toml logs to the toml category.
func Toml(format string, args ...interface{}) {
	Get(CategoryToml).Infof(format, args...)
}

// TomlDebug logs debug to the toml category.
func TomlDebug(format string, args ...interface{}) {
	Get(CategoryToml).Debugf(format, args...)
}

// Patch logs to the patch category.
func Patch(format string, args ...interface{}) {
	Get(CategoryPatch).Infof(format, args...)
}

// PatchDebug logs debug to the patch category.
func PatchDebug(format string, args ...interface{}) {
	Get(CategoryPatch).Debugf(format, args...)
}

// PatchWarn logs warning to the patch category.
func PatchWarn(format string, args ...interface{}) {
	Get(CategoryPatch).Warnf(format, args...)
}

// PatchError logs error to the patch category.
func PatchError(format string, args ...interface{}) {
	Get(CategoryPatch).Errorf(format, args...)
}

// Compiler logs to the compiler category.
func Compiler(format string, args ...interface{}) {
	Get(CategoryCompiler).Infof(format, args...)
}

// CompilerDebug logs debug to the compiler category.
func CompilerDebug(format string, args ...interface{}) {
	Get(CategoryCompiler).Debugf(format, args...)
}

// Watch logs to the watch category.
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Infof(format, args...)
}

// WatchDebug logs debug to the watch category.
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debugf(format, args...)
}

// Timer measures the duration of one operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
