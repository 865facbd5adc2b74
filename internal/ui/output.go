package ui

import "fmt"

// Status markers prefixed to one-line messages.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"
)

func status(symbol, msg string) string { return symbol + " " + msg }

func Success(msg string) string { return status(SymbolSuccess, msg) }
func Error(msg string) string   { return status(SymbolError, msg) }
func Warning(msg string) string { return status(SymbolWarning, msg) }
func Info(msg string) string    { return status(SymbolInfo, msg) }

func Successf(format string, args ...any) string { return Success(fmt.Sprintf(format, args...)) }
func Warningf(format string, args ...any) string { return Warning(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any) string    { return Info(fmt.Sprintf(format, args...)) }

func Header(msg string) string   { return Bold.Render(msg) }
func FilePath(path string) string { return Accent.Render(path) }
func Hint(msg string) string     { return Muted.Render(msg) }

// ObjectRef renders a server object as Kind:id.
func ObjectRef(kind string, id int64) string {
	return AccentBold.Render(fmt.Sprintf("%s:%d", kind, id))
}

// Count renders "(n noun)" choosing the singular form for one.
func Count(n int, singular, plural string) string {
	noun := plural
	if n == 1 {
		noun = singular
	}
	return fmt.Sprintf("(%d %s)", n, noun)
}
