package loggingx

import (
	"fmt"
	"strings"

	"github.com/dogmatiq/dodeca/logging"
)

// WithPrefix returns a logger that prepends a formatted prefix to every
// message written to next.
//
// If next is nil the default logger is decorated instead.
func WithPrefix(next logging.Logger, f string, v ...interface{}) logging.Logger {
	if next == nil {
		next = logging.DefaultLogger
	}

	text := fmt.Sprintf(f, v...)

	return prefixer{
		next: next,
		text: text,
		// The prefix is prepended to format strings too, so any verbs it
		// happens to contain have to be escaped.
		format: strings.ReplaceAll(text, "%", "%%"),
	}
}

type prefixer struct {
	next   logging.Logger
	text   string
	format string
}

func (p prefixer) Log(f string, v ...interface{}) {
	p.next.Log(p.format+f, v...)
}

func (p prefixer) LogString(s string) {
	p.next.LogString(p.text + s)
}

func (p prefixer) Debug(f string, v ...interface{}) {
	p.next.Debug(p.format+f, v...)
}

func (p prefixer) DebugString(s string) {
	p.next.DebugString(p.text + s)
}

func (p prefixer) IsDebug() bool {
	return p.next.IsDebug()
}
