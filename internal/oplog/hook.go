package oplog

import (
	"github.com/sirupsen/logrus"
)

// CmdletField is the logrus field carrying the invoking command name; rows
// written through the hook pick it up as CallingCmdlet.
const CmdletField = "cmdlet"

// Hook mirrors logrus entries at info level and above into the operation
// log, so every console message lands in the audit trail automatically.
type Hook struct {
	writer *Writer
}

// NewHook creates a logrus hook backed by the given writer.
func NewHook(writer *Writer) *Hook {
	return &Hook{writer: writer}
}

// Levels returns the levels the hook fires on.
func (h *Hook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

// Fire appends the entry to the operation log.
func (h *Hook) Fire(entry *logrus.Entry) error {
	level := LevelInfo
	switch entry.Level {
	case logrus.WarnLevel:
		level = LevelWarning
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		level = LevelError
	}

	cmdlet := ""
	if v, ok := entry.Data[CmdletField]; ok {
		if s, ok := v.(string); ok {
			cmdlet = s
		}
	}

	message := entry.Message
	if err, ok := entry.Data[logrus.ErrorKey]; ok {
		if e, ok := err.(error); ok {
			message += ": " + e.Error()
		}
	}

	return h.writer.Append(level, cmdlet, message)
}
