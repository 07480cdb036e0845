package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// logrusAdapter routes watermill logs through the application logger
type logrusAdapter struct {
	entry *logrus.Entry
}

// NewWatermillLogger wraps logger as a watermill.LoggerAdapter
func NewWatermillLogger(logger *logrus.Logger) watermill.LoggerAdapter {
	return &logrusAdapter{entry: logrus.NewEntry(logger).WithField("component", "watermill")}
}

func (l *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithError(err).WithFields(logrus.Fields(fields)).Error(msg)
}

func (l *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{entry: l.entry.WithFields(logrus.Fields(fields))}
}
