package actuator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Log is the default actuator. It reports every action through the logger
// and performs no OS-level input. Useful when no native hook is installed
// and for observing what a session would do.
type Log struct {
	log *logrus.Entry
}

// NewLog creates a logging actuator.
func NewLog(logger *logrus.Logger) *Log {
	return &Log{log: logger.WithField("component", "actuator")}
}

func (l *Log) MoveMouse(_ context.Context, x, y int, duration time.Duration) error {
	l.log.WithFields(logrus.Fields{"x": x, "y": y, "duration": duration}).Info("mouse move")
	return nil
}

func (l *Log) Click(_ context.Context, x, y int, button string) error {
	l.log.WithFields(logrus.Fields{"x": x, "y": y, "button": button}).Info("mouse click")
	return nil
}

func (l *Log) TypeRune(_ context.Context, r rune) error {
	l.log.WithField("char", string(r)).Debug("type rune")
	return nil
}

func (l *Log) PressKey(_ context.Context, key string) error {
	l.log.WithField("key", key).Info("key press")
	return nil
}
