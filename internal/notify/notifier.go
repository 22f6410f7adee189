package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Notifier delivers a reminder to the learner
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier writes reminders to the application log. It is the fallback
// when no messaging channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	n.logger.Info(title, zap.String("body", body))
	return nil
}

// Multi sends every reminder to all of its notifiers. Delivery succeeds if
// at least one channel accepts it. Fallback notifiers only count when no
// channel is registered.
type Multi struct {
	notifiers []Notifier
	names     []string
	fallback  []bool
	channels  int
	logger    *zap.Logger
}

// NewMulti creates an empty fan-out notifier
func NewMulti(logger *zap.Logger) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{logger: logger}
}

// Add registers a notifier under a name used in logs
func (m *Multi) Add(name string, n Notifier) {
	m.add(name, n, false)
	m.channels++
}

// AddFallback registers a notifier that always receives reminders but does
// not make a delivery succeed while a real channel is registered
func (m *Multi) AddFallback(name string, n Notifier) {
	m.add(name, n, true)
}

func (m *Multi) add(name string, n Notifier, fallback bool) {
	m.notifiers = append(m.notifiers, n)
	m.names = append(m.names, name)
	m.fallback = append(m.fallback, fallback)
}

// Names lists the registered notifiers
func (m *Multi) Names() []string {
	return append([]string(nil), m.names...)
}

func (m *Multi) Notify(ctx context.Context, title, body string) error {
	if len(m.notifiers) == 0 {
		return errors.New("no notifiers configured")
	}

	var errs []error
	delivered := 0
	for i, n := range m.notifiers {
		if err := n.Notify(ctx, title, body); err != nil {
			m.logger.Warn("notifier failed",
				zap.String("notifier", m.names[i]),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
			continue
		}
		if m.channels == 0 || !m.fallback[i] {
			delivered++
		}
	}
	if delivered == 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close releases notifiers that hold connections
func (m *Multi) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if c, ok := n.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
