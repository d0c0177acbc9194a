// Package notify carries outcome signals from the scheduling engine to the
// notification collaborator that renders them (toasts, banners).
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/heydoc-scheduler/pkg/logging"
)

// Level distinguishes success from error signals.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Messages emitted by the engine.
const (
	MsgBooked          = "Appointment booked successfully! You will receive a confirmation email."
	MsgCancelled       = "Appointment cancelled successfully"
	MsgCancelFailed    = "Failed to cancel appointment"
	MsgBookingFallback = "Failed to book appointment. Please try again."
	MsgLoginRequired   = "Please log in to book an appointment"
)

// CancelTooLate explains a cancel refused because the appointment starts
// within lead of now.
func CancelTooLate(lead time.Duration) string {
	span := lead.String()
	switch {
	case lead == time.Hour:
		span = "1 hour"
	case lead > 0 && lead%time.Hour == 0:
		span = fmt.Sprintf("%d hours", int(lead/time.Hour))
	}
	return fmt.Sprintf("Appointments can only be cancelled more than %s in advance", span)
}

// Notification is one signal for the presentation layer.
type Notification struct {
	Level   Level     `json:"type"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives outcome signals. Implementations must not block.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier writes every signal to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger.Component("notify")}
}

func (n *LogNotifier) Success(message string) {
	n.logger.Info("notification", "type", LevelSuccess, "message", message)
}

func (n *LogNotifier) Error(message string) {
	n.logger.Warn("notification", "type", LevelError, "message", message)
}

// Feed buffers signals until the presentation layer drains them. The oldest
// entries are dropped once capacity is reached.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
}

// NewFeed creates a feed holding at most capacity undrained signals.
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 50
	}
	return &Feed{capacity: capacity, now: time.Now}
}

func (f *Feed) Success(message string) { f.push(LevelSuccess, message) }

func (f *Feed) Error(message string) { f.push(LevelError, message) }

func (f *Feed) push(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Notification{Level: level, Message: message, At: f.now()})
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

// Drain returns and clears the buffered signals.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Multi fans a signal out to several notifiers.
type Multi []Notifier

func (m Multi) Success(message string) {
	for _, n := range m {
		if n != nil {
			n.Success(message)
		}
	}
}

func (m Multi) Error(message string) {
	for _, n := range m {
		if n != nil {
			n.Error(message)
		}
	}
}

// Discard drops every signal.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}
