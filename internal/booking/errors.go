package booking

import (
	"errors"
	"strings"

	"github.com/wolfman30/heydoc-scheduler/internal/heydoc"
	"github.com/wolfman30/heydoc-scheduler/internal/notify"
)

// ErrBusy is returned when a booking is already being submitted.
var ErrBusy = errors.New("booking: submission already in progress")

// Kind classifies why a booking did not happen.
type Kind int

const (
	KindUnclassified Kind = iota
	KindUnauthenticated
	KindIncompleteSelection
	KindConflict
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindIncompleteSelection:
		return "incomplete_selection"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_error"
	default:
		return "unclassified"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Messages for locally detected failures.
const (
	MsgSelectDate    = "Please select a date"
	MsgSelectTime    = "Please select a time"
	MsgNoSlotsLoaded = "No available time slots for this date"
	MsgSelectDoctor  = "Please select a doctor"
)

// Error is a classified booking failure. Message is the single string shown
// to the viewer.
type Error struct {
	Kind     Kind
	Message  string
	Redirect string
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError unwraps err into an *Error.
func AsError(err error) (*Error, bool) {
	var bErr *Error
	if errors.As(err, &bErr) {
		return bErr, true
	}
	return nil, false
}

// classificationOrder is the precedence of backend error fields.
var classificationOrder = []struct {
	field string
	kind  Kind
}{
	{heydoc.FieldAppointmentTime, KindConflict},
	{heydoc.FieldAppointmentDate, KindConflict},
	{heydoc.FieldNonField, KindValidation},
	{heydoc.FieldDetail, KindValidation},
}

// Classify maps a submission failure to a Kind and display message. The
// first message of the highest-precedence field present wins; anything else
// falls back to a generic message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if bErr, ok := AsError(err); ok {
		return bErr
	}
	if apiErr, ok := heydoc.AsAPIError(err); ok && apiErr.Fields != nil {
		for _, c := range classificationOrder {
			if msg, found := apiErr.Fields.First(c.field); found && strings.TrimSpace(msg) != "" {
				return &Error{Kind: c.kind, Message: msg, Err: err}
			}
		}
	}
	return &Error{Kind: KindUnclassified, Message: notify.MsgBookingFallback, Err: err}
}
