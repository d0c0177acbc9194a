// Package heydoc contains the HeyDoc REST backend client and its wire types.
package heydoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used by every date field.
const DateLayout = "2006-01-02"

// Status is an appointment lifecycle state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ParseStatus normalises a backend status label ("No Show", "CANCELLED").
func ParseStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Status(s)
}

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// PaymentStatus mirrors the backend payment state of an appointment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Decimal is a money amount kept in its backend string form ("150.00").
type Decimal string

// UnmarshalJSON accepts both JSON strings and numbers.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("heydoc: decimal: %w", err)
	}
	*d = Decimal(n.String())
	return nil
}

// Float returns the numeric value, or 0 when the amount is empty or malformed.
func (d Decimal) Float() float64 {
	f, err := strconv.ParseFloat(string(d), 64)
	if err != nil {
		return 0
	}
	return f
}

// User is the account behind a patient or doctor.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsDoctor  bool   `json:"is_doctor,omitempty"`
	IsPatient bool   `json:"is_patient,omitempty"`
}

// UnmarshalJSON accepts either a nested user object or a bare id.
func (u *User) UnmarshalJSON(b []byte) error {
	if id, ok, err := bareID(b); ok || err != nil {
		if err == nil && id != 0 {
			u.ID = id
		}
		return err
	}
	type alias User
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*u = User(a)
	return nil
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Clinic is the practice location an appointment is held at.
type Clinic struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address,omitempty"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

// UnmarshalJSON accepts either a nested clinic object or a bare id.
func (c *Clinic) UnmarshalJSON(b []byte) error {
	if id, ok, err := bareID(b); ok || err != nil {
		if err == nil && id != 0 {
			c.ID = id
		}
		return err
	}
	type alias Clinic
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*c = Clinic(a)
	return nil
}

// Doctor is the read-only slice of a doctor profile the engine consumes.
type Doctor struct {
	ID              int64   `json:"id"`
	User            *User   `json:"user,omitempty"`
	ConsultationFee Decimal `json:"consultation_fee,omitempty"`
	PrimaryClinic   *Clinic `json:"primary_clinic,omitempty"`
	IsAvailable     bool    `json:"is_available,omitempty"`
}

// UnmarshalJSON accepts either a nested doctor object or a bare id.
func (d *Doctor) UnmarshalJSON(b []byte) error {
	if id, ok, err := bareID(b); ok || err != nil {
		if err == nil && id != 0 {
			d.ID = id
		}
		return err
	}
	type alias Doctor
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*d = Doctor(a)
	return nil
}

// ClinicID returns the primary clinic id, if the profile carries one.
func (d Doctor) ClinicID() *int64 {
	if d.PrimaryClinic == nil || d.PrimaryClinic.ID == 0 {
		return nil
	}
	id := d.PrimaryClinic.ID
	return &id
}

// Appointment is a booked consultation as returned by the backend.
type Appointment struct {
	ID              int64         `json:"id"`
	Patient         User          `json:"patient"`
	Doctor          Doctor        `json:"doctor"`
	Clinic          *Clinic       `json:"clinic,omitempty"`
	AppointmentDate string        `json:"appointment_date"`
	AppointmentTime string        `json:"appointment_time"`
	Duration        int           `json:"duration"`
	Status          Status        `json:"status"`
	ConsultationFee Decimal       `json:"consultation_fee"`
	Symptoms        string        `json:"symptoms,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	BookingID       string        `json:"booking_id"`
	PaymentStatus   PaymentStatus `json:"payment_status,omitempty"`
	CreatedAt       time.Time     `json:"created_at,omitzero"`
}

// UnmarshalJSON resolves the status from status_name, a status string, or a
// nested {id, name} status object. A record without any status is a freshly
// created appointment and decodes as scheduled.
func (a *Appointment) UnmarshalJSON(b []byte) error {
	type alias Appointment
	aux := struct {
		*alias
		Status     json.RawMessage `json:"status"`
		StatusName string          `json:"status_name"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	label := aux.StatusName
	if label == "" {
		label = statusLabel(aux.Status)
	}
	a.Status = ParseStatus(label)
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	return nil
}

func statusLabel(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			return obj.Name
		}
	}
	return ""
}

// CreateAppointmentRequest is the POST /appointments/ body.
type CreateAppointmentRequest struct {
	Doctor          int64   `json:"doctor"`
	Clinic          *int64  `json:"clinic,omitempty"`
	ConsultationFee Decimal `json:"consultation_fee"`
	AppointmentDate string  `json:"appointment_date"`
	AppointmentTime string  `json:"appointment_time"`
	Symptoms        string  `json:"symptoms,omitempty"`
}

// DateAvailability is one check-date-availability result. Available is nil
// when the backend omitted the flag.
type DateAvailability struct {
	Available      *bool  `json:"available"`
	AvailableCount *int   `json:"available_count,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type availableSlotsResponse struct {
	AvailableSlots []string `json:"available_slots"`
	Message        string   `json:"message,omitempty"`
}

func bareID(b []byte) (int64, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0, true, nil
	}
	if b[0] == '{' {
		return 0, false, nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return 0, true, fmt.Errorf("heydoc: expected object or numeric id, got %s", b)
	}
	return id, true, nil
}
