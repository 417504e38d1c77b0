package core

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

const (
	Expense Kind = "expense"
	Income  Kind = "income"
)

// DateLayout is the only accepted wire format for calendar dates.
const DateLayout = "2006-01-02"

type (
	// Kind discriminates expense records from income records. Categories
	// and transactions of different kinds never mix.
	Kind string

	// Date is a calendar date with no time component, normalized to UTC
	// midnight.
	Date struct {
		time.Time
	}

	// DateRange is an inclusive [Start, End] window.
	DateRange struct {
		Start Date
		End   Date
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID        int64
		Username  string
		CreatedAt time.Time
	}

	// LoginEvent is one row of the append-only authentication audit
	// trail. Events are never mutated or deleted.
	LoginEvent struct {
		ID        int64
		UserID    int64
		Action    string
		Success   bool
		Timestamp time.Time
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
		Kind   Kind
	}

	Transaction struct {
		ID          int64
		UserID      int64
		CategoryID  int64
		Kind        Kind
		Amount      Money
		Date        Date
		Description string
	}
)

// LoginEvent actions.
const (
	ActionLogin          = "login"
	ActionRegister       = "register"
	ActionPasswordChange = "password_change"
)

var (
	ErrDuplicateUser      = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password does not meet minimum policy")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateCategory  = errors.New("category already exists")
	ErrCategoryInUse      = errors.New("category still referenced by transactions")
	ErrNotFound           = errors.New("not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrCategoryMismatch   = errors.New("category does not match transaction kind")
	ErrInvalidDate        = errors.New("invalid date")
	ErrMalformedRow       = errors.New("malformed row")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// ParseKind validates the expense/income discriminator.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Expense, Income:
		return Kind(s), nil
	default:
		return "", errors.New("invalid kind: " + s)
	}
}

func (k Kind) Valid() bool {
	return k == Expense || k == Income
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses the fixed YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM grouping key for monthly aggregation.
// Keys sort chronologically as plain strings.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Contains reports whether d falls inside the inclusive range. A zero
// bound leaves that side unbounded.
func (r DateRange) Contains(d Date) bool {
	if !r.Start.IsZero() && d.Before(r.Start.Time) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End.Time) {
		return false
	}
	return true
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidDate
	}
	if r.End.Before(r.Start.Time) {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidatePassword enforces the minimum credential policy: at least
// eight characters, at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("empty category name")
	}
	if len(c.Name) > 100 {
		return errors.New("category name too long (max 100 characters)")
	}
	if !c.Kind.Valid() {
		return errors.New("invalid category kind")
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Kind.Valid() {
		return errors.New("invalid transaction kind")
	}
	if t.CategoryID <= 0 {
		return errors.New("missing category")
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
