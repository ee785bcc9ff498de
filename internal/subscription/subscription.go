// Package subscription holds the date arithmetic and presentation rules for
// subscription periods. Months are fixed at 30 days.
package subscription

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DaysPerMonth = 30
	Day          = 24 * time.Hour

	// PayPrefix marks purchase callbacks: "pay_<months>".
	PayPrefix = "pay"

	DateLayout = "02.01.2006"
)

// Periods offered to users, in months.
var Periods = []int{1, 6, 12}

func IsOffered(months int) bool {
	for _, p := range Periods {
		if p == months {
			return true
		}
	}
	return false
}

// Extend computes the new end: max(now, current) + 30*months days.
// A nil or lapsed current end anchors at now.
func Extend(now time.Time, current *time.Time, months int) time.Time {
	anchor := now
	if current != nil && current.After(now) {
		anchor = *current
	}
	return anchor.Add(time.Duration(months*DaysPerMonth) * Day)
}

type State int

const (
	StateNone State = iota
	StateActive
	StateExpired
)

type Status struct {
	State    State
	End      time.Time
	DaysLeft int
}

// Classify derives the status from the end date alone. DaysLeft is floor((end-now)/24h).
func Classify(now time.Time, end *time.Time) Status {
	if end == nil {
		return Status{State: StateNone}
	}
	if !end.After(now) {
		return Status{State: StateExpired, End: *end}
	}
	return Status{
		State:    StateActive,
		End:      *end,
		DaysLeft: int(end.Sub(now) / Day),
	}
}

// In returns a copy whose end date is expressed in loc.
func (s Status) In(loc *time.Location) Status {
	if s.State != StateNone {
		s.End = s.End.In(loc)
	}
	return s
}

func (s Status) Active() bool {
	return s.State == StateActive
}

func (s Status) String() string {
	switch s.State {
	case StateActive:
		return fmt.Sprintf("✅ Активна до %s, осталось %d дн.", s.End.Format(DateLayout), s.DaysLeft)
	case StateExpired:
		return fmt.Sprintf("❌ Истекла %s", s.End.Format(DateLayout))
	default:
		return "❌ Нет подписки"
	}
}

// Payload encodes a purchase callback for the given period.
func Payload(months int) string {
	return PayPrefix + "_" + strconv.Itoa(months)
}

// ParsePayload splits data on its last underscore and returns the prefix and the trailing integer.
func ParsePayload(data string) (string, int, error) {
	idx := strings.LastIndex(data, "_")
	if idx <= 0 || idx == len(data)-1 {
		return "", 0, fmt.Errorf("malformed callback payload %q", data)
	}
	n, err := strconv.Atoi(data[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed callback payload %q: %w", data, err)
	}
	return data[:idx], n, nil
}
