// internal/models/session.go
package models

import "time"

type Flow string

const (
	FlowNone         Flow = ""
	FlowRegistration Flow = "registration"
	FlowProvisioning Flow = "provisioning"
)

type Step string

const (
	StepIdle                 Step = "idle"
	StepAwaitingBusinessName Step = "awaiting_business_name"
	StepAwaitingOwnerName    Step = "awaiting_owner_name"
	StepAwaitingDayCount     Step = "awaiting_day_count"
)

// Session is the per-chat progress of a multi-step flow plus the partial input collected so far.
type Session struct {
	ChatID       int64     `json:"chat_id"`
	Flow         Flow      `json:"flow"`
	Step         Step      `json:"step"`
	BusinessName string    `json:"business_name,omitempty"`
	OwnerName    string    `json:"owner_name,omitempty"`
	Login        string    `json:"login,omitempty"`
	AdminView    bool      `json:"admin_view,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewSession(chatID int64) *Session {
	return &Session{ChatID: chatID, Step: StepIdle}
}

func (s *Session) Idle() bool {
	return s.Step == StepIdle || s.Step == ""
}

// Begin starts a flow at its first step, dropping any earlier partial input.
func (s *Session) Begin(flow Flow) {
	s.Finish()
	s.Flow = flow
	s.Step = StepAwaitingBusinessName
}

// Finish returns to idle. The menu toggle survives.
func (s *Session) Finish() {
	s.Flow = FlowNone
	s.Step = StepIdle
	s.BusinessName = ""
	s.OwnerName = ""
	s.Login = ""
}
