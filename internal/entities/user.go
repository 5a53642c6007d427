package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type LoginStatus string

const (
	LoginStatusSuccess LoginStatus = "SUCCESS"
	LoginStatusFailed  LoginStatus = "FAILED"
)

// LoginEvent is an append-only audit record.
type LoginEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	IP        string      `json:"ip"`
	Device    string      `json:"device"`
	Location  string      `json:"location"`
	Status    LoginStatus `json:"status"`
}

type ActiveSession struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	IP         string    `json:"ip"`
	LastActive time.Time `json:"lastActive"`
	IsCurrent  bool      `json:"isCurrent"`
}

// User is a marketplace account. LoginHistory is most recent first.
type User struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Role           Role            `json:"role"`
	Balance        decimal.Decimal `json:"balance"`
	Is2FAEnabled   bool            `json:"is2FAEnabled"`
	LoginHistory   []LoginEvent    `json:"loginHistory"`
	ActiveSessions []ActiveSession `json:"activeSessions"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CurrentSession returns the session flagged as current, if any.
func (u *User) CurrentSession() (ActiveSession, bool) {
	for _, s := range u.ActiveSessions {
		if s.IsCurrent {
			return s, true
		}
	}
	return ActiveSession{}, false
}

// ClientInfo describes where a login request came from.
type ClientInfo struct {
	IP       string
	Device   string
	Location string
}
