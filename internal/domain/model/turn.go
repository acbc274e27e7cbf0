package model

import (
	"strings"
	"time"
)

// Role identifies the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ParseRole maps stored role strings back to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Turn is one exchanged message of a chat. Turns are immutable once stored.
type Turn struct {
	ID        string
	ChatID    int64
	Role      Role
	Content   string
	CreatedAt time.Time
}

func NewTurn(chatID int64, role Role, content string, at time.Time) Turn {
	return Turn{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}
}
