package domain

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a chat session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxSessionTurns is the number of most recent turns kept in a session.
// Older turns are dropped; the accumulated filters survive truncation.
const MaxSessionTurns = 20

// ChatSession is the persisted state of one conversation. TurnCount keeps
// counting even after history truncation.
type ChatSession struct {
	ID             string    `json:"id"`
	Turns          []Turn    `json:"turns"`
	CurrentFilters Filters   `json:"current_filters"`
	TurnCount      int       `json:"turn_count"`
	SessionStart   time.Time `json:"session_start"`
	LastActivity   time.Time `json:"last_activity"`
}

// AddTurn appends a turn, bumps the counter and truncates history to the
// most recent MaxSessionTurns entries.
func (s *ChatSession) AddTurn(role Role, content string, at time.Time) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content, Timestamp: at})
	s.TurnCount++
	s.LastActivity = at
	if len(s.Turns) > MaxSessionTurns {
		s.Turns = s.Turns[len(s.Turns)-MaxSessionTurns:]
	}
}
