package models

import (
	"time"
)

// Feedback is one recorded observation about task output quality.
// Anonymized records carry no agent id and no source identity.
type Feedback struct {
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content"`
	Rating    *float64  `json:"rating,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EffectiveScore returns the score used for agent ranking: the explicit
// score when present, otherwise the rating normalized from a 0-5 scale.
func (f *Feedback) EffectiveScore() (float64, bool) {
	if f.Score != nil {
		return *f.Score, true
	}
	if f.Rating != nil {
		return *f.Rating / 5.0, true
	}
	return 0, false
}
