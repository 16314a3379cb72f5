package models

// Agent represents a registered worker that can execute tasks.
// Only the distributor mutates CurrentTasks; Utilization is always
// derived from it, never stored.
type Agent struct {
	ID           string    `json:"id"`
	Capabilities []string  `json:"capabilities"`
	Capacity     int       `json:"capacity"`
	CurrentTasks []string  `json:"current_tasks"`
	ClientID     string    `json:"client_id,omitempty"`
	Ownership    Ownership `json:"ownership"`
}

// Utilization returns the agent's fractional load in [0,1].
func (a *Agent) Utilization() float64 {
	if a.Capacity <= 0 {
		return 0
	}
	return float64(len(a.CurrentTasks)) / float64(a.Capacity)
}

// HasCapacity reports whether the agent can accept another task.
func (a *Agent) HasCapacity() bool {
	return len(a.CurrentTasks) < a.Capacity
}

// CanHandle reports whether the agent's capability set covers every
// listed requirement.
func (a *Agent) CanHandle(requirements []string) bool {
	if len(requirements) == 0 {
		return true
	}
	caps := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		caps[c] = struct{}{}
	}
	for _, r := range requirements {
		if _, ok := caps[r]; !ok {
			return false
		}
	}
	return true
}

// RemoveTask deletes taskID from the agent's current set, preserving
// the order of the remaining entries.
func (a *Agent) RemoveTask(taskID string) {
	for i, id := range a.CurrentTasks {
		if id == taskID {
			a.CurrentTasks = append(a.CurrentTasks[:i], a.CurrentTasks[i+1:]...)
			return
		}
	}
}
