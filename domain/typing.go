package domain

// Typing is the transient typing indicator. It is never persisted.
type Typing struct {
	ActorID   string
	ActorName string
	TargetID  string
	Active    bool
}
