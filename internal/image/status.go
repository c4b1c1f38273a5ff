package image

import "fmt"

// Status is the verification state of an image for one algorithm.
//
//	UNKNOWN -> PENDING -> VERIFIED
//	                   -> FAILED
//	UNKNOWN -> UNVERIFIED
//	UNKNOWN -> VERIFIED (marker already present)
type Status string

const (
	StatusUnknown    Status = "UNKNOWN"
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusFailed     Status = "FAILED"
	StatusUnverified Status = "UNVERIFIED"
)

var transitions = map[Status][]Status{
	StatusUnknown: {StatusPending, StatusUnverified, StatusVerified},
	StatusPending: {StatusVerified, StatusFailed},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move from s is allowed.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("invalid verification transition %s -> %s", s, next)
	}
	return next, nil
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}
