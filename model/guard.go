package model

import "time"

// HaltFlag is the persisted singleton marker for critical-error containment.
// Its presence means the pipeline must not start another tick. It is created
// by a fatal condition and removed only by an explicit administrative action;
// a process restart never clears it.
type HaltFlag struct {
	Reason string    `json:"reason"`
	SetAt  time.Time `json:"set_at"`
}
