package model

// Status is the classifier's availability as reported to callers.
type Status string

const (
	// StatusUnavailable means the recognizer backend could not be created.
	StatusUnavailable Status = "unavailable"
	// StatusUntrained means the backend works but no model is loaded.
	StatusUntrained Status = "untrained"
	// StatusTrained means predictions can be made.
	StatusTrained Status = "trained"
)
