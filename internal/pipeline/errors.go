package pipeline

import "errors"

var (
	// ErrUnsupportedTechnology is returned when no stage list is registered
	// for a request's technology.
	ErrUnsupportedTechnology = errors.New("unsupported technology")

	// ErrNoStages is returned when registering an empty stage list.
	ErrNoStages = errors.New("no stages")

	// ErrDuplicateStage is returned when a stage name appears twice in one track.
	ErrDuplicateStage = errors.New("duplicate stage name")

	// ErrAlreadyRegistered is returned when a technology is registered twice.
	ErrAlreadyRegistered = errors.New("technology already registered")
)
