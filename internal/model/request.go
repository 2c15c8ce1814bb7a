package model

import (
	"errors"
	"strings"
)

// Request validation errors.
var (
	// ErrMissingWorkUnit is returned when a request has no work unit identifier.
	ErrMissingWorkUnit = errors.New("work unit id is required")

	// ErrMissingSPK is returned when a request has no SPK.
	ErrMissingSPK = errors.New("spk is required")
)

// ScanRequest is the caller's description of what to scan.
// It is treated as immutable once a run starts; stages receive it by value.
type ScanRequest struct {
	// Technology selects the stage track.
	Technology Technology `json:"technology"`

	// WorkUnitID identifies the owning application (the AIT number).
	WorkUnitID string `json:"workUnitId"`

	// SPK is the software package key used to locate artifacts.
	SPK string `json:"spk"`
}

// Validate checks that identity fields are present.
// It does not check Technology; that is the registry's decision.
func (r ScanRequest) Validate() error {
	if strings.TrimSpace(r.WorkUnitID) == "" {
		return ErrMissingWorkUnit
	}
	if strings.TrimSpace(r.SPK) == "" {
		return ErrMissingSPK
	}
	return nil
}
