package pipeline

import (
	"fmt"
	"slices"

	"github.com/nao1215/scanpipe/internal/model"
)

// Registry maps a technology to its ordered stage list.
// It is filled once at startup and read concurrently afterwards.
type Registry struct {
	tracks   map[model.Technology][]Stage
	recorder StageRecorder
	observer Observer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRecorder wraps every registered stage so that its boundaries are
// written to recorder.
func WithRecorder(recorder StageRecorder) RegistryOption {
	return func(r *Registry) {
		r.recorder = recorder
	}
}

// WithObserver reports every tracked stage execution to observer.
// It has no effect without WithRecorder.
func WithObserver(observer Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = observer
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tracks: make(map[model.Technology][]Stage)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the stage list of technology. Order is execution order.
func (r *Registry) Register(technology model.Technology, stages ...Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("%w for %s", ErrNoStages, technology)
	}
	if _, ok := r.tracks[technology]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, technology)
	}

	seen := make(map[string]struct{}, len(stages))
	track := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if _, dup := seen[s.Name()]; dup {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateStage, s.Name(), technology)
		}
		seen[s.Name()] = struct{}{}

		if r.recorder != nil {
			s = &trackedStage{Stage: s, recorder: r.recorder, observer: r.observer}
		}
		track = append(track, s)
	}
	r.tracks[technology] = track
	return nil
}

// Stages returns the stage list of technology.
func (r *Registry) Stages(technology model.Technology) ([]Stage, error) {
	track, ok := r.tracks[technology]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTechnology, technology)
	}
	return slices.Clone(track), nil
}

// Supports reports whether technology has a stage list.
func (r *Registry) Supports(technology model.Technology) bool {
	_, ok := r.tracks[technology]
	return ok
}

// StageNames returns the stage names of technology in execution order.
func (r *Registry) StageNames(technology model.Technology) []string {
	track := r.tracks[technology]
	names := make([]string, len(track))
	for i, s := range track {
		names[i] = s.Name()
	}
	return names
}

// Technologies returns the registered technologies in sorted order.
func (r *Registry) Technologies() []model.Technology {
	techs := make([]model.Technology, 0, len(r.tracks))
	for t := range r.tracks {
		techs = append(techs, t)
	}
	slices.Sort(techs)
	return techs
}
