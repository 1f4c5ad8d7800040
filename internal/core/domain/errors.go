package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no record exists.
	ErrNotFound = errors.New("domain: not found")
	// ErrInsufficientData means a batch needed at least one observation.
	ErrInsufficientData = errors.New("domain: insufficient data")
	// ErrNoCandidates means every candidate was filtered out or none were supplied.
	ErrNoCandidates = errors.New("domain: no candidates")
	// ErrNotInitialized means the engine has not been bootstrapped for this session.
	ErrNotInitialized = errors.New("domain: engine not initialized")
	// ErrInvalidLabel means a label was neither like nor dislike.
	ErrInvalidLabel = errors.New("domain: invalid label")
	// ErrEmptyTrackID means an operation was given a blank track identifier.
	ErrEmptyTrackID = errors.New("domain: empty track id")
	// ErrEmptyUserID means a request carried no user identifier.
	ErrEmptyUserID = errors.New("domain: empty user id")
	// ErrInvalidFeature means a descriptor was NaN or infinite.
	ErrInvalidFeature = errors.New("domain: invalid feature value")
	// ErrDimensionMismatch matches any *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("domain: dimension mismatch")
	// ErrDuplicateFeedback matches any *DuplicateFeedbackError.
	ErrDuplicateFeedback = errors.New("domain: duplicate feedback")
)

// DimensionMismatchError reports a vector whose length violates the contract.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// DuplicateFeedbackError reports a track that already has a decision.
type DuplicateFeedbackError struct {
	TrackID string
}

func (e *DuplicateFeedbackError) Error() string {
	return fmt.Sprintf("track %q already rated", e.TrackID)
}

func (e *DuplicateFeedbackError) Is(target error) bool {
	return target == ErrDuplicateFeedback
}
