package analysis

import "errors"

var (
	ErrInvalidModelResponse = errors.New("invalid model response")
	ErrEmptyNarrative       = errors.New("model returned an empty narrative")
	ErrConsolidationFailed  = errors.New("consolidation failed")
)
