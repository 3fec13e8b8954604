package model

import "errors"

// ErrScheduleGap indicates that no transit timing could be resolved for a
// required instant, even after bucket fallback.
var ErrScheduleGap = errors.New("schedule gap")

// ErrInvalidConfig indicates a malformed plan or sweep configuration.
// Configuration errors are always fatal to the run that raised them.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrFeedUnavailable indicates the transit feed returned no usable data.
// It is propagated from the feed client, never generated by the engine.
var ErrFeedUnavailable = errors.New("feed unavailable")
