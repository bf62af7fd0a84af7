package heuristic

import "errors"

// ErrInvalidPolicy is returned when thresholds, penalty, weights or the
// NSFW policy are out of range.
var ErrInvalidPolicy = errors.New("invalid heuristic policy")
