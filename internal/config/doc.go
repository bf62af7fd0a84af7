// Package config provides configuration structures and utilities for idhunt.
// It defines the run options: seeds, sources, scheduling limits, heuristic
// thresholds, network and AI settings, and report preferences.
package config
