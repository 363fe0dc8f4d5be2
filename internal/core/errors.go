// Package core holds the sentinel errors shared across package
// boundaries (capture, storage, the correlation/group layer), grounded
// on the teacher's own internal/core/errors.go: category-grouped var
// blocks of plain errors.New values, classified at call sites with
// errors.Is/errors.As rather than type switches.
package core

import "errors"

var (
	// ErrInitFailure reports that a component failed to construct or
	// start during process startup (spec §7).
	ErrInitFailure = errors.New("sngrep: component init failed")

	// ErrShutdown reports that an operation was rejected because the
	// owning component has already been stopped (spec §7).
	ErrShutdown = errors.New("sngrep: rejected after shutdown")
)

var (
	// ErrResourceExhausted reports that an operation was rejected to
	// keep a configured resource budget (spec §4.5 step 6, §7): the
	// memory_limit invariant would otherwise be violated.
	ErrResourceExhausted = errors.New("sngrep: resource exhausted")
)

var (
	// ErrCrossLinkPending reports that a referenced Call-ID (spec §4.5
	// step 5's Replaces/Refer-To cross-link table) has not yet been
	// observed directly.
	ErrCrossLinkPending = errors.New("sngrep: cross-link reference still pending")
)
