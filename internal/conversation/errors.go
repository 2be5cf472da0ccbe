// Package conversation provides per-tab conversation controllers on top of
// the agent session layer.
//
// errors.go - Sentinel errors
//
// This file contains:
// - Sentinel errors returned by controllers and the tab manager

package conversation

import "errors"

var (
	// ErrBusy is returned when a tab already has a query in flight
	ErrBusy = errors.New("a query is already in progress")

	// ErrRateLimited is returned when a send exceeds the per-tab rate limit
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrTabNotFound is returned for operations on an unknown tab id
	ErrTabNotFound = errors.New("tab not found")

	// ErrManagerClosed is returned after the manager has been shut down
	ErrManagerClosed = errors.New("conversation manager is closed")

	// ErrBackendNotReady is returned when a tab's adapter cannot reach
	// its backend
	ErrBackendNotReady = errors.New("backend not ready")
)
