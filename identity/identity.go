// Package identity generates the UUIDv4 identifiers this system uses for
// device, transfer, and file scoping.
package identity

import "github.com/google/uuid"

// NewDeviceID returns a new stable device identifier, generated once per
// device on first run and persisted by the configuration collaborator.
func NewDeviceID() string {
	return uuid.NewString()
}

// NewTransferID returns a new identifier scoped to one TCP transfer session.
func NewTransferID() string {
	return uuid.NewString()
}

// NewFileID returns a new identifier scoped to one file within a transfer.
func NewFileID() string {
	return uuid.NewString()
}
