// Package socialauth verifies third-party sign-in credentials and normalizes
// them to a provider-scoped subject.
package socialauth

import (
	"context"
)

// UserInfo is the normalized identity extracted from a verified credential.
type UserInfo struct {
	SubjectID string
	Email     string
	Name      string
}

// Verifier validates a provider credential and returns the identity it
// asserts.
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, token string) (*UserInfo, error)
}
