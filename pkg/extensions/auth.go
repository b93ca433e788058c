// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication fails.
//
// Wrap it so that middleware can map the failure to a 401:
//
//	return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo describes an authenticated user.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// DisplayName is shown to collaborators on the shared canvas.
	// May be empty.
	DisplayName string

	// Roles contains the user's role memberships for authorization
	// decisions. Common roles: "instructor", "player".
	Roles []string
}

// HasRole checks if the user has a specific role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// Hosted classroom deployments validate tokens against their identity
// provider; the local version uses NopAuthProvider.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity.
	// Returns ErrUnauthorized (or wrapped) if the token is invalid;
	// other errors for provider failures.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider is the default auth provider for local play.
//
// Any token, including the empty string, authenticates as a local
// instructor. This is intentional for single-machine deployments.
type NopAuthProvider struct{}

// Validate always returns a valid local user with instructor privileges.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"instructor", "player"},
	}, nil
}

var _ AuthProvider = (*NopAuthProvider)(nil)
