// Copyright (c) PhaseGate Authors.
// Licensed under the MIT License.

// Package identity issues and verifies signed actor tokens. An actor name
// carried in a token is what the authorization matrix keys on, so callers
// crossing a process boundary can prove who is proposing a write.
package identity
