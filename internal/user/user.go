// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package user defines the credential-and-trust store contract the
// login gate reads identity state through, plus the identity model
// itself. Implementations live in subpackages.
package user

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested identity does not exist.
var ErrNotFound = errors.New("not found")

// Privileges is the numeric privilege bitmask attached to an identity.
type Privileges uint32

// Privilege bits.
const (
	PrivNormal Privileges = 1 << iota
	PrivPublic
	PrivDonor
	PrivModerator
	PrivAdmin
	PrivPendingVerification
	PrivTournamentStaff
)

// Has reports whether all bits in q are set.
func (p Privileges) Has(q Privileges) bool {
	return p&q == q
}

// Elevated reports admin-equivalent privilege.
func (p Privileges) Elevated() bool {
	return p.Has(PrivAdmin) || p.Has(PrivModerator)
}

// Identity is the resolved view of a user account at login time. The
// login gate only ever reads it; the store owns all mutation.
type Identity struct {
	ID          int32
	Username    string
	Privileges  Privileges
	Country     string // ISO 3166-1 alpha-2, "XX" if unknown
	SilenceEnd  time.Time
	DonorExpiry time.Time
}

// Pending reports whether the account still awaits hardware
// verification before full privileges apply.
func (i *Identity) Pending() bool {
	return i.Privileges.Has(PrivPendingVerification)
}

// Store is the credential and trust store consumed by the login gate.
// All methods block until the backing store answers; timeouts are the
// caller's responsibility via ctx.
type Store interface {
	// ResolveUsername maps a username to a user ID.
	// Returns ErrNotFound if no such account exists.
	ResolveUsername(ctx context.Context, username string) (int32, error)

	// VerifyPassword checks the submitted password proof against the
	// stored credential.
	VerifyPassword(ctx context.Context, id int32, proof string) (bool, error)

	// GetIdentity loads the identity snapshot for a user.
	GetIdentity(ctx context.Context, id int32) (*Identity, error)

	// IsBanned reports a hard ban.
	IsBanned(ctx context.Context, id int32) (bool, error)

	// IsLocked reports an account lock.
	IsLocked(ctx context.Context, id int32) (bool, error)

	// IsRestricted reports the punitive-but-connected state.
	IsRestricted(ctx context.Context, id int32) (bool, error)

	// IsFlagged reports a staff cheat-suspicion flag.
	IsFlagged(ctx context.Context, id int32) (bool, error)

	// NeedsSecondFactor reports whether this identity+origin pair
	// requires second-factor confirmation.
	NeedsSecondFactor(ctx context.Context, id int32, origin string) (bool, error)

	// HasVerifiedHardware reports whether any fingerprint was ever
	// verified for this account.
	HasVerifiedHardware(ctx context.Context, id int32) (bool, error)

	// VerifyHardware runs first-login hardware verification against
	// the submitted fingerprint. False means multi-account policy
	// rejects the hardware.
	VerifyHardware(ctx context.Context, id int32, fingerprint []string) (bool, error)

	// RecordHardware stores the fingerprint for multi-account
	// detection. Returns false when the fingerprint resolves to
	// empty or invalid data.
	RecordHardware(ctx context.Context, id int32, fingerprint []string, firstLogin bool) (bool, error)

	// RecordOrigin appends the client's network origin to the audit
	// trail.
	RecordOrigin(ctx context.Context, id int32, origin string) error

	// RecordClientVersion stores the client version reported at login.
	RecordClientVersion(ctx context.Context, id int32, version string) error

	// LastClientVersion returns the most recently reported client
	// version, or "" if none was recorded.
	LastClientVersion(ctx context.Context, id int32) (string, error)

	// Restrict marks the identity as restricted.
	Restrict(ctx context.Context, id int32) error

	// SetCountry records the country code for an account.
	SetCountry(ctx context.Context, id int32, country string) error

	// FriendIDs lists the user IDs on the account's friend list.
	FriendIDs(ctx context.Context, id int32) ([]int32, error)
}

// VerifiedCache caches first-login hardware verification results so
// repeated logins skip the expensive multi-account check.
type VerifiedCache interface {
	// SetVerified records the verification outcome for a user.
	SetVerified(ctx context.Context, id int32, verified bool) error

	// Verified returns the cached outcome. The second result is false
	// when nothing is cached.
	Verified(ctx context.Context, id int32) (bool, bool, error)
}
