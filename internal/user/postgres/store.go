// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package postgres implements the credential-and-trust store on
// PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/beatgate/beatgate/internal/user"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements user.Store using PostgreSQL.
type Store struct {
	db     DB
	hasher user.PasswordHasher
}

// NewStore creates a Store over the given connection pool.
func NewStore(db DB, hasher user.PasswordHasher) *Store {
	return &Store{db: db, hasher: hasher}
}

// ResolveUsername maps a username to a user ID (case-insensitive).
func (s *Store) ResolveUsername(ctx context.Context, username string) (int32, error) {
	var id int32
	err := s.db.QueryRow(ctx, `
		SELECT id FROM users WHERE LOWER(username) = LOWER($1)
	`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(user.ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("USER_RESOLVE_FAILED").
			With("username", username).
			Wrap(err)
	}
	return id, nil
}

// VerifyPassword checks the submitted proof against the stored hash.
func (s *Store) VerifyPassword(ctx context.Context, id int32, proof string) (bool, error) {
	var hash string
	err := s.db.QueryRow(ctx, `
		SELECT password_hash FROM users WHERE id = $1
	`, id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return false, oops.Code("USER_PASSWORD_FAILED").With("id", id).Wrap(err)
	}

	ok, err := s.hasher.Verify(proof, hash)
	if err != nil {
		return false, oops.Code("USER_PASSWORD_FAILED").
			With("id", id).
			With("operation", "verify hash").
			Wrap(err)
	}
	return ok, nil
}

// GetIdentity loads the identity snapshot for a user.
func (s *Store) GetIdentity(ctx context.Context, id int32) (*user.Identity, error) {
	ident := &user.Identity{ID: id}
	var privileges int64
	var silenceEnd, donorExpiry *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT username, privileges, country, silence_end, donor_expiry
		FROM users
		WHERE id = $1
	`, id).Scan(&ident.Username, &privileges, &ident.Country, &silenceEnd, &donorExpiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_IDENTITY_FAILED").With("id", id).Wrap(err)
	}
	ident.Privileges = user.Privileges(privileges) //nolint:gosec // bitmask fits uint32
	if silenceEnd != nil {
		ident.SilenceEnd = *silenceEnd
	}
	if donorExpiry != nil {
		ident.DonorExpiry = *donorExpiry
	}
	return ident, nil
}

// boolColumn reads one boolean flag for a user.
func (s *Store) boolColumn(ctx context.Context, query string, id int32, failCode string) (bool, error) {
	var v bool
	err := s.db.QueryRow(ctx, query, id).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return false, oops.Code(failCode).With("id", id).Wrap(err)
	}
	return v, nil
}

// IsBanned reports a hard ban.
func (s *Store) IsBanned(ctx context.Context, id int32) (bool, error) {
	return s.boolColumn(ctx, `SELECT banned FROM users WHERE id = $1`, id, "USER_BANNED_CHECK_FAILED")
}

// IsLocked reports an account lock.
func (s *Store) IsLocked(ctx context.Context, id int32) (bool, error) {
	return s.boolColumn(ctx, `SELECT locked FROM users WHERE id = $1`, id, "USER_LOCKED_CHECK_FAILED")
}

// IsRestricted reports the restricted state.
func (s *Store) IsRestricted(ctx context.Context, id int32) (bool, error) {
	return s.boolColumn(ctx, `SELECT restricted FROM users WHERE id = $1`, id, "USER_RESTRICTED_CHECK_FAILED")
}

// IsFlagged reports a staff cheat-suspicion flag.
func (s *Store) IsFlagged(ctx context.Context, id int32) (bool, error) {
	return s.boolColumn(ctx, `SELECT flagged FROM users WHERE id = $1`, id, "USER_FLAGGED_CHECK_FAILED")
}

// NeedsSecondFactor reports whether this identity+origin pair requires
// second-factor confirmation: the account has 2FA enabled and the
// origin has never been confirmed.
func (s *Store) NeedsSecondFactor(ctx context.Context, id int32, origin string) (bool, error) {
	enabled, err := s.boolColumn(ctx, `SELECT two_factor FROM users WHERE id = $1`, id, "USER_2FA_CHECK_FAILED")
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}

	var trusted bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM trusted_origins WHERE user_id = $1 AND origin = $2)
	`, id, origin).Scan(&trusted)
	if err != nil {
		return false, oops.Code("USER_2FA_CHECK_FAILED").With("id", id).Wrap(err)
	}
	return !trusted, nil
}

// HasVerifiedHardware reports whether any fingerprint was ever
// verified for this account.
func (s *Store) HasVerifiedHardware(ctx context.Context, id int32) (bool, error) {
	var found bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM hardware_log WHERE user_id = $1 AND verified)
	`, id).Scan(&found)
	if err != nil {
		return false, oops.Code("USER_HARDWARE_CHECK_FAILED").With("id", id).Wrap(err)
	}
	return found, nil
}

// VerifyHardware runs first-login hardware verification. The
// fingerprint is rejected when another account already verified the
// same machine identifiers; otherwise the pending-verification bit is
// cleared.
func (s *Store) VerifyHardware(ctx context.Context, id int32, fingerprint []string) (bool, error) {
	if len(fingerprint) < 4 {
		return false, nil
	}
	macHash, uniqueID, diskID := fingerprint[1], fingerprint[2], fingerprint[3]

	var collision bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM hardware_log
			WHERE user_id <> $1 AND verified
			  AND (unique_id = $2 OR disk_id = $3 OR mac_hash = $4)
		)
	`, id, uniqueID, diskID, macHash).Scan(&collision)
	if err != nil {
		return false, oops.Code("USER_VERIFY_HARDWARE_FAILED").With("id", id).Wrap(err)
	}
	if collision {
		return false, nil
	}

	_, err = s.db.Exec(ctx, `
		UPDATE users SET privileges = privileges & ~$2::integer WHERE id = $1
	`, id, int32(user.PrivPendingVerification))
	if err != nil {
		return false, oops.Code("USER_VERIFY_HARDWARE_FAILED").
			With("id", id).
			With("operation", "clear pending bit").
			Wrap(err)
	}
	return true, nil
}

// RecordHardware stores the fingerprint for multi-account detection.
// Returns false when the fingerprint resolves to empty data. If the
// fingerprint is on the hardware ban list the account is restricted,
// not rejected.
func (s *Store) RecordHardware(ctx context.Context, id int32, fingerprint []string, firstLogin bool) (bool, error) {
	if len(fingerprint) < 4 {
		return false, nil
	}
	macHash, uniqueID, diskID := fingerprint[1], fingerprint[2], fingerprint[3]
	if macHash == "" || uniqueID == "" || diskID == "" {
		return false, nil
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO hardware_log (user_id, mac_hash, unique_id, disk_id, verified, occurrences, last_seen)
		VALUES ($1, $2, $3, $4, $5, 1, NOW())
	`, id, macHash, uniqueID, diskID, firstLogin)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			_, err = s.db.Exec(ctx, `
				UPDATE hardware_log
				SET occurrences = occurrences + 1, last_seen = NOW()
				WHERE user_id = $1 AND mac_hash = $2 AND unique_id = $3 AND disk_id = $4
			`, id, macHash, uniqueID, diskID)
		}
		if err != nil {
			return false, oops.Code("USER_RECORD_HARDWARE_FAILED").With("id", id).Wrap(err)
		}
	}

	var banned bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM hardware_bans
			WHERE identifier IN ($1, $2, $3)
		)
	`, macHash, uniqueID, diskID).Scan(&banned)
	if err != nil {
		return false, oops.Code("USER_RECORD_HARDWARE_FAILED").With("id", id).Wrap(err)
	}
	if banned {
		// Banned hardware restricts the account rather than denying
		// the login outright.
		if err := s.Restrict(ctx, id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RecordOrigin appends the client's network origin to the audit trail.
func (s *Store) RecordOrigin(ctx context.Context, id int32, origin string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO origin_log (user_id, origin, seen_at) VALUES ($1, $2, NOW())
	`, id, origin)
	if err != nil {
		return oops.Code("USER_RECORD_ORIGIN_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

// RecordClientVersion stores the client version reported at login.
func (s *Store) RecordClientVersion(ctx context.Context, id int32, version string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET latest_client_version = $2 WHERE id = $1
	`, id, version)
	if err != nil {
		return oops.Code("USER_RECORD_VERSION_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

// LastClientVersion returns the most recently reported client version.
func (s *Store) LastClientVersion(ctx context.Context, id int32) (string, error) {
	var version *string
	err := s.db.QueryRow(ctx, `
		SELECT latest_client_version FROM users WHERE id = $1
	`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oops.Code("USER_NOT_FOUND").With("id", id).Wrap(user.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("USER_LAST_VERSION_FAILED").With("id", id).Wrap(err)
	}
	if version == nil {
		return "", nil
	}
	return *version, nil
}

// Restrict marks the identity as restricted.
func (s *Store) Restrict(ctx context.Context, id int32) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET restricted = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return oops.Code("USER_RESTRICT_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

// SetCountry records the country code for an account.
func (s *Store) SetCountry(ctx context.Context, id int32, country string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET country = $2 WHERE id = $1
	`, id, country)
	if err != nil {
		return oops.Code("USER_SET_COUNTRY_FAILED").With("id", id).Wrap(err)
	}
	return nil
}

// FriendIDs lists the user IDs on the account's friend list.
func (s *Store) FriendIDs(ctx context.Context, id int32) ([]int32, error) {
	rows, err := s.db.Query(ctx, `
		SELECT friend_id FROM friends WHERE user_id = $1 ORDER BY friend_id
	`, id)
	if err != nil {
		return nil, oops.Code("USER_FRIENDS_FAILED").With("id", id).Wrap(err)
	}
	defer rows.Close()

	var friends []int32
	for rows.Next() {
		var fid int32
		if err := rows.Scan(&fid); err != nil {
			return nil, oops.Code("USER_FRIENDS_FAILED").With("id", id).Wrap(err)
		}
		friends = append(friends, fid)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_FRIENDS_FAILED").With("id", id).Wrap(err)
	}
	return friends, nil
}

// Interface guard.
var _ user.Store = (*Store)(nil)
