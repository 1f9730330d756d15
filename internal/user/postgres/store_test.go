// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatgate/beatgate/internal/user"
)

// fakeHasher accepts one fixed proof.
type fakeHasher struct {
	accept string
}

func (f fakeHasher) Hash(password string) (string, error) { return password, nil }

func (f fakeHasher) Verify(password, _ string) (bool, error) {
	return password == f.accept, nil
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStore(mock, fakeHasher{accept: "proof"})
}

func TestResolveUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves case-insensitively", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT id FROM users`).
			WithArgs("Cookiezi").
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int32(1001)))

		id, err := store.ResolveUsername(ctx, "Cookiezi")
		require.NoError(t, err)
		assert.Equal(t, int32(1001), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown username maps to ErrNotFound", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT id FROM users`).
			WithArgs("nobody").
			WillReturnRows(pgxmock.NewRows([]string{"id"}))

		_, err := store.ResolveUsername(ctx, "nobody")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}

func TestVerifyPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts the stored credential", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT password_hash FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow("stored"))

		ok, err := store.VerifyPassword(ctx, 1001, "proof")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects a wrong proof", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT password_hash FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"password_hash"}).AddRow("stored"))

		ok, err := store.VerifyPassword(ctx, 1001, "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGetIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("loads a full identity", func(t *testing.T) {
		mock, store := newMockStore(t)
		silence := time.Now().Add(time.Hour)
		mock.ExpectQuery(`SELECT username, privileges, country, silence_end, donor_expiry`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows(
				[]string{"username", "privileges", "country", "silence_end", "donor_expiry"},
			).AddRow("cookiezi", int64(3), "KR", &silence, (*time.Time)(nil)))

		ident, err := store.GetIdentity(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, "cookiezi", ident.Username)
		assert.Equal(t, user.PrivNormal|user.PrivPublic, ident.Privileges)
		assert.Equal(t, "KR", ident.Country)
		assert.Equal(t, silence, ident.SilenceEnd)
		assert.True(t, ident.DonorExpiry.IsZero())
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT username, privileges, country, silence_end, donor_expiry`).
			WithArgs(int32(404)).
			WillReturnRows(pgxmock.NewRows([]string{"username", "privileges", "country", "silence_end", "donor_expiry"}))

		_, err := store.GetIdentity(ctx, 404)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}

func TestNeedsSecondFactor(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled accounts never need it", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT two_factor FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"two_factor"}).AddRow(false))

		need, err := store.NeedsSecondFactor(ctx, 1001, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, need)
	})

	t.Run("enabled with untrusted origin needs it", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT two_factor FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"two_factor"}).AddRow(true))
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM trusted_origins`).
			WithArgs(int32(1001), "203.0.113.7").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		need, err := store.NeedsSecondFactor(ctx, 1001, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, need)
	})

	t.Run("enabled with trusted origin does not", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT two_factor FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"two_factor"}).AddRow(true))
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM trusted_origins`).
			WithArgs(int32(1001), "203.0.113.7").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		need, err := store.NeedsSecondFactor(ctx, 1001, "203.0.113.7")
		require.NoError(t, err)
		assert.False(t, need)
	})
}

func TestVerifyHardware(t *testing.T) {
	ctx := context.Background()
	fingerprint := []string{"utc", "mac", "uid", "disk", "adapters"}

	t.Run("cross-account collision rejects", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM hardware_log`).
			WithArgs(int32(1001), "uid", "disk", "mac").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := store.VerifyHardware(ctx, 1001, fingerprint)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("clean hardware clears the pending bit", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM hardware_log`).
			WithArgs(int32(1001), "uid", "disk", "mac").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(`UPDATE users SET privileges`).
			WithArgs(int32(1001), int32(user.PrivPendingVerification)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := store.VerifyHardware(ctx, 1001, fingerprint)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short fingerprint is rejected without queries", func(t *testing.T) {
		_, store := newMockStore(t)
		ok, err := store.VerifyHardware(ctx, 1001, []string{"utc", "mac"})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRecordHardware(t *testing.T) {
	ctx := context.Background()
	fingerprint := []string{"utc", "mac", "uid", "disk", "adapters"}

	t.Run("stores a new fingerprint", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectExec(`INSERT INTO hardware_log`).
			WithArgs(int32(1001), "mac", "uid", "disk", false).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM hardware_bans`).
			WithArgs("mac", "uid", "disk").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.RecordHardware(ctx, 1001, fingerprint, false)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat fingerprint bumps occurrences", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectExec(`INSERT INTO hardware_log`).
			WithArgs(int32(1001), "mac", "uid", "disk", false).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
		mock.ExpectExec(`UPDATE hardware_log`).
			WithArgs(int32(1001), "mac", "uid", "disk").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM hardware_bans`).
			WithArgs("mac", "uid", "disk").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := store.RecordHardware(ctx, 1001, fingerprint, false)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("banned hardware restricts instead of rejecting", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectExec(`INSERT INTO hardware_log`).
			WithArgs(int32(1001), "mac", "uid", "disk", false).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM hardware_bans`).
			WithArgs("mac", "uid", "disk").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(`UPDATE users SET restricted`).
			WithArgs(int32(1001)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := store.RecordHardware(ctx, 1001, fingerprint, false)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty identifiers are rejected", func(t *testing.T) {
		_, store := newMockStore(t)
		ok, err := store.RecordHardware(ctx, 1001, []string{"utc", "", "uid", "disk"}, false)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLastClientVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored version", func(t *testing.T) {
		mock, store := newMockStore(t)
		v := "b20200811.1"
		mock.ExpectQuery(`SELECT latest_client_version FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"latest_client_version"}).AddRow(&v))

		got, err := store.LastClientVersion(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, "b20200811.1", got)
	})

	t.Run("null version means empty", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT latest_client_version FROM users`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"latest_client_version"}).AddRow((*string)(nil)))

		got, err := store.LastClientVersion(ctx, 1001)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestFriendIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("lists friends in order", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT friend_id FROM friends`).
			WithArgs(int32(1001)).
			WillReturnRows(pgxmock.NewRows([]string{"friend_id"}).
				AddRow(int32(2)).
				AddRow(int32(3)))

		friends, err := store.FriendIDs(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, []int32{2, 3}, friends)
	})

	t.Run("query errors are wrapped", func(t *testing.T) {
		mock, store := newMockStore(t)
		mock.ExpectQuery(`SELECT friend_id FROM friends`).
			WithArgs(int32(1001)).
			WillReturnError(errors.New("boom"))

		_, err := store.FriendIDs(ctx, 1001)
		assert.Error(t, err)
	})
}
