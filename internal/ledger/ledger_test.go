package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Lifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Start(ctx, "4930123456", "4930123456")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	require.NoError(t, store.MarkCodeIssued(ctx, id))
	require.NoError(t, store.MarkOpened(ctx, id))
	require.NoError(t, store.Finish(ctx, id, Finish{
		Outcome:      OutcomeExported,
		Provider:     "0x0",
		Restarts:     1,
		BundleDigest: "00000000deadbeef",
	}))

	attempts, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)

	a := attempts[0]
	assert.Equal(t, id, a.ID)
	assert.Equal(t, "4930123456", a.SessionID)
	assert.Equal(t, OutcomeExported, a.Outcome)
	assert.Equal(t, "0x0", a.Provider)
	assert.Equal(t, 1, a.Restarts)
	assert.Equal(t, "00000000deadbeef", a.BundleDigest)
	assert.Empty(t, a.Error)
	assert.NotNil(t, a.CodeIssuedAt)
	assert.NotNil(t, a.OpenedAt)
	assert.NotNil(t, a.FinishedAt)
	assert.WithinDuration(t, time.Now(), a.StartedAt, time.Minute)
}

func TestStore_FinishWithError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.Start(ctx, "s", "1")
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, Finish{Outcome: OutcomeLoggedOut, Err: errors.New("connection closed: logged_out (401)")}))

	attempts, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomeLoggedOut, attempts[0].Outcome)
	assert.Equal(t, "connection closed: logged_out (401)", attempts[0].Error)
	assert.Nil(t, attempts[0].CodeIssuedAt)
	assert.Empty(t, attempts[0].Provider)
}

func TestStore_RecentOrderAndLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		store.now = func() time.Time { return at }
		id, err := store.Start(ctx, "s", "1")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	attempts, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, ids[2], attempts[0].ID)
	assert.Equal(t, ids[1], attempts[1].ID)
	assert.Equal(t, OutcomePending, attempts[0].Outcome)
}

func TestStore_UnknownID(t *testing.T) {
	store := openTestStore(t)
	err := store.MarkOpened(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	id, err := r.Start(context.Background(), "s", "1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, r.Finish(context.Background(), id, Finish{}))
	attempts, err := r.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Empty(t, attempts)
}
