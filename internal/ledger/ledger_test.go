package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	s.SetDefaults(Defaults{
		AppPort:         8090,
		LibraryDir:      "/calibre-library",
		IntervalMinutes: 15,
		SyncTag:         "bf",
		SyncMode:        ModeManual,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSyncedDigest_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	d, err := s.SyncedDigest(1)
	require.NoError(t, err)
	assert.Empty(t, d)

	require.NoError(t, s.UpsertSyncedDigest(1, "aaa"))
	d, err = s.SyncedDigest(1)
	require.NoError(t, err)
	assert.Equal(t, "aaa", d)

	// Upsert overwrites the existing entry.
	require.NoError(t, s.UpsertSyncedDigest(1, "bbb"))
	d, err = s.SyncedDigest(1)
	require.NoError(t, err)
	assert.Equal(t, "bbb", d)

	// Other ids unaffected.
	d, err = s.SyncedDigest(2)
	require.NoError(t, err)
	assert.Empty(t, d)
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	last, err := s.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)

	id, err := s.StartRun(ModeManual)
	require.NoError(t, err)

	last, err = s.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, id, last.ID)
	assert.Equal(t, "manual", last.Mode)
	assert.Nil(t, last.CompletedAt)
	assert.Nil(t, last.Message)

	require.NoError(t, s.FinishRun(id, 5, 3, 1, 1, "one crash"))
	last, err = s.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last.CompletedAt)
	assert.Equal(t, 5, last.Processed)
	assert.Equal(t, 3, last.Succeeded)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, 1, last.Skipped)
	require.NotNil(t, last.Message)
	assert.Equal(t, "one crash", *last.Message)
}

func TestFinishRun_EmptyMessageStoredAsNull(t *testing.T) {
	s := newTestStore(t)

	id, err := s.StartRun(ModeAutomatic)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(id, 0, 0, 0, 0, ""))

	last, err := s.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last.Message)
	require.NotNil(t, last.CompletedAt)
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		id, err := s.StartRun(ModeAutomatic)
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(id, i, 0, 0, 0, ""))
	}

	runs, err := s.RecentRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Greater(t, runs[0].ID, runs[1].ID)
	assert.Equal(t, 2, runs[0].Processed)
}

func TestSettings_TypedFallback(t *testing.T) {
	s := newTestStore(t)

	// Unset values fall back to defaults.
	assert.Equal(t, 8090, s.AppPort())
	assert.Equal(t, 15, s.IntervalMinutes())
	assert.Equal(t, "bf", s.SyncTag())

	// Malformed or non-positive ints silently revert to the default.
	require.NoError(t, s.SetSetting(KeyIntervalMinutes, "not-a-number"))
	assert.Equal(t, 15, s.IntervalMinutes())
	require.NoError(t, s.SetSetting(KeyIntervalMinutes, "-3"))
	assert.Equal(t, 15, s.IntervalMinutes())
	require.NoError(t, s.SetSetting(KeyIntervalMinutes, "30"))
	assert.Equal(t, 30, s.IntervalMinutes())

	// Strings trim whitespace and fall back when blank.
	require.NoError(t, s.SetSetting(KeySyncTag, "  queue  "))
	assert.Equal(t, "queue", s.SyncTag())
	require.NoError(t, s.SetSetting(KeySyncTag, "   "))
	assert.Equal(t, "bf", s.SyncTag())
}

func TestMode_InvalidValuePersistsDefault(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetSetting(KeySyncMode, "turbo"))
	assert.Equal(t, ModeManual, s.Mode())
	// The default got persisted over the invalid value.
	assert.Equal(t, "manual", s.Setting(KeySyncMode))

	require.NoError(t, s.SetMode(ModeAutomatic))
	assert.Equal(t, ModeAutomatic, s.Mode())

	assert.Error(t, s.SetMode(Mode("sideways")))
}

func TestBootstrap_SeedsOnlyUnsetKeys(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetSetting(KeySyncTag, "custom"))
	require.NoError(t, s.Bootstrap())

	assert.Equal(t, "custom", s.Setting(KeySyncTag)) // preserved
	assert.Equal(t, "8090", s.Setting(KeyAppPort))   // seeded
	assert.Equal(t, "manual", s.Setting(KeySyncMode))
}

func TestSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSetting(KeyAPIKey, "secret"))
	require.NoError(t, s.SetMode(ModeAutomatic))

	snap := s.Snapshot()
	assert.Equal(t, "secret", snap.APIKey)
	assert.Equal(t, ModeAutomatic, snap.SyncMode)
	assert.Equal(t, "bf", snap.SyncTag)
	assert.Equal(t, 15, snap.IntervalMinutes)
}
