package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/campus-auth-client/credentials"
	"github.com/jrsteele09/campus-auth-client/credentials/filestore"
)

func TestBackend_SurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	b, err := filestore.New(dir, zerolog.Nop())
	require.NoError(t, err)

	store := credentials.NewStore(b)
	store.Save(
		credentials.Pair{AccessToken: "A1", RefreshToken: "R1"},
		credentials.Identity{Username: "admin", Role: credentials.RoleAdmin},
	)

	reopened, err := filestore.New(dir, zerolog.Nop())
	require.NoError(t, err)

	pair, id := credentials.NewStore(reopened).Snapshot()
	require.NotNil(t, pair)
	require.NotNil(t, id)
	require.Equal(t, "A1", pair.AccessToken)
	require.Equal(t, "R1", pair.RefreshToken)
	require.Equal(t, "admin", id.Username)
}

func TestBackend_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	b, err := filestore.New(dir, zerolog.Nop())
	require.NoError(t, err)

	b.Set(credentials.KeyAccessToken, "secret")

	info, err := os.Stat(filepath.Join(dir, credentials.KeyAccessToken+".cred"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestBackend_DeleteMissingKey(t *testing.T) {
	b, err := filestore.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	b.Delete("missing")
	_, ok := b.Get("missing")
	require.False(t, ok)

	b.Set("k", "v")
	b.Delete("k")
	b.Delete("k")
	_, ok = b.Get("k")
	require.False(t, ok)
}
