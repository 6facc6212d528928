package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/councillor-bot/councillor-deploy/internal/domain/deploy"
)

// TestLoadMissingFile ensures ErrNotFound is returned before the first deploy.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))

	_, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

// TestSaveAndLoad verifies records roundtrip and newer records replace older ones.
func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))

	first := &domain.Record{
		Target:    "runner",
		Version:   "1.0.0",
		Checksum:  "YQ==",
		Timestamp: time.Unix(100, 0).UTC(),
		DeployedBy: &domain.Actor{
			Hostname: "workstation",
			Username: "pi",
		},
	}

	require.NoError(t, repo.Save(ctx, first))

	second := first.Clone()
	second.Version = "1.1.0"
	second.Timestamp = time.Unix(200, 0).UTC()

	require.NoError(t, repo.Save(ctx, second))

	other := &domain.Record{
		Target:    "bot",
		Version:   "2.0.0",
		Timestamp: time.Unix(300, 0).UTC(),
	}

	require.NoError(t, repo.Save(ctx, other))

	records, err := repo.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "1.1.0", records["runner"].Version)
	require.Equal(t, "pi", records["runner"].DeployedBy.Username)
	require.Equal(t, "2.0.0", records["bot"].Version)
}

// TestSaveNilRecord rejects nil input.
func TestSaveNilRecord(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "history.json"))
	require.Error(t, repo.Save(context.Background(), nil))
}
