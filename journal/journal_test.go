package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	at := time.Date(2025, 1, 2, 10, 0, 0, 123, time.UTC)
	require.NoError(t, j.Record(ctx, models.ActionEntry{At: at, Action: "start", Target: "bumeran x AR", Outcome: "ok", Detail: "ab12"}))
	require.NoError(t, j.Record(ctx, models.ActionEntry{Action: "stop", Target: "ab12", Outcome: "canceled"}))
	require.NoError(t, j.Record(ctx, models.ActionEntry{Action: "download", Target: "gemma-3-4b-instruct", Outcome: "failed", Detail: "server: http status 500"}))

	entries, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "download", entries[0].Action)
	assert.Equal(t, "stop", entries[1].Action)
	assert.False(t, entries[1].At.IsZero())

	all, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, at.Equal(all[2].At))
	assert.Equal(t, "ab12", all[2].Detail)
	assert.Greater(t, all[0].ID, all[2].ID)
}

func TestOpenPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "console.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, models.ActionEntry{Action: "run_pipeline", Target: "gemma-3-4b-instruct", Outcome: "ok"}))
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run_pipeline", entries[0].Action)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
