package main

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Rrens/devin-relay/internal/config"
	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/Rrens/devin-relay/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return &config.Config{
		Redis:  config.RedisConfig{Host: host, Port: port, KeyPrefix: "devin-telegram:session:", ScanCount: 10},
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sessions.db"), PageSize: 10},
	}
}

func TestMigrate_RedisToSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	srcCfg := *cfg
	srcCfg.Store.Driver = "redis"
	src, err := repository.OpenSessionStore(&srcCfg)
	require.NoError(t, err)
	defer src.Close()

	last := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, src.Set(ctx, id, domain.UserSession{
			UserID:              id,
			RemoteSessionID:     "devin-" + id,
			RemoteSessionURL:    "https://app.devin.ai/sessions/devin-" + id,
			LastInteractionTime: last,
		}))
	}

	copied, err := migrate(ctx, cfg, "redis", "sqlite", false)
	require.NoError(t, err)
	assert.Equal(t, 3, copied)

	dstCfg := *cfg
	dstCfg.Store.Driver = "sqlite"
	dst, err := repository.OpenSessionStore(&dstCfg)
	require.NoError(t, err)
	defer dst.Close()

	all, err := dst.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	got, err := dst.Get(ctx, "2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "devin-2", got.RemoteSessionID)
	assert.True(t, last.Equal(got.LastInteractionTime))
}

func TestMigrate_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	srcCfg := *cfg
	srcCfg.Store.Driver = "redis"
	src, err := repository.OpenSessionStore(&srcCfg)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Set(ctx, "1", domain.UserSession{UserID: "1", RemoteSessionID: "devin-1"}))

	copied, err := migrate(ctx, cfg, "redis", "sqlite", true)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	dstCfg := *cfg
	dstCfg.Store.Driver = "sqlite"
	dst, err := repository.OpenSessionStore(&dstCfg)
	require.NoError(t, err)
	defer dst.Close()

	all, err := dst.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
