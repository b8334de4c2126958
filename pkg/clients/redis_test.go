package clients

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClient_WaitReadyGivesUp(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c := NewRedisClient(&cfg.RedisCfg{
		Addr:         addr,
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = c.WaitReady(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis is not ready")
}
