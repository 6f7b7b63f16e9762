package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Staging(t *testing.T) {
	c := NewController(Config{StagingLimitBytes: 100})

	require.NoError(t, c.AcquireStaging(context.Background(), 50))
	assert.Equal(t, int64(50), c.StagingInUse())

	require.NoError(t, c.AcquireStaging(context.Background(), 40))
	assert.Equal(t, int64(90), c.StagingInUse())

	assert.False(t, c.TryAcquireStaging(20))
	assert.Equal(t, int64(90), c.StagingInUse())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireStaging(ctx, 20), context.DeadlineExceeded)

	c.ReleaseStaging(50)
	assert.Equal(t, int64(40), c.StagingInUse())

	assert.True(t, c.TryAcquireStaging(20))
	assert.Equal(t, int64(60), c.StagingInUse())
}

func TestController_StagingTrackingOnly(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireStaging(context.Background(), 1000))
	assert.Equal(t, int64(1000), c.StagingInUse())

	c.ReleaseStaging(400)
	assert.Equal(t, int64(600), c.StagingInUse())
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(context.Background()))
	require.NoError(t, c.AcquireBackground(context.Background()))

	assert.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestController_Interconnect(t *testing.T) {
	c := NewController(Config{InterconnectBytesPerSec: 1 << 20})

	// Within the burst, the first wait is immediate.
	start := time.Now()
	require.NoError(t, c.WaitInterconnect(context.Background(), 1024))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Oversized requests are split instead of failing.
	require.NoError(t, c.WaitInterconnect(context.Background(), (1<<20)+1))
}

func TestController_NilIsUnlimited(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireStaging(context.Background(), 1<<40))
	assert.True(t, c.TryAcquireStaging(1<<40))
	c.ReleaseStaging(1 << 40)
	assert.Equal(t, int64(0), c.StagingInUse())

	require.NoError(t, c.AcquireBackground(context.Background()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()

	require.NoError(t, c.WaitInterconnect(context.Background(), 1<<30))
}

func TestMeteredWriter(t *testing.T) {
	var buf bytes.Buffer

	w := NewMeteredWriter(context.Background(), &buf, NewController(Config{InterconnectBytesPerSec: 1 << 20}))

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestMeteredReader(t *testing.T) {
	r := NewMeteredReader(context.Background(), bytes.NewReader([]byte("world")), nil)

	p := make([]byte, 5)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(p))
}
