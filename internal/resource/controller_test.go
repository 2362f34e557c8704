package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Builds(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireBuild(t.Context()))
	assert.False(t, c.TryAcquireBuild())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBuild(ctx))

	c.ReleaseBuild()
	assert.True(t, c.TryAcquireBuild())
	c.ReleaseBuild()
}

func TestController_Upload(t *testing.T) {
	c := NewController(Config{UploadBytesPerSec: 1000})
	assert.Equal(t, int64(1000), c.UploadLimit())

	// The bucket starts full.
	assert.True(t, c.TryAcquireUpload(1000))
	assert.False(t, c.TryAcquireUpload(1000))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireUpload(ctx, 2500))
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireBuild(t.Context()))
	assert.True(t, c.TryAcquireBuild())
	c.ReleaseBuild()
	require.NoError(t, c.AcquireUpload(t.Context(), 1<<30))
	assert.True(t, c.TryAcquireUpload(1))
	assert.Equal(t, int64(0), c.UploadLimit())
}
