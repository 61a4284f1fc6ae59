package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/appid"
)

func TestAppIdentityLoading(t *testing.T) {
	identity, err := appid.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, identity)

	assert.Equal(t, "retrostock", identity.BinaryName)
	assert.Equal(t, "retrostock", identity.Vendor)
	assert.Equal(t, "retrostock", identity.ConfigName)
	assert.True(t, strings.HasSuffix(identity.EnvPrefix, "_"), "env prefix %q", identity.EnvPrefix)
	assert.Equal(t, "retrostock", identity.TelemetryNamespace())
}
