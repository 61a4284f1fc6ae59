package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		" Info ":  "INFO",
		"warning": "WARN",
		"WARN":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestActiveLogger(t *testing.T) {
	prevCLI, prevServer := CLILogger, ServerLogger
	t.Cleanup(func() {
		CLILogger, ServerLogger = prevCLI, prevServer
	})

	CLILogger, ServerLogger = nil, nil
	assert.Nil(t, Active())
	// Helpers must tolerate a missing logger.
	Info("no logger configured", zap.String("k", "v"))
	Warn("no logger configured")

	InitCLILogger("retrostock-test", true)
	require.NotNil(t, CLILogger)
	assert.Same(t, CLILogger, Active())
	Debug("cli logger active", zap.Bool("verbose", true))

	InitServerLogger("retrostock-test", "debug", "retrostock")
	require.NotNil(t, ServerLogger)
	assert.Same(t, ServerLogger, Active())
	Error("server logger active", zap.Int("status", 500))
}

func TestCrucibleVersionAvailable(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, crucible.GetVersionString())
}
