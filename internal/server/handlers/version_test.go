package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getVersion(t *testing.T) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestVersionHandlerIncludesIdentityMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-03-01T12:00:00Z")
	SetAppIdentity(&appidentity.Identity{BinaryName: "retrostock"})
	t.Cleanup(func() {
		SetVersionInfo("dev", "unknown", "unknown")
		SetAppIdentity(nil)
	})

	body := getVersion(t)
	app := body["app"].(map[string]any)
	assert.Equal(t, "retrostock", app["name"])
	assert.Equal(t, "1.2.3", app["version"])
	assert.Equal(t, "abcd123", app["git_commit"])
	assert.NotEmpty(t, app["platform"])

	deps := body["dependencies"].(map[string]any)
	assert.NotEmpty(t, deps["gofulmen"])
	assert.NotEmpty(t, deps["crucible"])

	assert.NotContains(t, body, "runtime")
}

func TestVersionHandlerFallsBackToExecutableName(t *testing.T) {
	SetAppIdentity(nil)

	app := getVersion(t)["app"].(map[string]any)
	assert.NotEmpty(t, app["name"])
}
