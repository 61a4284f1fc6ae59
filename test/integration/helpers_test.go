package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/server"
)

const adminToken = "integration-admin-token"

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = observability.StopMetrics()
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

func shopSeed() catalog.SeedFile {
	return catalog.SeedFile{Categories: []catalog.SeedCategory{{
		Name: "Nintendo",
		Consoles: []catalog.SeedConsole{{
			Name:         "NES",
			Slug:         "nes",
			Manufacturer: "Nintendo",
			ReleaseYear:  1985,
			Items: []catalog.SeedItem{
				{Name: "Metroid", Price: 30, Featured: true},
				{Name: "Zelda", Price: 45, Quantity: core.Int(2)},
				{Name: "Zapper", Kind: "accessory", Price: 12},
			},
		}},
	}}}
}

type shop struct {
	catalog *catalog.Service
	store   *store.Store
}

// newShop opens an in-memory catalog seeded with a few NES items.
func newShop(t *testing.T) *shop {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	svc := catalog.NewService(st, catalog.Options{})
	_, err = svc.Seed(ctx, shopSeed())
	require.NoError(t, err)
	return &shop{catalog: svc, store: st}
}

// newTestServer binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func newTestServer(t *testing.T, s *shop) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, server.Deps{
		Catalog:    s.catalog,
		Contact:    contact.NewService(s.store, contact.DefaultLimits),
		Store:      s.store,
		Limiter:    ratelimit.New(ratelimit.DefaultRules()),
		AdminToken: adminToken,
		MediaDir:   t.TempDir(),
		Import:     importer.Options{DefaultCategory: importer.DefaultCategory},
	})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}
