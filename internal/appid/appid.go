package appid

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/retrostock/retrostock/internal/assets/appidentity"
)

// DefaultEnvPrefix is used when no identity could be resolved.
const DefaultEnvPrefix = "RETROSTOCK_"

func init() {
	// Explicit identity paths (FULMEN_APP_IDENTITY_PATH) stay authoritative;
	// the embedded copy only covers binaries run outside the repo.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity env prefix with a trailing underscore.
func EnvPrefix(ctx context.Context) string {
	identity, err := Get(ctx)
	if err != nil || identity == nil || strings.TrimSpace(identity.EnvPrefix) == "" {
		return DefaultEnvPrefix
	}
	prefix := identity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}
