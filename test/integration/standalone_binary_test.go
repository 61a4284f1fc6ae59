package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `categories:
  - name: Nintendo
    consoles:
      - name: NES
        slug: nes
        items:
          - name: Metroid
            price: 30
          - name: Zapper
            kind: accessory
            price: 12
`

func buildBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	goModPath := strings.TrimSpace(string(goModPathBytes))
	require.NotEmpty(t, goModPath, "go env GOMOD returned empty")
	repoRoot := filepath.Dir(goModPath)

	binaryPath := filepath.Join(t.TempDir(), "retrostock")
	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/retrostock")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "go build: %s", out)

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "retrostock")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(copiedBinary, data, 0o755))
	return copiedBinary
}

func TestStandaloneBinaryVersionAndHelpWorkOutsideRepo(t *testing.T) {
	binary := buildBinary(t)
	outside := filepath.Dir(binary)

	version := exec.Command(binary, "version")
	version.Dir = outside
	out, err := version.CombinedOutput()
	require.NoError(t, err, "version failed: %s", out)
	assert.Contains(t, string(out), "retrostock")

	help := exec.Command(binary, "--help")
	help.Dir = outside
	out, err = help.CombinedOutput()
	require.NoError(t, err, "--help failed: %s", out)
	for _, sub := range []string{"serve", "seed", "import", "duplicates", "items", "images"} {
		assert.Contains(t, string(out), sub)
	}
}

func TestStandaloneBinarySeedAndList(t *testing.T) {
	binary := buildBinary(t)
	work := t.TempDir()

	seedPath := filepath.Join(work, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0o644))

	env := append(os.Environ(),
		"HOME="+work,
		"XDG_CONFIG_HOME="+filepath.Join(work, "config"),
		"RETROSTOCK_STORE_DRIVER=sqlite",
		"RETROSTOCK_STORE_PATH="+filepath.Join(work, "shop.db"),
		"RETROSTOCK_METRICS_ENABLED=false",
	)
	run := func(args ...string) []byte {
		t.Helper()
		cmd := exec.Command(binary, args...)
		cmd.Dir = work
		cmd.Env = env
		out, err := cmd.Output()
		require.NoError(t, err, "%v failed: %s", args, out)
		return out
	}

	run("migrate")
	run("seed", seedPath)
	// A second seed must not duplicate anything.
	report := run("seed", seedPath)
	var seeded struct {
		ItemsCreated int `json:"items_created"`
		ItemsSkipped int `json:"items_skipped"`
	}
	require.NoError(t, json.Unmarshal(report, &seeded))
	assert.Equal(t, 0, seeded.ItemsCreated)
	assert.Equal(t, 2, seeded.ItemsSkipped)

	listed := run("items", "list", "--console", "NES", "-o", "json")
	var page struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(listed, &page))
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Items, 2)
}
