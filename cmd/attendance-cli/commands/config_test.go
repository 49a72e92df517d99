package commands

import (
	"attendance-backend/internal/components/configutil"
	"attendance-backend/internal/scrapers/portal"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const exampleConfig = `{
	// file databases get WAL mode
	database: { file: "attendance.db" },
	portal: {
		base_url: "https://portal.example.edu",
		login_path: "/students/login",
		requests_per_second: 1,
		timeout_seconds: 10,
	},
	timezone: "Asia/Kolkata",
}`

func TestReadExampleConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attendance.json5")
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "attendance.local.json5"),
		[]byte(`{ portal: { cloudflare_bypass: true }, wait_seconds: 5 }`),
		0644,
	))

	config, err := configutil.ReadConfig[Config](path)
	require.NoError(t, err)
	require.Equal(t, "attendance.db", config.Database.File)
	require.Equal(t, "Asia/Kolkata", config.Timezone)
	require.Equal(t, 5*time.Second, config.Wait())

	diff := cmp.Diff(portal.Options{
		BaseUrl:           "https://portal.example.edu",
		LoginPath:         "/students/login",
		Bypass:            true,
		RequestsPerSecond: 1,
		Timeout:           10 * time.Second,
	}, config.Portal.Options())
	require.Empty(t, diff)
}

func TestDefaultWait(t *testing.T) {
	require.Equal(t, 30*time.Second, Config{}.Wait())
}
