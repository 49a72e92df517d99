package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `json:"name"`
	Retries int    `json:"retries"`
	Nested  struct {
		Url string `json:"url"`
	} `json:"nested"`
}

func writeFile(t testing.TB, path, content string) {
	err := os.WriteFile(path, []byte(content), 0666)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](path)
	require.ErrorIs(t, err, os.ErrNotExist)

	writeFile(t, path, `{
		// comments are allowed
		name: "portal",
		retries: 2,
		nested: { url: "https://example.com" },
	}`)

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "portal", cfg.Name)
	require.Equal(t, 2, cfg.Retries)

	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ retries: 5, nested: { url: "http://localhost" } }`)

	cfg, err = ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, "portal", cfg.Name)
	require.Equal(t, 5, cfg.Retries)
	require.Equal(t, "http://localhost", cfg.Nested.Url)
}

func TestReadRecursively(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	writeFile(t, filepath.Join(dir, "recursive_test.json5"), `{ name: "root" }`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	cfg, err := ReadRecursively[testConfig]("recursive_test.json5")
	require.NoError(t, err)
	require.Equal(t, "root", cfg.Name)

	_, err = ReadRecursively[testConfig]("definitely_missing_config.json5")
	require.ErrorIs(t, err, os.ErrNotExist)
}
