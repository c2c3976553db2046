package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMiniDappProjectToInstall(t *testing.T) {
	h := newHarnessWith(t, func(d *Deps) { d.DefaultCategory = "Finance" })
	h.node.HandleResponse("mds", map[string]any{"installed": true})
	dir := t.TempDir()

	env := h.ok(t, "create_minidapp_project", map[string]any{
		"name":        "wallet",
		"description": "A wallet",
		"output_dir":  dir,
	})
	project := filepath.Join(dir, "wallet")
	assert.Equal(t, project, env.Get("data.project_path").String())
	assert.Equal(t, "Created MiniDapp project 'wallet'", env.Get("message").String())
	conf, err := os.ReadFile(filepath.Join(project, "dapp.conf"))
	require.NoError(t, err)
	assert.Equal(t, "Finance", gjson.GetBytes(conf, "category").String())

	h.ok(t, "write_minidapp_file", map[string]any{
		"project_path": project,
		"file_name":    "js/app.js",
		"content":      "function hello() { return 1; }",
	})
	msg := h.fail(t, "write_minidapp_file", map[string]any{
		"project_path": project,
		"file_name":    "../outside.js",
		"content":      "x",
	})
	assert.Contains(t, msg, "resolves outside")

	env = h.ok(t, "package_minidapp", map[string]any{"project_path": project})
	zipPath := env.Get("data.zip_path").String()
	assert.Equal(t, filepath.Join(dir, "wallet.mds.zip"), zipPath)
	assert.Equal(t, int64(3), env.Get("data.file_count").Int())
	require.True(t, env.Get("warnings").IsArray())
	assert.Contains(t, env.Get("warnings.0").String(), "mds.js not found")

	env = h.ok(t, "install_packaged_minidapp", map[string]any{"zip_path": zipPath})
	assert.Equal(t, "mds action:install file:"+zipPath, h.lastCommand(t))
	assert.Equal(t, "MiniDapp installed successfully", env.Get("message").String())
	assert.Contains(t, env.Get("data").String(), "installed")
}

func TestPackageReportsScriptErrors(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	h.ok(t, "create_minidapp_project", map[string]any{"name": "broken", "description": "d", "output_dir": dir})
	project := filepath.Join(dir, "broken")
	require.NoError(t, os.WriteFile(filepath.Join(project, "mds.js"), []byte("var MDS = {};"), 0o644))
	h.ok(t, "write_minidapp_file", map[string]any{"project_path": project, "file_name": "app.js", "content": "function ( {"})

	env := h.ok(t, "package_minidapp", map[string]any{"project_path": project, "output_path": filepath.Join(dir, "out.mds.zip")})
	warnings := env.Get("warnings").Array()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].String(), "app.js")
}

func TestInstallRejectsNonArchive(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "fake.mds.zip")
	require.NoError(t, os.WriteFile(path, []byte("plain text, not a zip"), 0o644))

	msg := h.fail(t, "install_packaged_minidapp", map[string]any{"zip_path": path})
	assert.Contains(t, msg, "is not a zip archive")
	assert.Empty(t, h.node.Commands())
}

func TestCreateMiniDappStore(t *testing.T) {
	h := newHarnessWith(t, func(d *Deps) { d.StorePublicBase = "https://example.org/stores/" })
	h.node.HandleResponse("mds", map[string]any{"minidapps": []map[string]any{
		{"uid": "0xAPP", "conf": map[string]any{"name": "Chat", "version": "2.0.0", "icon": "chat.png", "category": "Social"}},
		{"uid": "0xSYS", "conf": map[string]any{"name": "Security", "category": "System"}},
		{"uid": "0xSTORE", "conf": map[string]any{"name": "Storefront", "category": "Store"}},
	}})
	dir := t.TempDir()

	env := h.ok(t, "create_minidapp_store", map[string]any{
		"name":        "Gaming Store",
		"description": "Games",
		"output_dir":  dir,
		"dapps": []any{
			map[string]any{"file": "https://x/y.mds.zip", "name": "Chess", "history": []any{map[string]any{"version": "0.9"}}},
			map[string]any{"file": "https://x/z.mds.zip"},
		},
		"scan_installed": true,
	})
	assert.Equal(t, "Successfully created MiniDapp Store JSON 'Gaming Store' with 3 MiniDapps (1 from installed apps)",
		env.Get("message").String())
	assert.Equal(t, int64(1), env.Get("data.scanned_apps_count").Int())
	assert.Equal(t, "https://example.org/stores/gaming_store.json", env.Get("data.public_url").String())
	assert.Equal(t, "Copy this URL: https://example.org/stores/gaming_store.json", env.Get("data.usage_instructions.0").String())
	assert.Equal(t, "0.9", env.Get("data.store_json.dapps.0.history.0.version").String())
	assert.Equal(t, "App 2", env.Get("data.store_json.dapps.1.name").String())
	assert.True(t, strings.HasSuffix(env.Get("data.store_json.dapps.2.file").String(), "/0xAPP/app.mds.zip"))
	assert.Equal(t, "mds", h.lastCommand(t))

	raw, err := os.ReadFile(filepath.Join(dir, "gaming_store.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.GetBytes(raw, "manifest_version").Int())

	env = h.ok(t, "list_minidapp_stores", nil)
	require.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "0xSTORE", env.Get("data.stores.0.uid").String())
	assert.True(t, strings.HasSuffix(env.Get("data.stores.0.url").String(), "/0xSTORE/store.json"))
}

func TestCreateStoreWithoutNode(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	// The fake node rejects mds, so scanning is skipped and the store is still written.
	env := h.ok(t, "create_minidapp_store", map[string]any{
		"name": "Empty", "description": "Nothing yet", "output_dir": dir, "scan_installed": true,
	})
	assert.Equal(t, int64(0), env.Get("data.dapps_count").Int())
	assert.Equal(t, "Copy this URL: "+filepath.Join(dir, "empty.json"), env.Get("data.usage_instructions.0").String())
	assert.Empty(t, env.Get("data.public_url").String())
}
