package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("manifest:loader_test - write %s: %v", path, err)
	}
	return path
}

func TestLoad_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	explicit := writeManifest(t, dir, "explicit.json", `{"name":"Explicit","appId":"x.app"}`)
	env := writeManifest(t, dir, "env.json", `{"name":"FromEnv"}`)
	t.Setenv(EnvFile, env)

	m := Load(explicit)
	if m.Name != "Explicit" || m.AppID != "x.app" {
		t.Errorf("manifest:loader_test - got %+v", m)
	}
	if m.Version != "1.0.0" || m.Author != "straca" {
		t.Errorf("manifest:loader_test - defaults not merged: %+v", m)
	}
}

func TestLoad_FallsBackThroughPaths(t *testing.T) {
	dir := t.TempDir()
	bad := writeManifest(t, dir, "bad.json", `{not json`)
	env := writeManifest(t, dir, "env.json", `{"name":"FromEnv","icons":[{"src":"/i.png","type":"image/png","sizes":"64x64"}]}`)
	t.Setenv(EnvFile, env)

	m := Load(bad, filepath.Join(dir, "missing.json"))
	if m.Name != "FromEnv" {
		t.Errorf("manifest:loader_test - name = %q, want FromEnv", m.Name)
	}
	if len(m.Icons) != 1 || m.Icons[0].Sizes != "64x64" {
		t.Errorf("manifest:loader_test - icons = %+v", m.Icons)
	}
}

func TestLoad_Default(t *testing.T) {
	t.Setenv(EnvFile, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("manifest:loader_test - getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("manifest:loader_test - chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	m := Load()
	def := Default()
	if m.Name != def.Name || m.Version != def.Version || m.Icons == nil {
		t.Errorf("manifest:loader_test - got %+v, want default", m)
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	got := Merge(base, &Manifest{ShortName: "s", Version: "2.0.0"})
	if got.ShortName != "s" || got.Version != "2.0.0" || got.Name != base.Name {
		t.Errorf("manifest:loader_test - merged = %+v", got)
	}
	if base.ShortName != "straca" {
		t.Error("manifest:loader_test - base modified")
	}
}
