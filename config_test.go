package prayersw

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
name: prayer-app
version: v10
assets:
  - /static/styles.css
  - /offline
routes:
  bypass:
    - /login
    - /authorize
push:
  title: Prayer Reminder
  body: It's time for prayer.
`)

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.Name != "prayer-app" || config.Version != "v10" {
		t.Fatalf("config is %+v", config)
	}
	if len(config.Assets) != 2 || config.Assets[0] != "/static/styles.css" {
		t.Fatalf("assets are %v", config.Assets)
	}
	if len(config.Routes.Bypass) != 2 {
		t.Fatalf("bypass routes are %v", config.Routes.Bypass)
	}
	if config.Push.Title != "Prayer Reminder" {
		t.Fatalf("push title is %q", config.Push.Title)
	}
}

func TestLoadConfigRequiresVersion(t *testing.T) {
	path := writeConfig(t, "name: prayer-app\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error without version")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyOverridesOnlySetFields(t *testing.T) {
	config := Config{
		Name:    "prayer-app",
		Version: "v1",
		Push:    PushDefaults{Title: "Old"},
	}
	file := FileConfig{
		Version: "v2",
		Assets:  []string{"/static/styles.css"},
	}
	file.Apply(&config)

	if config.Version != "v2" {
		t.Fatalf("version is %q", config.Version)
	}
	if config.Name != "prayer-app" {
		t.Fatalf("name is %q", config.Name)
	}
	if config.Push.Title != "Old" {
		t.Fatalf("push title is %q", config.Push.Title)
	}
	if len(config.Manifest) != 1 {
		t.Fatalf("manifest is %v", config.Manifest)
	}
}
