package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteSystemdUnit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "systemd", "user")

	path, err := WriteSystemdUnit(dir, "/usr/local/bin/vcamd")
	if err != nil {
		t.Fatalf("WriteSystemdUnit failed: %v", err)
	}
	if filepath.Base(path) != UnitName {
		t.Errorf("unit path = %s, want basename %s", path, UnitName)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)

	for _, want := range []string{
		"ExecStart=/usr/local/bin/vcamd",
		"Type=notify",
		"WatchdogSec=30",
		"Restart=on-failure",
		"WantedBy=default.target",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("unit file missing %q:\n%s", want, text)
		}
	}
}

func TestWriteDesktopEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "autostart")

	path, err := WriteDesktopEntry(dir, "/usr/local/bin/vcamd")
	if err != nil {
		t.Fatalf("WriteDesktopEntry failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(content)

	if !strings.Contains(text, "Exec=/usr/local/bin/vcamd") {
		t.Errorf("desktop entry missing Exec line:\n%s", text)
	}
	if !strings.HasPrefix(text, "[Desktop Entry]") {
		t.Errorf("desktop entry missing header:\n%s", text)
	}
}

func TestWriteSystemdUnitCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deeply", "nested", "systemd", "user")

	if _, err := WriteSystemdUnit(dir, "/usr/bin/vcamd"); err != nil {
		t.Fatalf("WriteSystemdUnit failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, UnitName)); err != nil {
		t.Errorf("unit file not created: %v", err)
	}
}
