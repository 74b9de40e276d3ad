package term

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/backmassage/retuner/internal/config"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() { Configure(config.ColorNever) })

	Configure(config.ColorAlways)
	if !Enabled() || Red == "" || NC == "" {
		t.Error("ColorAlways should enable colors")
	}
	Configure(config.ColorNever)
	if Enabled() || Red != "" || Bold != "" {
		t.Error("ColorNever should clear colors")
	}
}

func TestResolve_AutoHonorsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if resolve(config.ColorAuto) {
		t.Error("auto mode should be off when NO_COLOR is set")
	}
}

func TestIsTerminal_RegularFile(t *testing.T) {
	if IsTerminal(nil) {
		t.Error("IsTerminal(nil) = true")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
}
