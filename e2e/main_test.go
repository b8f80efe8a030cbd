//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// stubPath is the screener-stub binary built once for the whole suite.
var stubPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "screener-stub")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	stubPath = filepath.Join(dir, "screener-stub")
	build := exec.Command("go", "build", "-o", stubPath, "../cmd/screener-stub")
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to build screener-stub:", err)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}
