package node

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const binaryName = "anvil"

// ResolveBinary returns the anvil executable to run. An explicit path
// wins; otherwise $PATH, $FOUNDRY_DIR/bin and ~/.foundry/bin are searched
// in that order.
func ResolveBinary(explicit string) (string, error) {
	if explicit != "" {
		path, err := exec.LookPath(explicit)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", explicit, err)
		}

		return path, nil
	}

	if path, err := exec.LookPath(binaryName); err == nil {
		return path, nil
	}

	var candidates []string
	if dir := os.Getenv("FOUNDRY_DIR"); dir != "" {
		candidates = append(candidates, filepath.Join(dir, "bin", binaryName))
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".foundry", "bin", binaryName))
	}

	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf(
		"%s not found in PATH or foundry install dirs (install with foundryup)",
		binaryName,
	)
}

// Version returns the first line of `anvil --version`.
func Version(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version: %w", binary, err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")

	return line, nil
}
