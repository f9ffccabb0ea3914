package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyluth/dtioctl/internal/mechanism"
	"github.com/dyluth/dtioctl/internal/printer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// executeCommand runs rootCmd with args and returns everything written to
// stdout and stderr, including printer output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	restore := printer.SetOutput(buf, buf)
	defer restore()

	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	if args == nil {
		// A nil slice makes cobra fall back to os.Args
		args = []string{}
	}
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs([]string{})

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so tests do not leak state
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(parseSliceDefault(f.DefValue))
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func parseSliceDefault(def string) []string {
	def = strings.TrimSuffix(strings.TrimPrefix(def, "["), "]")
	if def == "" {
		return nil
	}
	return strings.Split(def, ",")
}

// fakeInstall creates <root>/lib/<posix library> and returns the install root
func fakeInstall(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	libDir := filepath.Join(root, "lib")
	require.NoError(t, os.MkdirAll(libDir, 0755))
	lib := filepath.Join(libDir, mechanism.HostPlatform().FileName(mechanism.POSIX))
	require.NoError(t, os.WriteFile(lib, []byte{}, 0644))
	return root
}

// writeDeclaration writes a dtio.yml into dir and returns its path
func writeDeclaration(t *testing.T, dir, name, installRoot, command string) string {
	t.Helper()
	shared := filepath.Join(dir, "shared")
	testDir := filepath.Join(dir, "test")
	content := fmt.Sprintf(`version: "1.0"
name: %s
shared_dir: %s
library_paths:
  - %s
interceptors:
  posix: true
scenario:
  test_dir: %s
  command: %q
`, name, shared, filepath.Join(installRoot, "lib"), testDir, command)

	path := filepath.Join(dir, "dtio.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
