package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotenvLine(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "plain path", value: "/opt/dtio/lib/libdtio.so", expected: "LD_PRELOAD=/opt/dtio/lib/libdtio.so"},
		{name: "preload chain", value: "/a.so:/b.so", expected: "LD_PRELOAD=/a.so:/b.so"},
		{name: "empty", value: "", expected: "LD_PRELOAD="},
		{name: "space", value: "/opt/my dtio/lib.so", expected: "LD_PRELOAD='/opt/my dtio/lib.so'"},
		{name: "hash", value: "/opt/dtio#2/lib.so", expected: "LD_PRELOAD='/opt/dtio#2/lib.so'"},
		{name: "dollar", value: "/opt/$HOME/lib.so", expected: "LD_PRELOAD='/opt/$HOME/lib.so'"},
		{name: "double quote", value: `/opt/"x"/lib.so`, expected: `LD_PRELOAD='/opt/"x"/lib.so'`},
		{name: "trailing space", value: "/opt/dtio ", expected: "LD_PRELOAD='/opt/dtio '"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line, err := dotenvLine("LD_PRELOAD", tc.value)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, line)
		})
	}
}

func TestDotenvLine_Unrepresentable(t *testing.T) {
	for _, value := range []string{"/opt/dtio\nEVIL=1", "/opt/dtio\r", "/opt/it's here"} {
		_, err := dotenvLine("DTIO_ROOT", value)
		require.Error(t, err, "value %q", value)
		assert.Contains(t, err.Error(), "DTIO_ROOT")
	}
}

func TestEnvCommand_DotenvQuotesValues(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "with space")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := writeDeclaration(t, dir, "lab", fakeInstall(t), "true")

	output, err := executeCommand(t, "env", "-f", path, "--format", "dotenv")
	require.NoError(t, err)
	assert.Contains(t, output, "DTIO_CONF_PATH='"+dir)
}
