package compiler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/compose-network/zksync-devkit/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractOutput(t *testing.T) {
	tests := []struct {
		name     string
		combined string
		want     string
		wantErr  string
	}{
		{
			name:     "single contract",
			combined: `{"blabla": 123, "zk_version": 456, "version": 789}`,
			want:     `123`,
		},
		{
			name:     "too many contracts",
			combined: `{"blabla": 123, "zk_version": 456, "version": 789, "new_compiler_output_key": 101112}`,
			wantErr:  "expected exactly one contract key, found blabla, new_compiler_output_key",
		},
		{
			name:     "unknown metadata key",
			combined: `{"blabla": 123, "zk_versions": 456, "version": 789}`,
			wantErr:  "expected exactly one contract key, found blabla, zk_versions",
		},
		{
			name:     "no contract",
			combined: `{"zk_version": 456, "version": 789}`,
			wantErr:  "expected exactly one contract key, found ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var combined map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tt.combined), &combined))

			got, err := ContractOutput(combined)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrContractKeys)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParseVersion(t *testing.T) {
	version, err := ParseVersion("Vyper compiler for ZKsync v1.5.7 (LLVM build abc123)\n")
	require.NoError(t, err)
	assert.Equal(t, "v1.5.7", version.Original())
	assert.Equal(t, uint64(5), version.Minor())

	version, err = ParseVersion("zkvyper v1.5.10-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "rc.1", version.Prerelease())

	_, err = ParseVersion("zkvyper unknown")
	require.ErrorIs(t, err, ErrVersion)
}

const combinedJSON = `{
  "version": "0.4.0",
  "zk_version": "1.5.7",
  "/tmp/Counter.vy": {
    "bytecode": "0x0000000100200190",
    "bytecode_runtime": "0x00",
    "abi": [{"type": "function", "name": "inc", "inputs": [], "outputs": [], "stateMutability": "nonpayable"}],
    "method_identifiers": {"inc()": "0x371303c0"},
    "warnings": [],
    "factory_deps": {}
  }
}`

// fakeZkvyper writes a shell script answering --version and combined_json
// requests, recording its arguments in args.txt.
func fakeZkvyper(t *testing.T, output string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script compiler stub")
	}

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	outputFile := filepath.Join(dir, "output.json")
	require.NoError(t, os.WriteFile(outputFile, []byte(output), 0644))

	script := `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "Vyper compiler for ZKsync v1.5.7 (LLVM build f9f732c8)"
  exit 0
fi
echo "$@" > ` + argsFile + `
cat ` + outputFile + `
`
	path := filepath.Join(dir, "zkvyper")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))

	return path, argsFile
}

func TestCompileSource(t *testing.T) {
	zkvyper, argsFile := fakeZkvyper(t, combinedJSON)
	c := New(configs.Compiler{
		ZkvyperPath: zkvyper,
		VyperPath:   "/usr/bin/vyper",
		Args:        []string{"-O3"},
	})

	out, err := c.CompileSource(context.Background(), "counter: public(uint256)\n", "Counter")
	require.NoError(t, err)

	assert.Equal(t, "Counter", out.ContractName)
	assert.Equal(t, "counter: public(uint256)\n", out.SourceCode)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x20, 0x01, 0x90}, out.Bytecode)
	assert.Equal(t, "v1.5.7", out.ZkvyperVersion.Original())
	assert.Equal(t, map[string]string{"inc()": "0x371303c0"}, out.MethodIdentifiers)
	assert.Equal(t, []string{"-O3"}, out.CompilerArgs)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	fields := strings.Fields(string(args))
	require.Len(t, fields, 7)
	assert.Equal(t, []string{"--vyper", "/usr/bin/vyper", "-f", "combined_json", "-O3", "--"}, fields[:6])
	assert.True(t, strings.HasSuffix(fields[6], "Counter.vy"))
}

func TestCompileFileUsesStem(t *testing.T) {
	zkvyper, argsFile := fakeZkvyper(t, combinedJSON)
	c := New(configs.Compiler{ZkvyperPath: zkvyper, VyperPath: "vyper"})

	path := filepath.Join(t.TempDir(), "Token.vy")
	require.NoError(t, os.WriteFile(path, []byte("# token"), 0644))

	out, err := c.CompileFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Token", out.ContractName)
	assert.Equal(t, "# token", out.SourceCode)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), path)
}

func TestCompileRejectsAmbiguousOutput(t *testing.T) {
	zkvyper, _ := fakeZkvyper(t, `{"A.vy": {}, "B.vy": {}, "version": "0.4.0"}`)
	c := New(configs.Compiler{ZkvyperPath: zkvyper, VyperPath: "vyper"})

	_, err := c.CompileSource(context.Background(), "", "Pair")
	require.ErrorIs(t, err, ErrContractKeys)
	assert.Contains(t, err.Error(), "A.vy, B.vy")
}

func TestCompileReportsCompilerFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script compiler stub")
	}
	path := filepath.Join(t.TempDir(), "zkvyper")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho 'syntax error on line 1' >&2\nexit 1\n"), 0755))

	c := New(configs.Compiler{ZkvyperPath: path, VyperPath: "vyper"})
	_, err := c.CompileSource(context.Background(), "oops", "Broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error on line 1")
}
