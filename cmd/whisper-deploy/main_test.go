package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whispernft/whisper-deployments/engine/config/env"
)

// runMainEnv makes the test binary run main instead of the tests.
const runMainEnv = "WHISPER_DEPLOY_RUN_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(runMainEnv) == "1" {
		os.Args = append([]string{"whisper-deploy"}, strings.Fields(os.Getenv(runMainEnv+"_ARGS"))...)
		main()
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func Test_main_ExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		giveArgs   string
		wantStderr []string
	}{
		{
			name:       "missing deployer key",
			wantStderr: []string{"Error:", "deployer key is not set"},
		},
		{
			name:       "unknown network",
			giveArgs:   "--network mainnet",
			wantStderr: []string{"Error:", "mainnet"},
		},
		{
			name:       "unexpected argument",
			giveArgs:   "WhisperNFT",
			wantStderr: []string{"Error:", "unknown command"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exe, err := os.Executable()
			require.NoError(t, err)

			var stdout, stderr bytes.Buffer
			cmd := exec.Command(exe)
			cmd.Dir = t.TempDir()
			cmd.Env = append(withoutKeyEnv(os.Environ()),
				runMainEnv+"=1",
				runMainEnv+"_ARGS="+tt.giveArgs,
				"NO_COLOR=1",
			)
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err = cmd.Run()

			var exitErr *exec.ExitError
			require.True(t, errors.As(err, &exitErr), "expected a non zero exit, got %v", err)
			assert.Equal(t, 1, exitErr.ExitCode())
			assert.Empty(t, stdout.String())
			for _, want := range tt.wantStderr {
				assert.Contains(t, stderr.String(), want)
			}
		})
	}
}

// withoutKeyEnv drops the deployer key variables from environ.
func withoutKeyEnv(environ []string) []string {
	names := env.KeyEnvVars()

	return slices.DeleteFunc(slices.Clone(environ), func(kv string) bool {
		name, _, _ := strings.Cut(kv, "=")

		return slices.Contains(names, name)
	})
}
