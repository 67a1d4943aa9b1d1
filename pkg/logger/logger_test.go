package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Test_ParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		give    string
		want    zapcore.Level
		wantErr bool
	}{
		{give: "debug", want: zapcore.DebugLevel},
		{give: "info", want: zapcore.InfoLevel},
		{give: "WARN", want: zapcore.WarnLevel},
		{give: "error", want: zapcore.ErrorLevel},
		{give: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.give, func(t *testing.T) {
			t.Parallel()

			got, err := ParseLevel(tt.give)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Level)
		})
	}
}

func Test_Config_New(t *testing.T) {
	t.Parallel()

	cfg := Config{Level: zapcore.WarnLevel}
	lggr, err := cfg.New()
	require.NoError(t, err)
	require.NotNil(t, lggr)
}

func Test_NewWith(t *testing.T) {
	t.Parallel()

	lggr, err := NewWith(func(cfg *zap.Config) {
		cfg.OutputPaths = []string{"stdout"}
	})
	require.NoError(t, err)
	assert.NotNil(t, lggr)

	_, err = NewWith(func(cfg *zap.Config) {
		cfg.Encoding = "unknown"
	})
	require.Error(t, err)
}

func Test_Named(t *testing.T) {
	t.Parallel()

	lggr := Test(t).Named("deployer").Named("rpc")
	assert.Equal(t, "deployer.rpc", lggr.Name())
}

func Test_TestObserved_With(t *testing.T) {
	t.Parallel()

	lggr, logs := TestObserved(t, zapcore.InfoLevel)

	child := lggr.Named("deployer").With("runID", "2Ksj")
	child.Debugw("Resolved artifact")
	child.Infow("Account balance", "balanceWei", "2000000000000000000")

	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	assert.Equal(t, "Account balance", entry.Message)
	assert.Equal(t, "deployer", entry.LoggerName)
	assert.Equal(t, map[string]any{
		"runID":      "2Ksj",
		"balanceWei": "2000000000000000000",
	}, entry.ContextMap())
}

func Test_Nop(t *testing.T) {
	t.Parallel()

	lggr := Nop()
	lggr.Infow("dropped")
	assert.Empty(t, lggr.Name())
}
