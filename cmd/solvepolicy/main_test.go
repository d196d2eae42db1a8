package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/mctspo/internal/config"
	"github.com/sw965/mctspo/regpolicy"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// setup resets the flag globals and returns a command bound to them.
func setup(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	prior, values, lambda, c, visits = nil, nil, 0, 0, 0

	cmd := &cobra.Command{}
	cmd.Flags().Float32Var(&lambda, "lambda", 0, "")
	cmd.Flags().Float32Var(&c, "c", 0, "")
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	return cmd, buf
}

func TestRunSolveWithLambda(t *testing.T) {
	cmd, buf := setup(t)
	prior = []float32{0.5, 0.5}
	values = []float32{0.0, 0.0}
	require.NoError(t, cmd.Flags().Set("lambda", "1"))

	require.NoError(t, runSolve(cmd, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "0\t0.5"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1\t0.5"), lines[1])
}

func TestRunSolveWithVisits(t *testing.T) {
	cmd, buf := setup(t)
	prior = []float32{0.5, 0.5}
	values = []float32{1.0, 0.0}
	visits = 16

	require.NoError(t, runSolve(cmd, nil))
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
}

func TestResolveLambda(t *testing.T) {
	cmd, _ := setup(t)
	prior = []float32{0.5, 0.5}
	visits = 16
	require.NoError(t, cmd.Flags().Set("c", "2"))

	l, err := resolveLambda(cmd, config.DefaultConfig())
	require.NoError(t, err)
	want, err := regpolicy.Lambda(2, 16, 2)
	require.NoError(t, err)
	assert.Equal(t, want, l)
}

func TestRunSolveErrors(t *testing.T) {
	cmd, _ := setup(t)
	prior = []float32{0.5, 0.5}
	values = []float32{0.0}
	require.NoError(t, cmd.Flags().Set("lambda", "1"))
	assert.ErrorIs(t, runSolve(cmd, nil), regpolicy.ErrInvalidInput)

	cmd, _ = setup(t)
	prior = []float32{0.5, 0.5}
	values = []float32{0.0, 0.0}
	assert.Error(t, runSolve(cmd, nil), "zero visits without --lambda")

	cmd, _ = setup(t)
	prior = []float32{5.0, 5.0}
	values = []float32{0.0, 0.0}
	require.NoError(t, cmd.Flags().Set("lambda", "1"))
	assert.ErrorIs(t, runSolve(cmd, nil), regpolicy.ErrConvergence)
}

// execute runs a freshly built root command with real arguments.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestExecuteParsesFlags(t *testing.T) {
	out, err := execute(t, "--prior", "0.5,0.5", "--values=1,0", "--lambda", "0.1")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, prior)
	assert.Equal(t, []float32{1.0, 0.0}, values)

	want, err := regpolicy.Solve([]float32{0.5, 0.5}, []float32{1.0, 0.0}, 0.1)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, fmt.Sprintf("0\t%.6g", want[0]), lines[0])
	assert.Equal(t, fmt.Sprintf("1\t%.6g", want[1]), lines[1])
}

func TestExecuteLoggerLevel(t *testing.T) {
	_, err := execute(t, "--prior", "1", "--values", "0", "--lambda", "1")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = execute(t, "-v", "--prior", "1", "--values", "0", "--lambda", "1")
	require.NoError(t, err)
	assert.True(t, verbose)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestExecuteRequiredFlags(t *testing.T) {
	_, err := execute(t, "--values", "1,0", "--lambda", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"prior"`)

	_, err = execute(t, "--prior", "0.5,0.5", "--lambda", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"values"`)
}

func TestExecuteNonConvergence(t *testing.T) {
	_, err := execute(t, "--prior", "5,5", "--values", "0,0", "--lambda", "1")
	assert.ErrorIs(t, err, regpolicy.ErrConvergence)
}
