package main

import (
	"bytes"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreReleaseCommand_ReturnsPermit(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	mr, err := miniredis.Run()
	require.NoError(err)
	t.Cleanup(mr.Close)

	var out, errOut bytes.Buffer
	ui := &cli.BasicUi{Writer: &out, ErrorWriter: &errOut}

	c := &semaphoreReleaseCommand{baseCommand: baseCommand{Ui: ui}}
	code := c.Run([]string{"-name", "test-sem", "-url", "redis://" + mr.Addr()})

	require.Equal(0, code, errOut.String())
	require.Contains(out.String(), "released a permit")

	n, err := mr.List("__self-limiters:test-sem")
	require.NoError(err)
	require.Len(n, 1)
}

func TestSemaphoreReleaseCommand_RequiresName(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var out, errOut bytes.Buffer
	ui := &cli.BasicUi{Writer: &out, ErrorWriter: &errOut}

	c := &semaphoreReleaseCommand{baseCommand: baseCommand{Ui: ui}}
	code := c.Run(nil)

	require.Equal(1, code)
	require.Contains(errOut.String(), "-name is required")
}
