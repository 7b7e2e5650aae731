// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/valvestat/pkg/amf"
	"github.com/Thermoquad/valvestat/pkg/amf/amftest"
)

// resetFlags puts every flag of c and its subcommands back to its default.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// useValves routes --port names to simulated valves for the test.
func useValves(t *testing.T, valves map[string]*amftest.Valve) {
	t.Helper()
	prev := serialOpener
	serialOpener = func(name string, _ int) (amf.Port, error) {
		v, ok := valves[name]
		if !ok {
			return nil, fmt.Errorf("no such device %s", name)
		}
		return v, nil
	}
	t.Cleanup(func() { serialOpener = prev })
}

// runCLI runs the root command with args and returns its standard output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := Execute()
	return out.String(), err
}

func homedValve(ports int) *amftest.Valve {
	v := amftest.NewValve(ports)
	v.SetHomed(true)
	return v
}

func TestSwitchCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "switch", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Valve at port")
	assert.Equal(t, 4, valve.Position())
	assert.Contains(t, valve.Frames(), "/1b4R\r")
	assert.False(t, amf.PortInUse("sim0"))
}

func TestSwitchCommandOutOfRange(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	_, err := runCLI(t, "--port", "sim0", "--ports", "6", "switch", "9")
	require.ErrorIs(t, err, amf.ErrInvalidArgument)
	assert.Empty(t, valve.Frames())
}

func TestSwitchCommandNotHomed(t *testing.T) {
	valve := amftest.NewValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	_, err := runCLI(t, "--port", "sim0", "switch", "2", "--dir", "CW")
	require.ErrorIs(t, err, amf.ErrDeviceFault)

	var fault *amf.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 7, fault.Code)
}

func TestInitCommand(t *testing.T) {
	valve := amftest.NewValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "init", "3", "--set-ports", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized")
	assert.True(t, valve.Homed())
	assert.Equal(t, "/1@ADDR=3R\r", valve.Frames()[0])
	assert.Contains(t, valve.Frames(), "/3!808\r")
}

func TestPositionCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "position")
	require.NoError(t, err)
	assert.Contains(t, out, "Valve port")
	assert.Contains(t, out, "1")
}

func TestStatusCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "status", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "Transactions")
}

func TestInfoCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "1.4.2")
	assert.Contains(t, out, "SIM0001")
}

func TestSendCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "send", "GET_VALVE_POSITION")
	require.NoError(t, err)
	assert.Contains(t, out, "/1?6<CR>")
	assert.Contains(t, out, `data="1"`)
}

func TestSendCommandFault(t *testing.T) {
	valve := homedValve(6)
	valve.FailVerb(amf.VerbHome, 'I')
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "send", "Z")
	require.ErrorIs(t, err, amf.ErrDeviceFault)
	assert.Contains(t, out, "/1ZR<CR>")
}

func TestParseRawCommand(t *testing.T) {
	assert.Equal(t, amf.Cmd(amf.VerbHome), parseRawCommand([]string{"HOME"}))
	assert.Equal(t, amf.Cmd(amf.VerbHome), parseRawCommand([]string{"ZR"}))
	assert.Equal(t, amf.Cmd(amf.VerbGetValvePosition), parseRawCommand([]string{"?6"}))
	assert.Equal(t, amf.CmdString(amf.VerbSwitchShortest, "3"), parseRawCommand([]string{"switch_shortest", "3"}))
}

func TestBroadcastCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	_, err := runCLI(t, "--port", "sim0", "broadcast", "HOME", "--wait")
	require.NoError(t, err)
	assert.Equal(t, "/_ZR\r", valve.Frames()[0])
	assert.Equal(t, "/1?9200\r", valve.Frames()[1])
}

func TestPingCommand(t *testing.T) {
	valve := homedValve(6)
	useValves(t, map[string]*amftest.Valve{"sim0": valve})

	out, err := runCLI(t, "--port", "sim0", "ping", "--count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "2 sent, 2 answered, 0 lost")
}

func TestPingCommandExitCodes(t *testing.T) {
	useValves(t, map[string]*amftest.Valve{"sim0": homedValve(6)})

	var exitErr *ExitError

	_, err := runCLI(t, "--port", "missing", "ping")
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)

	// Nobody answers at address 2
	_, err = runCLI(t, "--port", "sim0", "--address", "2", "--read-timeout", "20ms", "ping")
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}

func TestBankCommands(t *testing.T) {
	a, b := amftest.NewValve(6), homedValve(12)
	useValves(t, map[string]*amftest.Valve{"simA": a, "simB": b})

	path := filepath.Join(t.TempDir(), "valves.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
valves:
  inlet: {port: simA, ports: 6}
  outlet: {port: simB, ports: 12}
`), 0o644))

	_, err := runCLI(t, "bank", "--config", path, "home")
	require.NoError(t, err)
	assert.True(t, a.Homed())

	_, err = runCLI(t, "bank", "--config", path, "set", "outlet", "11")
	require.NoError(t, err)
	assert.Equal(t, 11, b.Position())

	out, err := runCLI(t, "bank", "--config", path, "positions")
	require.NoError(t, err)
	assert.Contains(t, out, "inlet")
	assert.Contains(t, out, "11")
	assert.False(t, amf.PortInUse("simA"))
	assert.False(t, amf.PortInUse("simB"))
}

func TestCaptureRecordAndDump(t *testing.T) {
	useValves(t, map[string]*amftest.Valve{"sim0": homedValve(6)})
	path := filepath.Join(t.TempDir(), "link.cap")

	_, err := runCLI(t, "--port", "sim0", "--capture", path, "switch", "3")
	require.NoError(t, err)

	out, err := runCLI(t, "capture", "dump", path, "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "SWITCH_SHORTEST(3)")
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Answers:")
}

func TestRequiresConnection(t *testing.T) {
	_, err := runCLI(t, "position")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--port or --url")
}
