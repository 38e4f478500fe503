package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"shodeposit/native/sho"
	"shodeposit/report"
)

const testPassEnv = "SHOCTL_TEST_PASS"

func runJSON(t *testing.T, out any, args ...string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, run(args, &buf))
	if out != nil {
		require.NoError(t, json.Unmarshal(buf.Bytes(), out))
	}
}

func setupDeployment(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv(testPassEnv, "owner-pass")
	dir := t.TempDir()
	keystore := filepath.Join(dir, "owner.keystore")

	var keygen map[string]string
	runJSON(t, &keygen, "keygen", "-out", keystore, "-pass-env", testPassEnv, "-light")
	require.NotEmpty(t, keygen["address"])

	configPath := filepath.Join(dir, "sho.toml")
	contents := fmt.Sprintf(`DataDir = %q
EngineLabel = "cli-test"
OwnerKeystorePath = "owner.keystore"
Organizer = "0x00000000000000000000000000000000000000a1"
Receiver = "0x00000000000000000000000000000000000000a2"

[Logging]
Service = "shoctl-test"

[[Assets]]
Symbol = "usdc"
Address = "0x00000000000000000000000000000000000000c1"
Decimals = 6

  [[Assets.Allocations]]
  Holder = "0x0000000000000000000000000000000000000b01"
  Amount = "1000"
`, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(configPath, []byte(contents), 0o644))
	return configPath, keygen["address"]
}

func TestDeployAndAdminFlow(t *testing.T) {
	configPath, owner := setupDeployment(t)

	var deployed configView
	runJSON(t, &deployed, "deploy", "-config", configPath, "-pass-env", testPassEnv)
	require.Equal(t, owner, deployed.Owner)
	require.Equal(t, sho.EngineAddress("cli-test").Hex(), deployed.Engine)
	require.Equal(t, "asset-capped", deployed.Layout)

	err := run([]string{"deploy", "-config", configPath, "-pass-env", testPassEnv}, &bytes.Buffer{})
	require.ErrorIs(t, err, sho.ErrAlreadyDeployed)

	var paused configView
	runJSON(t, &paused, "pause", "-config", configPath, "-pass-env", testPassEnv)
	require.True(t, paused.Paused)
	err = run([]string{"pause", "-config", configPath, "-pass-env", testPassEnv}, &bytes.Buffer{})
	require.ErrorIs(t, err, sho.ErrPaused)

	var updated configView
	runJSON(t, &updated, "set-receiver", "-config", configPath, "-pass-env", testPassEnv,
		"-addr", "0x00000000000000000000000000000000000000a3")
	require.Equal(t, common.HexToAddress("0xa3").Hex(), updated.Receiver)

	err = run([]string{"set-token", "-config", configPath, "-pass-env", testPassEnv,
		"-addr", "0x00000000000000000000000000000000000000c1"}, &bytes.Buffer{})
	require.ErrorIs(t, err, sho.ErrLayoutMismatch)

	var recovered map[string]string
	runJSON(t, &recovered, "recover", "-config", configPath, "-pass-env", testPassEnv,
		"-addr", "0x00000000000000000000000000000000000000c1")
	require.Equal(t, "0", recovered["amount"])

	runJSON(t, nil, "transfer-ownership", "-config", configPath, "-pass-env", testPassEnv,
		"-addr", "0x00000000000000000000000000000000000000f9")
	err = run([]string{"unpause", "-config", configPath, "-pass-env", testPassEnv}, &bytes.Buffer{})
	require.ErrorIs(t, err, sho.ErrNotOwner)

	var inspected inspectReport
	runJSON(t, &inspected, "inspect", "-config", configPath)
	require.True(t, inspected.Config.Paused)
	require.Empty(t, inspected.Sales)
	require.Empty(t, inspected.Custody)
}

func TestInspectParticipantRequiresSale(t *testing.T) {
	configPath, _ := setupDeployment(t)
	runJSON(t, nil, "deploy", "-config", configPath, "-pass-env", testPassEnv)

	err := run([]string{"inspect", "-config", configPath, "-participant", "0x0000000000000000000000000000000000000b01"}, &bytes.Buffer{})
	require.Error(t, err)

	var inspected inspectReport
	runJSON(t, &inspected, "inspect", "-config", configPath, "-sale", "S1",
		"-participant", "0x0000000000000000000000000000000000000b01")
	require.NotNil(t, inspected.Deposited)
	require.False(t, *inspected.Deposited)
	require.Equal(t, "0", inspected.Sales[0].Accumulated)
}

func TestHostPauseOverride(t *testing.T) {
	configPath, _ := setupDeployment(t)
	runJSON(t, nil, "deploy", "-config", configPath, "-pass-env", testPassEnv)

	var inspected inspectReport
	runJSON(t, &inspected, "inspect", "-config", configPath)
	require.False(t, inspected.HostPaused)

	t.Setenv(pauseEnv, " swap, SHO ")
	runJSON(t, &inspected, "inspect", "-config", configPath)
	require.True(t, inspected.HostPaused)
	require.False(t, inspected.Config.Paused)
}

func TestExportEmptyLedger(t *testing.T) {
	configPath, _ := setupDeployment(t)
	runJSON(t, nil, "deploy", "-config", configPath, "-pass-env", testPassEnv)

	outDir := filepath.Join(filepath.Dir(configPath), "reports")
	var files report.Files
	runJSON(t, &files, "export", "-config", configPath, "-out", outDir)
	require.Zero(t, files.Rows)
	require.FileExists(t, files.CSVPath)
	require.FileExists(t, files.ParquetPath)
}

func TestUnknownCommand(t *testing.T) {
	require.ErrorIs(t, run([]string{"frobnicate"}, &bytes.Buffer{}), errUsage)
	require.ErrorIs(t, run(nil, &bytes.Buffer{}), errUsage)
}
