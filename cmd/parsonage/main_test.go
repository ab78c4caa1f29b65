package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parsonage-engine/property"
)

func TestRootCmd_Commands(t *testing.T) {
	root := rootCmd()

	for _, name := range []string{"serve", "sweep", "late-fee", "status", "seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	flags := root.PersistentFlags()
	for _, name := range []string{"db", "settings", "log-level", "log-format", "date"} {
		assert.NotNil(t, flags.Lookup(name), name)
	}
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := serveCmd(&options{})
	assert.NotNil(t, cmd.Flags().Lookup("port"))
	assert.NotNil(t, cmd.Flags().Lookup("interval"))
	assert.NotNil(t, cmd.Flags().Lookup("no-scheduler"))
}

func TestSeedThenSweepThenStatus(t *testing.T) {
	// GIVEN: A fresh database file seeded with the sample property
	// WHEN: Sweeping and asking for a payment's status
	// THEN: The overdue payment carries its fee
	dir := t.TempDir()
	db := filepath.Join(dir, "parsonage.db")
	run := func(args ...string) []byte {
		t.Helper()
		root := rootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(append([]string{
			"--db", db, "--settings", filepath.Join(dir, "none.json"),
			"--date", "2024-03-10", "--log-level", "error",
		}, args...))
		require.NoError(t, root.Execute())
		return out.Bytes()
	}

	run("seed")
	var report struct {
		FeesAssessed int
		Today        string
	}
	require.NoError(t, json.Unmarshal(run("sweep", "--scope", "payments"), &report))
	assert.Equal(t, 1, report.FeesAssessed)
	assert.Equal(t, "2024-03-10", report.Today)

	var view struct {
		Status     string
		FeeApplied bool
	}
	require.NoError(t, json.Unmarshal(run("status", "PAY-T-LINDQVIST-2024-03"), &view))
	assert.Equal(t, "Overdue", view.Status)
	assert.True(t, view.FeeApplied)

	_, err := newClock("03/10/2024", property.DefaultConfig())
	assert.Error(t, err)
}
