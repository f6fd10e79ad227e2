package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	for _, k := range []string{"ECON_TABLES_FILE", "PLATFORM_FEE_RATE", "FEE_TIER1_MAX", "FEE_TIER2_MAX", "FEE_TIER3_MAX", "ENV"} {
		t.Setenv(k, "")
	}
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	root.SetArgs(append(args, "--compact"))
	if err := root.Execute(); err != nil {
		return nil, err
	}
	var v map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v, nil
}

func TestFeeCmd(t *testing.T) {
	v, err := run(t, "fee", "--budget", "4000", "--complexity", "simple")
	require.NoError(t, err)
	assert.Equal(t, "320", v["finalServiceFee"])
	assert.Equal(t, "4807", v["totalEscrowRequired"])

	_, err = run(t, "fee", "--budget", "1e3")
	assert.ErrorContains(t, err, "plain decimal")

	_, err = run(t, "fee")
	assert.ErrorContains(t, err, `required flag(s) "budget" not set`)

	_, err = run(t, "fee", "--budget", "4000", "--kpi", "twitter")
	assert.ErrorContains(t, err, "source:weight")
}

func TestSettleCmd(t *testing.T) {
	v, err := run(t, "settle", "--base", "5000", "--achievement", "116.3", "--fee-rate", "0.04")
	require.NoError(t, err)
	assert.Equal(t, "5815", v["calculatedPayment"])
	assert.Equal(t, "232.6", v["platformFee"])
	assert.Equal(t, "5582.4", v["netToCreator"])
	assert.Equal(t, "0", v["refundToProject"])

	v, err = run(t, "settle", "--base", "1000", "--creator-score", "950", "--kpi", "reach:100:120:1")
	require.NoError(t, err)
	assert.Equal(t, "1200", v["calculatedPayment"])
	assert.Equal(t, "0.024", v["feeRate"])

	_, err = run(t, "settle", "--base", "1000", "--achievement", "100", "--kpi", "reach:100:120:1")
	assert.Error(t, err)

	_, err = run(t, "settle", "--base", "1000", "--kpi", "reach:100:120")
	assert.ErrorContains(t, err, "metric:target:actual:weight")
}

func TestDistributeCmd(t *testing.T) {
	v, err := run(t, "distribute", "--fee", "0.13")
	require.NoError(t, err)
	assert.Equal(t, "-0.01", v["remainder"])
	assert.Equal(t, "treasury", v["remainderLayer"])
}

func TestCVPICmd(t *testing.T) {
	v, err := run(t, "cvpi", "--cost", "1000", "--impact", "2000")
	require.NoError(t, err)
	assert.Equal(t, "0.5", v["cvpi"])

	_, err = run(t, "cvpi", "--cost", "1000", "--impact", "0")
	assert.ErrorContains(t, err, "zero")
}

func TestTierCmd(t *testing.T) {
	v, err := run(t, "tier", "--score", "720")
	require.NoError(t, err)
	assert.Equal(t, "B", v["tier"])
	next, ok := v["nextTier"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A", next["tier"])

	_, err = run(t, "tier", "--score", "50", "--scale", "nope")
	assert.ErrorContains(t, err, "nope")

	_, err = run(t, "tier", "--score", "1200")
	assert.Error(t, err)
}

func TestTablesCmd_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("platform_fee_rate: \"0.03\"\n"), 0o600))

	v, err := run(t, "tables", "--tables", path)
	require.NoError(t, err)
	assert.Equal(t, "0.03", v["platformFeeRate"])

	_, err = run(t, "tables", "--tables", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "load tables")
}
