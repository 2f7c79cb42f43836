package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendledger/native/bank"
	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
	"lendledger/services/lendingd/server"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func startServer(t *testing.T) string {
	t.Helper()
	ledger := bank.NewLedger()
	require.NoError(t, ledger.Mint("alice", 10_000))
	require.NoError(t, ledger.Mint("pool", 100_000))
	engine := lending.NewEngine(lending.NewMemStore(), ledger, lending.NewManualClock(1))
	_, err := engine.InitGenesis(lending.DefaultParameters("owner", "pool"))
	require.NoError(t, err)
	pauses := nativecommon.NewPauses(nil)
	engine.SetPauses(pauses)
	srv, err := server.New(server.Config{Auth: server.AuthConfig{HMACSecret: testSecret}, DisableRateLimit: true}, server.Deps{Engine: engine, Pauses: pauses})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestTokenCommandSignsForSubject(t *testing.T) {
	t.Setenv(defaultSecret, testSecret)
	out, err := runCmd(t, "token", "-subject", "alice", "-ttl", "5m")
	require.NoError(t, err)

	auth, err := server.NewAuthenticator(server.AuthConfig{HMACSecret: testSecret}, nil)
	require.NoError(t, err)
	caller, err := auth.Authenticate(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, lending.AccountID("alice"), caller)

	_, err = runCmd(t, "token")
	require.Error(t, err)
}

func TestAPICommandsDriveTheLedger(t *testing.T) {
	url := startServer(t)
	tok, err := server.SignToken(testSecret, "", "", "alice", time.Hour, time.Now())
	require.NoError(t, err)

	out, err := runCmd(t, "deposit", "-server", url, "-token", tok, "-amount", "2500")
	require.NoError(t, err)
	var acc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &acc))
	require.Equal(t, "2500", acc["poolBalance"])

	out, err = runCmd(t, "open", "-server", url, "-token", tok, "-principal", "1000", "-collateral", "1500")
	require.NoError(t, err)
	require.Contains(t, out, `"state": "active"`)

	out, err = runCmd(t, "count", "-server", url)
	require.NoError(t, err)
	require.Contains(t, out, `"count": 1`)

	_, err = runCmd(t, "repay", "-server", url, "-token", tok, "-loan", "1", "-amount", "10")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "insufficient_payment", apiErr.Code)
	require.Equal(t, 422, apiErr.Status)

	_, err = runCmd(t, "withdraw", "-server", url, "-amount", "1")
	require.ErrorContains(t, err, "LENDCTL_TOKEN")

	_, err = runCmd(t, "bogus", "-server", url)
	require.Error(t, err)
}

func TestPauseAndResumeCommands(t *testing.T) {
	url := startServer(t)
	ownerTok, err := server.SignToken(testSecret, "", "", "owner", time.Hour, time.Now())
	require.NoError(t, err)
	aliceTok, err := server.SignToken(testSecret, "", "", "alice", time.Hour, time.Now())
	require.NoError(t, err)

	_, err = runCmd(t, "pause", "-server", url, "-token", aliceTok)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "unauthorized", apiErr.Code)

	out, err := runCmd(t, "pause", "-server", url, "-token", ownerTok, "-module", "lending")
	require.NoError(t, err)
	require.Contains(t, out, `"paused": true`)

	_, err = runCmd(t, "deposit", "-server", url, "-token", aliceTok, "-amount", "10")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "paused", apiErr.Code)

	_, err = runCmd(t, "resume", "-server", url, "-token", ownerTok)
	require.NoError(t, err)
	out, err = runCmd(t, "paused", "-server", url)
	require.NoError(t, err)
	require.Contains(t, out, `"paused": false`)
}
