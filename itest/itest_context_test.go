//go:build itest
// +build itest

package itest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// testContext manages the test environment.
type testContext struct {
	t      *testing.T
	log    *zap.SugaredLogger
	cancel context.CancelFunc

	tmpRoot string

	bitcoinDir     string
	bitcoinRPC     string
	bitcoindCmd    *exec.Cmd
	bitcoincliPath string

	fakerPath string

	// tipServer answers like a block explorer's tip height endpoint,
	// using bitcoind's block count.
	tipServer *httptest.Server
}

// newTestContext creates a new test context.
func newTestContext(t *testing.T) *testContext {
	t.Helper()

	tctx := &testContext{
		t:   t,
		log: zaptest.NewLogger(t).Sugar(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	tctx.cancel = cancel

	// Create temp directory for test context.
	tmpRoot, err := os.MkdirTemp("", "psbtfaker-itest")
	require.NoError(t, err)
	tctx.tmpRoot = tmpRoot

	// Get binary paths
	bitcoindPath, err := exec.LookPath("bitcoind")
	require.NoError(t, err)

	tctx.bitcoincliPath, err = exec.LookPath("bitcoin-cli")
	require.NoError(t, err)

	tctx.fakerPath, err = exec.LookPath("psbtfaker")
	require.NoError(t, err)

	// Start bitcoind
	tctx.bitcoinDir = path.Join(tctx.tmpRoot, "bitcoin")
	err = os.Mkdir(tctx.bitcoinDir, fs.ModeDir|0700)
	require.NoError(t, err)

	tctx.bitcoinRPC = newPortString()

	tctx.bitcoindCmd = exec.CommandContext(ctx, bitcoindPath, "-server=1",
		"-datadir="+tctx.bitcoinDir, "-listen=0", "-regtest=1",
		"-rpcuser=user", "-rpcpassword=password",
		"-rpcport="+tctx.bitcoinRPC)

	go waitProc(tctx.bitcoindCmd)

	waitFile(
		t,
		path.Join(tctx.bitcoinDir, "/regtest/debug.log"),
		"init message: Done loading",
	)

	tctx.bitcoinCli("createwallet", "default")
	tctx.bitcoinCli("-generate", "101")

	tctx.tipServer = httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, tctx.blockCount())
		},
	))

	return tctx
}

// bitcoinCliRaw runs bitcoin-cli and returns its trimmed stdout.
func (tctx *testContext) bitcoinCliRaw(args ...string) string {
	tctx.t.Helper()

	bitcoinCliCmd := exec.CommandContext(context.Background(),
		tctx.bitcoincliPath,
		append([]string{"-datadir=" + tctx.bitcoinDir,
			"-rpcport=" + tctx.bitcoinRPC, "-rpcuser=user",
			"-rpcpassword=password", "-rpcwait",
			"-rpcwaittimeout=5"},
			args...)...)

	stdErrBuf := bytes.NewBuffer(make([]byte, 0))
	bitcoinCliCmd.Stderr = stdErrBuf

	stdOutBuf := bytes.NewBuffer(make([]byte, 0))
	bitcoinCliCmd.Stdout = stdOutBuf

	// If there's an error on exit, show stderr.
	err := bitcoinCliCmd.Run()
	require.NoError(tctx.t, err, stdErrBuf.String())

	return strings.TrimSpace(stdOutBuf.String())
}

// bitcoinCli sends a command to the test context's bitcoind and decodes
// the JSON object it returns.
func (tctx *testContext) bitcoinCli(args ...string) map[string]interface{} {
	tctx.t.Helper()

	stdout := tctx.bitcoinCliRaw(args...)

	// If there's an error parsing the JSON, show stdout to see the issue.
	resp := make(map[string]interface{})
	err := json.Unmarshal([]byte(stdout), &resp)
	require.NoError(tctx.t, err, stdout)

	return resp
}

func (tctx *testContext) blockCount() string {
	return tctx.bitcoinCliRaw("getblockcount")
}

// runFaker runs psbtfaker with args, writing base64 to a fresh file, and
// returns the PSBT text and the printed summary.
func (tctx *testContext) runFaker(args ...string) (string, string) {
	tctx.t.Helper()

	outFile, err := os.CreateTemp(tctx.tmpRoot, "*.psbt")
	require.NoError(tctx.t, err)
	require.NoError(tctx.t, outFile.Close())

	cmdArgs := append([]string{
		"--regtest", "--base64", "--configfile=/dev/null",
		"--tipurl=" + tctx.tipServer.URL,
	}, args...)
	cmdArgs = append(cmdArgs, outFile.Name())

	fakerCmd := exec.Command(tctx.fakerPath, cmdArgs...)

	stdErrBuf := bytes.NewBuffer(make([]byte, 0))
	fakerCmd.Stderr = stdErrBuf

	stdOutBuf := bytes.NewBuffer(make([]byte, 0))
	fakerCmd.Stdout = stdOutBuf

	err = fakerCmd.Run()
	require.NoError(tctx.t, err, stdErrBuf.String())

	tctx.log.Debugw("Ran psbtfaker", "args", cmdArgs,
		"stderr", stdErrBuf.String())

	psbt, err := os.ReadFile(outFile.Name())
	require.NoError(tctx.t, err)

	return string(psbt), stdOutBuf.String()
}

// Close cleans up the test context.
func (tctx *testContext) Close() {
	tctx.t.Helper()

	tctx.tipServer.Close()

	_ = tctx.bitcoinCliRaw("stop")

	tctx.cancel()

	os.RemoveAll(tctx.tmpRoot)
}

// waitFile waits for a file to contain waitStr.
func waitFile(t *testing.T, file, waitStr string) {
	t.Helper()

	for {
		time.Sleep(waitDelay)

		content, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			require.NoError(t, err)
		}

		if strings.Contains(string(content), waitStr) {
			return
		}
	}
}

func waitProc(cmd *exec.Cmd) {
	output, err := cmd.CombinedOutput()
	if err != nil && err.Error() != "signal: killed" {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeCaller = nil
		logger := zap.Must(config.Build()).Sugar()
		logger.Warnw(
			"WARNING: Service exited with error",
			"cmd", cmd.Path,
			"err", err,
			"stdout/stderr", string(output),
		)
	}
}

// newPortString finds an open TCP port to listen on and returns the port
// number as a string.
func newPortString() string {
	lis, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		panic(err)
	}
	defer lis.Close()
	return fmt.Sprintf("%d", lis.Addr().(*net.TCPAddr).Port)
}
