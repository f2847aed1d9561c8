package node

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAdapter(env Env) *Adapter {
	return &Adapter{
		Binary: "anvil",
		Env:    env,
		Output: io.Discard,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Trace:  new(TraceToggle),
	}
}

func fullEnv() Env {
	return Env{
		RPCURLLocal: "http://127.0.0.1:8545",
		RPCURL:      "https://mainnet.example",
		IPCPath:     "/tmp/reth.ipc",
		DBPath:      "/data/state.json",
	}
}

func TestTraceToggleFirstOnly(t *testing.T) {
	var toggle TraceToggle

	assert.True(t, toggle.First())
	for i := 0; i < 10; i++ {
		assert.False(t, toggle.First())
	}
}

func TestTraceToggleConcurrent(t *testing.T) {
	var (
		toggle TraceToggle
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
	)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if toggle.First() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestConfigureTracesFirstNodeOnly(t *testing.T) {
	a := testAdapter(fullEnv())

	sequence := []Transport{IPC, HTTPLocal, IPCDatabase, IPC, HTTPRemote, HTTPLocal}
	for i, kind := range sequence {
		cfg, err := a.Configure(kind)
		require.NoError(t, err)

		if i == 0 {
			assert.True(t, cfg.Tracing, "first node traces")
			assert.True(t, cfg.StepsTracing)
			assert.False(t, cfg.Silent)
		} else {
			assert.False(t, cfg.Tracing, "node %d (%s) must be silent", i, kind)
			assert.False(t, cfg.StepsTracing)
			assert.True(t, cfg.Silent)
		}
	}
}

func TestConfigureSharesToggleAcrossAdapters(t *testing.T) {
	shared := new(TraceToggle)
	httpAdapter := testAdapter(fullEnv())
	httpAdapter.Trace = shared
	ipcAdapter := testAdapter(fullEnv())
	ipcAdapter.Trace = shared

	first, err := ipcAdapter.Configure(IPC)
	require.NoError(t, err)
	second, err := httpAdapter.Configure(HTTPLocal)
	require.NoError(t, err)

	assert.True(t, first.Tracing)
	assert.False(t, second.Tracing)
}

func TestConfigureMissingEnvKeepsToggle(t *testing.T) {
	a := testAdapter(Env{IPCPath: "/tmp/reth.ipc"})

	_, err := a.Configure(HTTPLocal)
	require.ErrorIs(t, err, ErrMissingEnv)

	cfg, err := a.Configure(IPC)
	require.NoError(t, err)
	assert.True(t, cfg.Tracing, "failed configure must not consume tracing")
}

func TestConfigureUniformSettings(t *testing.T) {
	a := testAdapter(fullEnv())

	tests := []struct {
		kind     Transport
		forkURL  string
		state    string
		endpoint string
	}{
		{HTTPLocal, "http://127.0.0.1:8545", "", "http://127.0.0.1:1299"},
		{HTTPRemote, "https://mainnet.example", "", "http://127.0.0.1:1299"},
		{IPC, "/tmp/reth.ipc", "", DefaultIPCPath()},
		{IPCDatabase, "/tmp/reth.ipc", "/data/state.json", DefaultIPCPath()},
	}

	for _, tt := range tests {
		cfg, err := a.Configure(tt.kind)
		require.NoError(t, err)

		assert.Equal(t, tt.kind, cfg.Transport)
		assert.Equal(t, tt.forkURL, cfg.ForkURL)
		assert.Equal(t, tt.state, cfg.StatePath)
		assert.Equal(t, tt.endpoint, cfg.Endpoint())
		assert.Equal(t, ForkBlock, cfg.ForkBlock)
		assert.Equal(t, GasLimit, cfg.GasLimit)
		assert.True(t, cfg.NoStorageCaching)
		assert.True(t, cfg.AutoImpersonate)
		assert.True(t, cfg.Forked())
	}
}

func TestConfigArgs(t *testing.T) {
	cfg := Config{
		Transport:        IPCDatabase,
		ForkURL:          "/tmp/reth.ipc",
		ForkBlock:        ForkBlock,
		Host:             DefaultHost,
		Port:             DefaultPort,
		IPCPath:          "/tmp/anvil.ipc",
		StatePath:        "/data/state.json",
		GasLimit:         GasLimit,
		NoStorageCaching: true,
		Silent:           true,
	}

	got := strings.Join(cfg.Args(), " ")
	want := "--host 127.0.0.1 --port 1299 --ipc /tmp/anvil.ipc --gas-limit 28000000 " +
		"--fork-url /tmp/reth.ipc --fork-block-number 14445961 " +
		"--load-state /data/state.json --no-storage-caching --silent"
	assert.Equal(t, want, got)
}

func TestConfigArgsTracing(t *testing.T) {
	cfg := Config{
		Transport:    HTTPLocal,
		Host:         DefaultHost,
		Port:         DefaultPort,
		IPCPath:      "/tmp/anvil.ipc",
		GasLimit:     GasLimit,
		Tracing:      true,
		StepsTracing: true,
	}

	args := cfg.Args()
	assert.Contains(t, args, "--print-traces")
	assert.Contains(t, args, "--steps-tracing")
	assert.NotContains(t, args, "--silent")
	assert.NotContains(t, args, "--fork-url", "unforked nodes carry no fork flags")
	assert.False(t, cfg.Forked())
}
