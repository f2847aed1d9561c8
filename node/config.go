package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

// Fixed node settings shared by every transport.
const (
	ForkBlock   uint64 = 14_445_961
	GasLimit    uint64 = 28_000_000
	ChainID     uint64 = 1
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 1299
)

// DefaultIPCPath is the socket the node itself listens on.
func DefaultIPCPath() string {
	return filepath.Join(os.TempDir(), "anvil.ipc")
}

// Config describes how to spawn one node instance.
type Config struct {
	Transport Transport
	// ForkURL is the upstream HTTP URL or IPC socket the node forks from.
	ForkURL   string
	ForkBlock uint64
	Host      string
	Port      int
	// IPCPath is the socket the node serves.
	IPCPath string
	// StatePath preloads state from disk.
	StatePath        string
	GasLimit         uint64
	ChainID          uint64
	Tracing          bool
	StepsTracing     bool
	Silent           bool
	NoStorageCaching bool
	AutoImpersonate  bool
}

// Forked reports whether the node pulls state from an upstream chain.
func (c Config) Forked() bool {
	return c.ForkURL != ""
}

// Endpoint returns the address the harness dials: the node's IPC socket
// for IPC transports, its HTTP URL otherwise.
func (c Config) Endpoint() string {
	if c.Transport.UsesIPC() {
		return c.IPCPath
	}

	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// Args renders c as anvil command line arguments.
func (c Config) Args() []string {
	args := []string{
		"--host", c.Host,
		"--port", strconv.Itoa(c.Port),
		"--ipc", c.IPCPath,
		"--gas-limit", strconv.FormatUint(c.GasLimit, 10),
	}

	if c.Forked() {
		args = append(args,
			"--fork-url", c.ForkURL,
			"--fork-block-number", strconv.FormatUint(c.ForkBlock, 10),
		)
	}

	if c.StatePath != "" {
		args = append(args, "--load-state", c.StatePath)
	}

	if c.NoStorageCaching {
		args = append(args, "--no-storage-caching")
	}

	if c.Tracing {
		args = append(args, "--print-traces")
	}

	if c.StepsTracing {
		args = append(args, "--steps-tracing")
	}

	if c.Silent {
		args = append(args, "--silent")
	}

	return args
}

// TraceToggle hands out tracing to exactly one caller.
type TraceToggle struct {
	n atomic.Uint32
}

// First returns true on the first call and false on every call after.
func (t *TraceToggle) First() bool {
	return t.n.CompareAndSwap(0, 1)
}

// processTrace is shared by every Adapter so only the first node of the
// process runs with tracing, whatever its transport.
var processTrace TraceToggle
