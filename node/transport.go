// Package node spawns and tears down forked anvil instances and exposes
// the JSON-RPC surface a trial needs over HTTP or IPC.
package node

import (
	"fmt"
	"strings"
)

// Transport selects how a node forks its upstream state and how the
// harness talks to it.
type Transport int

const (
	// HTTPLocal forks from ETH_RPC_URL_LOCAL and is reached over HTTP.
	HTTPLocal Transport = iota
	// HTTPRemote forks from ETH_RPC_URL and is reached over HTTP.
	HTTPRemote
	// IPC forks from the ETH_IPC_PATH socket and is reached over IPC.
	IPC
	// IPCDatabase is IPC with state preloaded from ETH_DB_PATH.
	IPCDatabase
)

var transportNames = map[Transport]string{
	HTTPLocal:   "http-local",
	HTTPRemote:  "http-remote",
	IPC:         "ipc",
	IPCDatabase: "ipc-db",
}

var transportLabels = map[Transport]string{
	HTTPLocal:   "http local fork",
	HTTPRemote:  "http external fork",
	IPC:         "Ipc fork",
	IPCDatabase: "Ipc ethers_reth fork",
}

// KnownTransports returns every transport in declaration order.
func KnownTransports() []Transport {
	return []Transport{HTTPLocal, HTTPRemote, IPC, IPCDatabase}
}

// String returns the flag name of t.
func (t Transport) String() string {
	if name, ok := transportNames[t]; ok {
		return name
	}

	return fmt.Sprintf("transport(%d)", int(t))
}

// Label returns the human readable name used in reports.
func (t Transport) Label() string {
	if label, ok := transportLabels[t]; ok {
		return label
	}

	return t.String()
}

// UsesIPC reports whether the harness reaches the node over its IPC socket.
func (t Transport) UsesIPC() bool {
	return t == IPC || t == IPCDatabase
}

// ParseTransport converts a flag name into a Transport.
func ParseTransport(s string) (Transport, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range transportNames {
		if n == name {
			return t, nil
		}
	}

	return 0, fmt.Errorf("unknown transport %q", s)
}
