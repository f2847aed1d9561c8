package node

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Environment variable names read by LoadEnv.
const (
	EnvRPCURLLocal = "ETH_RPC_URL_LOCAL"
	EnvRPCURL      = "ETH_RPC_URL"
	EnvIPCPath     = "ETH_IPC_PATH"
	EnvDBPath      = "ETH_DB_PATH"
)

// ErrMissingEnv is returned when a transport needs an endpoint that is
// not configured.
var ErrMissingEnv = errors.New("missing environment variable")

// Env holds the upstream endpoints each transport forks from.
type Env struct {
	RPCURLLocal string
	RPCURL      string
	IPCPath     string
	DBPath      string
}

// LoadEnv reads the endpoint variables from the process environment.
// If envFile names an existing dotenv file it fills in variables the
// environment leaves unset.
func LoadEnv(envFile string) (Env, error) {
	v := viper.New()

	for _, name := range []string{EnvRPCURLLocal, EnvRPCURL, EnvIPCPath, EnvDBPath} {
		if err := v.BindEnv(name); err != nil {
			return Env{}, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")

			if err := v.ReadInConfig(); err != nil {
				return Env{}, fmt.Errorf("read env file %s: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Env{}, fmt.Errorf("stat env file %s: %w", envFile, err)
		}
	}

	return Env{
		RPCURLLocal: v.GetString(EnvRPCURLLocal),
		RPCURL:      v.GetString(EnvRPCURL),
		IPCPath:     v.GetString(EnvIPCPath),
		DBPath:      v.GetString(EnvDBPath),
	}, nil
}

type envVar struct {
	name  string
	value string
}

// Require checks that every variable t depends on is set.
func (e Env) Require(t Transport) error {
	var required []envVar

	switch t {
	case HTTPLocal:
		required = []envVar{{EnvRPCURLLocal, e.RPCURLLocal}}
	case HTTPRemote:
		required = []envVar{{EnvRPCURL, e.RPCURL}}
	case IPC:
		required = []envVar{{EnvIPCPath, e.IPCPath}}
	case IPCDatabase:
		required = []envVar{{EnvIPCPath, e.IPCPath}, {EnvDBPath, e.DBPath}}
	default:
		return fmt.Errorf("unknown transport %v", t)
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s not found in environment or .env", ErrMissingEnv, r.name)
		}
	}

	return nil
}
