package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/exec"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
)

// CallArgs is the transaction object sent with eth_call.
type CallArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data"`
	ChainID  *hexutil.Big    `json:"chainId,omitempty"`
}

// Instance is a running node with a control API handle and a chain
// client, both connected over the configured transport.
type Instance struct {
	Config Config

	client *ethclient.Client
	api    *rpc.Client
	proc   *process
	logger *slog.Logger
}

func newInstance(
	cfg Config,
	client *ethclient.Client,
	api *rpc.Client,
	proc *process,
	logger *slog.Logger,
) *Instance {
	return &Instance{
		Config: cfg,
		client: client,
		api:    api,
		proc:   proc,
		logger: logger,
	}
}

// Client returns the chain client bound to the node.
func (i *Instance) Client() *ethclient.Client { return i.client }

// ForkBlock returns the upstream block the node's state is pinned to.
func (i *Instance) ForkBlock() uint64 { return i.Config.ForkBlock }

// SetBalance overwrites the balance of addr.
func (i *Instance) SetBalance(ctx context.Context, addr common.Address, balance *uint256.Int) error {
	if err := i.api.CallContext(ctx, nil, "anvil_setBalance", addr, (*hexutil.Big)(balance.ToBig())); err != nil {
		return fmt.Errorf("anvil_setBalance %s: %w", addr, err)
	}

	return nil
}

// AutoImpersonate lets any address send transactions without a key.
func (i *Instance) AutoImpersonate(ctx context.Context, enabled bool) error {
	if err := i.api.CallContext(ctx, nil, "anvil_autoImpersonateAccount", enabled); err != nil {
		return fmt.Errorf("anvil_autoImpersonateAccount: %w", err)
	}

	return nil
}

// NonceAt returns the transaction count of account at block, or at the
// latest block when block is nil.
func (i *Instance) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	return i.client.NonceAt(ctx, account, block)
}

// SuggestGasPrice returns the node's current gas price.
func (i *Instance) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return i.client.SuggestGasPrice(ctx)
}

// Call executes args with eth_call at block and returns the raw result.
func (i *Instance) Call(ctx context.Context, args CallArgs, block uint64) ([]byte, error) {
	var result hexutil.Bytes
	if err := i.client.Client().CallContext(ctx, &result, "eth_call", args, hexutil.EncodeUint64(block)); err != nil {
		return nil, err
	}

	return result, nil
}

// Teardown releases the chain client, flushes the fork cache when the
// node is forked, aborts the node process and releases the API handle.
func (i *Instance) Teardown(ctx context.Context) error {
	i.client.Close()

	var errs []error

	if i.proc != nil {
		if i.Config.Forked() {
			if err := i.proc.flush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("flush fork cache: %w", err))
			}
		}

		if err := i.proc.abort(ctx); err != nil {
			errs = append(errs, fmt.Errorf("abort node: %w", err))
		}
	}

	i.api.Close()

	i.logger.DebugContext(ctx, "node released",
		slog.String("endpoint", i.Config.Endpoint()),
	)

	return errors.Join(errs...)
}

// process supervises the anvil child process.
type process struct {
	cmd    *exec.Cmd
	stderr *syncBuffer
	done   chan struct{}
	err    error
}

func startProcess(cmd *exec.Cmd, stderr *syncBuffer) (*process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		cmd:    cmd,
		stderr: stderr,
		done:   make(chan struct{}),
	}

	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// flush asks the node to stop gracefully so it writes out its fork cache,
// and waits for it to exit.
func (p *process) flush(ctx context.Context) error {
	if p.exited() {
		return nil
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return err
	}

	return p.wait(ctx)
}

// abort kills the node if it is still running and reaps it.
func (p *process) abort(ctx context.Context) error {
	if p.exited() {
		return nil
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return p.wait(ctx)
}

func (p *process) wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// syncBuffer is a bytes.Buffer safe for the exec copy goroutine and
// concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}
