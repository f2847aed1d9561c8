package probe

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/forkbench/node"
)

type fakeBackend struct {
	steps    []string
	balances map[common.Address]*uint256.Int
	calls    []node.CallArgs
	blocks   []uint64

	balanceErr error
	nonceErr   error
	priceErr   error
	callErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{balances: make(map[common.Address]*uint256.Int)}
}

func (f *fakeBackend) SetBalance(_ context.Context, addr common.Address, balance *uint256.Int) error {
	f.steps = append(f.steps, "set_balance")
	if f.balanceErr != nil {
		return f.balanceErr
	}

	f.balances[addr] = balance

	return nil
}

func (f *fakeBackend) NonceAt(_ context.Context, _ common.Address, block *big.Int) (uint64, error) {
	f.steps = append(f.steps, "nonce")
	if block != nil {
		return 0, errors.New("nonce must be read at the latest block")
	}

	return 42, f.nonceErr
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.steps = append(f.steps, "gas_price")
	if f.priceErr != nil {
		return nil, f.priceErr
	}

	return big.NewInt(25_000_000_000), nil
}

func (f *fakeBackend) Call(_ context.Context, args node.CallArgs, block uint64) ([]byte, error) {
	f.steps = append(f.steps, "call")
	f.calls = append(f.calls, args)
	f.blocks = append(f.blocks, block)

	return []byte{0x01}, f.callErr
}

func (f *fakeBackend) ForkBlock() uint64 { return node.ForkBlock }

func TestEncodeShutdown(t *testing.T) {
	data, err := EncodeShutdown()
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("shutdownSystem()"))[:4]
	assert.Equal(t, selector, data)
}

func TestRun(t *testing.T) {
	b := newFakeBackend()

	require.NoError(t, Run(context.Background(), b))

	assert.Equal(t, []string{"set_balance", "nonce", "gas_price", "call"}, b.steps)
	assert.Equal(t, uint256.NewInt(1e19), b.balances[OwnerAddress])

	require.Len(t, b.calls, 1)
	args := b.calls[0]
	assert.Equal(t, OwnerAddress, args.From)
	assert.Equal(t, SystemAddress, *args.To)
	assert.Equal(t, hexutil.Uint64(28_000_000), args.Gas)
	assert.Equal(t, hexutil.Uint64(42), args.Nonce)
	assert.Equal(t, big.NewInt(25_000_000_000), args.GasPrice.ToInt())
	assert.Equal(t, big.NewInt(1), args.ChainID.ToInt())
	assert.Nil(t, args.Value)
	assert.Len(t, []byte(args.Data), 4)
	assert.Equal(t, []uint64{14_445_961}, b.blocks)
}

func TestRunFailures(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name   string
		setup  func(*fakeBackend)
		want   string
		called bool
	}{
		{"balance", func(b *fakeBackend) { b.balanceErr = boom }, "fund owner", false},
		{"nonce", func(b *fakeBackend) { b.nonceErr = boom }, "get nonce", false},
		{"gas price", func(b *fakeBackend) { b.priceErr = boom }, "get gas price", false},
		{"call", func(b *fakeBackend) { b.callErr = boom }, "eth_call shutdownSystem at block 14445961", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			tt.setup(b)

			err := Run(context.Background(), b)
			require.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, tt.called, len(b.calls) > 0)
		})
	}
}

func TestInstanceSatisfiesBackend(t *testing.T) {
	var _ Backend = (*node.Instance)(nil)
}
