// Package probe issues the Convex system shutdown call that each trial
// measures.
package probe

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/weiihann/forkbench/node"
)

var (
	// SystemAddress is the Convex system contract being shut down.
	SystemAddress = common.HexToAddress("0xF403C135812408BFbE8713b5A23a04b3D48AAE31")
	// OwnerAddress is the account allowed to call shutdownSystem.
	OwnerAddress = common.HexToAddress("0x3cE6408F923326f81A7D7929952947748180f1E6")
	// OwnerBalance is the balance given to the owner before the call (10 ether).
	OwnerBalance = uint256.NewInt(10_000_000_000_000_000_000)
)

// GasAllowance is the gas attached to the shutdown call.
const GasAllowance uint64 = 28_000_000

const systemABI = `[{"inputs":[],"name":"shutdownSystem","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var systemContract = mustParseABI(systemABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse system abi: %v", err))
	}

	return parsed
}

// Backend is the node surface the probe needs.
type Backend interface {
	SetBalance(ctx context.Context, addr common.Address, balance *uint256.Int) error
	NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Call(ctx context.Context, args node.CallArgs, block uint64) ([]byte, error)
	ForkBlock() uint64
}

// EncodeShutdown returns the calldata for shutdownSystem().
func EncodeShutdown() ([]byte, error) {
	return systemContract.Pack("shutdownSystem")
}

// Build funds the owner and assembles the shutdown call with the node's
// current nonce and gas price.
func Build(ctx context.Context, b Backend) (node.CallArgs, error) {
	if err := b.SetBalance(ctx, OwnerAddress, OwnerBalance); err != nil {
		return node.CallArgs{}, fmt.Errorf("fund owner: %w", err)
	}

	data, err := EncodeShutdown()
	if err != nil {
		return node.CallArgs{}, fmt.Errorf("encode shutdownSystem: %w", err)
	}

	nonce, err := b.NonceAt(ctx, OwnerAddress, nil)
	if err != nil {
		return node.CallArgs{}, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return node.CallArgs{}, fmt.Errorf("get gas price: %w", err)
	}

	to := SystemAddress

	return node.CallArgs{
		From:     OwnerAddress,
		To:       &to,
		Gas:      hexutil.Uint64(GasAllowance),
		GasPrice: (*hexutil.Big)(gasPrice),
		Nonce:    hexutil.Uint64(nonce),
		Data:     data,
		ChainID:  (*hexutil.Big)(new(big.Int).SetUint64(node.ChainID)),
	}, nil
}

// Run builds the shutdown call and executes it at the node's fork block,
// returning once the node has answered. The call's output is discarded.
func Run(ctx context.Context, b Backend) error {
	args, err := Build(ctx, b)
	if err != nil {
		return err
	}

	if _, err := b.Call(ctx, args, b.ForkBlock()); err != nil {
		return fmt.Errorf("eth_call shutdownSystem at block %d: %w", b.ForkBlock(), err)
	}

	return nil
}
