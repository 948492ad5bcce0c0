// Package chainclient implements the on-chain facts the decision engine
// needs: whether an address is a contract, and whether a cluster matches
// the configured chain's validator-role heuristic. It is a thin wrapper
// around go-ethereum's ethclient that verifies connectivity at
// construction time and logs the result.
package chainclient

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config configures the chain client.
type Config struct {
	RPCURL string
	// FeeTransferBlock is the block number on which the fee-transfer event
	// receipt scan runs when checking the validator-role FP-mitigation
	// heuristic. Zero disables the check.
	FeeTransferBlock int64
	CallTimeout      time.Duration
}

// Client is the go-ethereum-backed implementation of decision.ChainChecker.
type Client struct {
	eth    *ethclient.Client
	config Config

	mu             sync.Mutex
	contractCache  map[string]bool
	validatorCache map[string]bool
}

// Dial connects to an Ethereum JSON-RPC endpoint and verifies connectivity
// by fetching the chain id before returning.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	log.Printf("[ChainClient] connecting to %s...", cfg.RPCURL)
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, err
	}
	log.Printf("[ChainClient] connected, chain id %s", chainID.String())

	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 5 * time.Second
	}

	return &Client{
		eth:            eth,
		config:         cfg,
		contractCache:  make(map[string]bool),
		validatorCache: make(map[string]bool),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID resolves the connected node's chain id, for startup configuration
// when CHAIN_ID is not overridden by environment.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Int64(), nil
}

// IsContract reports whether address has deployed code, caching results
// for the life of the process. The cache is intentionally unbounded: the
// cardinality of addresses the decision engine ever asks about is small.
func (c *Client) IsContract(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, nil
	}

	c.mu.Lock()
	if cached, ok := c.contractCache[address]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	code, err := c.eth.CodeAt(callCtx, common.HexToAddress(address), nil)
	if err != nil {
		return false, err
	}
	isContract := len(code) > 0

	c.mu.Lock()
	c.contractCache[address] = isContract
	c.mu.Unlock()

	return isContract, nil
}

// MatchesValidator scans the configured fee-transfer block's transaction
// receipts for a log whose emitting address is the cluster's subject
// address, a heuristic for "this cluster is actually a validator/staking
// operator, not an attacker". A cluster with more than one
// address never matches, since validator-role accounts are single EOAs.
func (c *Client) MatchesValidator(ctx context.Context, chainID int64, cluster string) (bool, error) {
	if c.config.FeeTransferBlock == 0 {
		return false, nil
	}
	if !common.IsHexAddress(cluster) {
		return false, nil
	}

	c.mu.Lock()
	if cached, ok := c.validatorCache[cluster]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	block, err := c.eth.BlockByNumber(callCtx, big.NewInt(c.config.FeeTransferBlock))
	if err != nil {
		return false, err
	}

	subject := common.HexToAddress(cluster)
	matched := false
	for _, tx := range block.Transactions() {
		receipt, err := c.eth.TransactionReceipt(callCtx, tx.Hash())
		if err != nil {
			continue
		}
		if receiptMatchesSubject(receipt, subject) {
			matched = true
			break
		}
	}

	c.mu.Lock()
	c.validatorCache[cluster] = matched
	c.mu.Unlock()

	return matched, nil
}

func receiptMatchesSubject(receipt *types.Receipt, subject common.Address) bool {
	for _, l := range receipt.Logs {
		if l.Address == subject {
			return true
		}
		for _, topic := range l.Topics {
			if common.BytesToAddress(topic.Bytes()) == subject {
				return true
			}
		}
	}
	return false
}

// NoOp is a ChainChecker that always reports "no evidence" — used when the
// node RPC is unreachable at startup. An external-lookup failure counts as
// absence of evidence, never as a confirmed attacker signal, so running
// without a chain connection degrades the contract/validator checks rather
// than blocking startup.
type NoOp struct{}

func (NoOp) IsContract(ctx context.Context, address string) (bool, error) { return false, nil }

func (NoOp) MatchesValidator(ctx context.Context, chainID int64, cluster string) (bool, error) {
	return false, nil
}
