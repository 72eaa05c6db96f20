package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"intentScope/internal/model"
)

// Client is the JSON-RPC view of one chain used by the RPC source and the
// token metadata lookups. Block timestamps are cached for the process lifetime.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// Receipt is the subset of a transaction receipt the indexer reads.
type Receipt struct {
	TxHash            common.Hash     `json:"transactionHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	Status            hexutil.Uint64  `json:"status"`
	Logs              []*types.Log    `json:"logs"`
}

// Transaction is the subset of a transaction the indexer reads.
type Transaction struct {
	Hash     common.Hash    `json:"hash"`
	From     common.Address `json:"from"`
	Value    *hexutil.Big   `json:"value"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
}

type blockHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

// NewClient dials rpcURL. A nil httpClient uses the go-ethereum default.
func NewClient(ctx context.Context, rpcURL string, httpClient *http.Client) (*Client, error) {
	var opts []rpc.ClientOption
	if httpClient != nil {
		opts = append(opts, rpc.WithHTTPClient(httpClient))
	}
	rpcClient, err := rpc.DialOptions(ctx, rpcURL, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, wrapErr("eth_chainId", err)
	}
	return id.Uint64(), nil
}

// LatestBlockNumber returns the chain tip.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.ethClient.BlockNumber(ctx)
	if err != nil {
		return 0, wrapErr("eth_blockNumber", err)
	}
	return n, nil
}

// BlockTimestamp returns the unix timestamp of block number.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	var header *blockHeader
	err := c.rpcClient.CallContext(ctx, &header, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return 0, wrapErr("eth_getBlockByNumber", err)
	}
	if header == nil {
		return 0, fmt.Errorf("eth_getBlockByNumber: block %d not found", number)
	}

	ts = uint64(header.Timestamp)
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// FilterLogs runs eth_getLogs over [fromBlock, toBlock]. topic0 entries are ORed.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, wrapErr("eth_getLogs", err)
	}
	return logs, nil
}

// TransactionReceipt fetches a receipt. Decoding is done locally so that
// receipts from chains with non-standard transaction types still parse.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	if err := c.rpcClient.CallContext(ctx, &receipt, "eth_getTransactionReceipt", hash); err != nil {
		return nil, wrapErr("eth_getTransactionReceipt", err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt: %s: %w", hash.Hex(), ethereum.NotFound)
	}
	return receipt, nil
}

// TransactionByHash fetches a transaction.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error) {
	var tx *Transaction
	if err := c.rpcClient.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, wrapErr("eth_getTransactionByHash", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("eth_getTransactionByHash: %s: %w", hash.Hex(), ethereum.NotFound)
	}
	return tx, nil
}

// CallContract runs eth_call. It satisfies pricing.Caller.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, wrapErr("eth_call", err)
	}
	return out, nil
}

// wrapErr turns JSON-RPC error objects into model.RPCError and leaves
// transport failures untouched.
func wrapErr(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", method, &model.RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()})
	}
	return fmt.Errorf("%s: %w", method, err)
}
