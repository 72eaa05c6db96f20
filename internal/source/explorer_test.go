package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"intentScope/internal/model"
)

type fakeSeen map[string]bool

func (f fakeSeen) ExistingTransactions(ctx context.Context, chainID uint64, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, h := range hashes {
		if f[h] {
			out[h] = true
		}
	}
	return out, nil
}

func hashN(n int) string { return fmt.Sprintf("0x%064x", n) }

func explorerTxItem(n int, block uint64, status string) map[string]interface{} {
	return map[string]interface{}{
		"hash":         hashN(n),
		"block_number": block,
		"timestamp":    "2024-03-01T12:00:00.000000Z",
		"from":         map[string]string{"hash": testSolver.Hex()},
		"to":           map[string]string{"hash": testContract.Hex()},
		"value":        "1000",
		"gas_used":     "21000",
		"gas_price":    "3000000000",
		"status":       status,
		"result":       "success",
	}
}

func explorerLogItem(t *testing.T, n int, block uint64, index uint, kind model.EventKind) map[string]interface{} {
	return map[string]interface{}{
		"address":          map[string]string{"hash": testContract.Hex()},
		"block_number":     block,
		"data":             "0x",
		"index":            index,
		"topics":           []interface{}{topicOf(t, kind).Hex(), nil, nil, nil},
		"transaction_hash": hashN(n),
	}
}

type blockscout struct {
	t       *testing.T
	txPages map[string]map[string]interface{}
	logs    []map[string]interface{}
	txLogs  map[string][]map[string]interface{}
	tokens  map[string][]map[string]interface{}

	mu   sync.Mutex
	hits map[string]int
}

func (b *blockscout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hits[r.URL.Path]++
	b.mu.Unlock()
	path := r.URL.Path
	var body interface{}
	switch {
	case strings.HasSuffix(path, "/transactions") && strings.HasPrefix(path, "/api/v2/addresses/"):
		if r.URL.Query().Get("filter") != "to" {
			b.t.Errorf("missing filter=to")
		}
		body = b.txPages[r.URL.Query().Get("block_number")]
	case strings.HasSuffix(path, "/logs") && strings.HasPrefix(path, "/api/v2/addresses/"):
		body = map[string]interface{}{"items": b.logs, "next_page_params": nil}
	case strings.HasSuffix(path, "/logs"):
		hash := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v2/transactions/"), "/logs")
		body = map[string]interface{}{"items": b.txLogs[hash], "next_page_params": nil}
	case strings.HasSuffix(path, "/token-transfers"):
		hash := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v2/transactions/"), "/token-transfers")
		items := b.tokens[hash]
		if items == nil {
			items = []map[string]interface{}{}
		}
		body = map[string]interface{}{"items": items, "next_page_params": nil}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func newBlockscout(t *testing.T) *blockscout {
	return &blockscout{
		t: t,
		txPages: map[string]map[string]interface{}{
			"": {
				"items": []interface{}{
					explorerTxItem(4, 104, "error"),
					explorerTxItem(3, 103, "ok"),
					explorerTxItem(2, 102, "ok"),
				},
				"next_page_params": map[string]interface{}{"block_number": 102, "index": 0, "items_count": 50},
			},
			"102": {
				"items": []interface{}{
					explorerTxItem(1, 101, "ok"),
				},
				"next_page_params": nil,
			},
		},
		logs: []map[string]interface{}{
			explorerLogItem(t, 3, 103, 5, model.KindCommitmentRootAdded),
			explorerLogItem(t, 3, 103, 4, model.KindTransactionExecuted),
			explorerLogItem(t, 1, 101, 1, model.KindTransactionExecuted),
		},
		txLogs: map[string][]map[string]interface{}{
			hashN(2): {explorerLogItem(t, 2, 102, 0, model.KindTransactionExecuted)},
		},
		tokens: map[string][]map[string]interface{}{
			hashN(3): {
				{
					"token": map[string]string{
						"address_hash": testToken.Hex(),
						"symbol":       "USDC",
						"decimals":     "6",
						"type":         "ERC-20",
					},
					"from":             map[string]string{"hash": testSolver.Hex()},
					"to":               map[string]string{"hash": testContract.Hex()},
					"total":            map[string]string{"value": "2500000", "decimals": "6"},
					"log_index":        2,
					"transaction_hash": hashN(3),
				},
				{
					"token":            map[string]string{"address_hash": testToken.Hex(), "type": "ERC-721"},
					"from":             map[string]string{"hash": testSolver.Hex()},
					"to":               map[string]string{"hash": testContract.Hex()},
					"total":            map[string]string{"token_id": "1"},
					"log_index":        3,
					"transaction_hash": hashN(3),
				},
			},
		},
		hits: make(map[string]int),
	}
}

func TestExplorerSourceStopsAtFirstSeen(t *testing.T) {
	api := newBlockscout(t)
	server := httptest.NewServer(api)
	defer server.Close()

	src := NewExplorerSource(
		ExplorerConfig{ChainID: 10, Contract: testContract},
		NewExplorerClient(server.URL, server.Client()),
		fakeSeen{hashN(1): true},
		nil,
	)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10, LastBlock: 101})
	require.NoError(t, err)

	assert.True(t, window.CaughtUp)
	assert.Equal(t, uint64(102), window.FromBlock)
	assert.Equal(t, uint64(103), window.ToBlock)
	require.Len(t, window.Txs, 2)

	older, newer := window.Txs[0], window.Txs[1]
	assert.Equal(t, common.HexToHash(hashN(2)), older.Hash)
	assert.Equal(t, common.HexToHash(hashN(3)), newer.Hash)

	require.Len(t, newer.Logs, 2)
	assert.Equal(t, uint(4), newer.Logs[0].Index)
	assert.Len(t, newer.Logs[0].Topics, 1)
	require.Len(t, older.Logs, 1)
	assert.Equal(t, uint64(102), older.Logs[0].BlockNumber)

	require.Len(t, newer.Transfers, 1)
	assert.Equal(t, "USDC", newer.Transfers[0].Symbol)
	require.NotNil(t, newer.Transfers[0].Decimals)
	assert.Equal(t, uint8(6), *newer.Transfers[0].Decimals)
	assert.Equal(t, "2500000", newer.Transfers[0].Amount.String())

	assert.Equal(t, "3000000000", newer.GasPrice.String())
	assert.Equal(t, testSolver, newer.From)
	assert.Equal(t, 1, api.hits["/api/v2/transactions/"+hashN(2)+"/logs"])
	assert.Zero(t, api.hits["/api/v2/transactions/"+hashN(3)+"/logs"])
	assert.Zero(t, api.hits["/api/v2/transactions/"+hashN(4)+"/token-transfers"])
}

func TestExplorerSourceNoopWhenNewestSeen(t *testing.T) {
	api := newBlockscout(t)
	server := httptest.NewServer(api)
	defer server.Close()

	src := NewExplorerSource(
		ExplorerConfig{ChainID: 10, Contract: testContract},
		NewExplorerClient(server.URL, server.Client()),
		fakeSeen{hashN(4): true},
		nil,
	)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10, LastBlock: 104})
	require.NoError(t, err)

	assert.True(t, window.CaughtUp)
	assert.Empty(t, window.Txs)
	assert.Equal(t, uint64(104), window.ToBlock)
	assert.Zero(t, api.hits["/api/v2/addresses/"+testContract.Hex()+"/logs"])
}

func TestExplorerSourceRespectsPageBudget(t *testing.T) {
	api := newBlockscout(t)
	server := httptest.NewServer(api)
	defer server.Close()

	src := NewExplorerSource(
		ExplorerConfig{ChainID: 10, Contract: testContract, TxPages: 1},
		NewExplorerClient(server.URL, server.Client()),
		fakeSeen{},
		nil,
	)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10})
	require.NoError(t, err)

	assert.False(t, window.CaughtUp)
	assert.Len(t, window.Txs, 2)
	assert.Equal(t, 1, api.hits["/api/v2/addresses/"+testContract.Hex()+"/transactions"])
}

func TestExplorerClientSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewExplorerClient(server.URL, server.Client())
	_, _, err := client.Transactions(context.Background(), testContract, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestToPageParams(t *testing.T) {
	raw := map[string]json.RawMessage{
		"block_number": json.RawMessage(`102`),
		"hash":         json.RawMessage(`"0xabc"`),
		"fee":          json.RawMessage(`null`),
	}
	params := toPageParams(raw)
	assert.Equal(t, []string{"102"}, params["block_number"])
	assert.Equal(t, []string{"0xabc"}, params["hash"])
	_, ok := params["fee"]
	assert.False(t, ok)
	assert.Nil(t, toPageParams(nil))
}

// pagedExplorer is an in-process ExplorerAPI serving fixed pages.
type pagedExplorer struct {
	txPages  [][]ExplorerTx
	logPages [][]ExplorerLog
	txLogs   map[common.Hash][]ExplorerLog

	mu          sync.Mutex
	txLogCalls  map[common.Hash]int
	logRequests int
}

func pageAt(page PageParams) int {
	if page == nil {
		return 0
	}
	var n int
	fmt.Sscanf(url.Values(page).Get("page"), "%d", &n)
	return n
}

func nextPage(n, total int) PageParams {
	if n+1 >= total {
		return nil
	}
	return PageParams(url.Values{"page": {fmt.Sprint(n + 1)}})
}

func (e *pagedExplorer) Transactions(ctx context.Context, address common.Address, page PageParams) ([]ExplorerTx, PageParams, error) {
	n := pageAt(page)
	return e.txPages[n], nextPage(n, len(e.txPages)), nil
}

func (e *pagedExplorer) Logs(ctx context.Context, address common.Address, page PageParams) ([]ExplorerLog, PageParams, error) {
	e.mu.Lock()
	e.logRequests++
	e.mu.Unlock()
	n := pageAt(page)
	return e.logPages[n], nextPage(n, len(e.logPages)), nil
}

func (e *pagedExplorer) TransactionLogs(ctx context.Context, hash common.Hash) ([]ExplorerLog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.txLogCalls == nil {
		e.txLogCalls = make(map[common.Hash]int)
	}
	e.txLogCalls[hash]++
	return e.txLogs[hash], nil
}

func (e *pagedExplorer) TokenTransfers(ctx context.Context, hash common.Hash) ([]ExplorerTokenTransfer, error) {
	return nil, nil
}

func listedTx(n int, block uint64) ExplorerTx {
	return ExplorerTx{
		Hash:        hashN(n),
		BlockNumber: &block,
		Timestamp:   "2024-03-01T12:00:00Z",
		From:        &AddressRef{Hash: testSolver.Hex()},
		To:          &AddressRef{Hash: testContract.Hex()},
		Value:       "0",
		GasUsed:     "21000",
		GasPrice:    "1",
		Status:      "ok",
	}
}

func listedLog(t *testing.T, n int, block uint64, index uint, kind model.EventKind) ExplorerLog {
	topic := topicOf(t, kind).Hex()
	return ExplorerLog{
		Address:     &AddressRef{Hash: testContract.Hex()},
		BlockNumber: block,
		Data:        "0x",
		Index:       index,
		Topics:      []*string{&topic},
		TxHash:      hashN(n),
	}
}

func TestExplorerRefetchesLogsCutByPageBudget(t *testing.T) {
	tx1 := common.HexToHash(hashN(1))
	api := &pagedExplorer{
		txPages: [][]ExplorerTx{{listedTx(1, 50)}},
		logPages: [][]ExplorerLog{
			{
				listedLog(t, 1, 50, 2, model.KindCommitmentRootAdded),
				listedLog(t, 1, 50, 1, model.KindResourcePayload),
			},
			{listedLog(t, 1, 50, 0, model.KindTransactionExecuted)},
		},
		txLogs: map[common.Hash][]ExplorerLog{
			tx1: {
				listedLog(t, 1, 50, 2, model.KindCommitmentRootAdded),
				listedLog(t, 1, 50, 1, model.KindResourcePayload),
				listedLog(t, 1, 50, 0, model.KindTransactionExecuted),
			},
		},
	}
	src := NewExplorerSource(ExplorerConfig{ChainID: 10, Contract: testContract, LogPages: 1}, api, fakeSeen{}, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10})
	require.NoError(t, err)
	require.Len(t, window.Txs, 1)

	logs := window.Txs[0].Logs
	require.Len(t, logs, 3)
	assert.Equal(t, uint(0), logs[0].Index)
	assert.Equal(t, topicOf(t, model.KindTransactionExecuted), logs[0].Topics[0])
	assert.Equal(t, 1, api.txLogCalls[tx1])
}

func TestExplorerKeepsListedLogsOnceListingPassesTheBlock(t *testing.T) {
	tx1 := common.HexToHash(hashN(1))
	tx2 := common.HexToHash(hashN(2))
	api := &pagedExplorer{
		txPages: [][]ExplorerTx{{listedTx(2, 51), listedTx(1, 50)}},
		logPages: [][]ExplorerLog{
			{
				listedLog(t, 2, 51, 0, model.KindTransactionExecuted),
				listedLog(t, 1, 50, 1, model.KindCommitmentRootAdded),
			},
			{
				listedLog(t, 1, 50, 0, model.KindTransactionExecuted),
				listedLog(t, 9, 40, 0, model.KindTransactionExecuted),
			},
		},
	}
	src := NewExplorerSource(ExplorerConfig{ChainID: 10, Contract: testContract, LogPages: 2}, api, fakeSeen{}, nil)

	window, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10})
	require.NoError(t, err)
	require.Len(t, window.Txs, 2)

	assert.Len(t, window.Txs[0].Logs, 2)
	assert.Len(t, window.Txs[1].Logs, 1)
	assert.Zero(t, api.txLogCalls[tx1])
	assert.Zero(t, api.txLogCalls[tx2])
	assert.Equal(t, 2, api.logRequests)
}

func TestExplorerWarnsWhenListingIsNotNewestFirst(t *testing.T) {
	api := &pagedExplorer{
		txPages:  [][]ExplorerTx{{listedTx(2, 60), listedTx(3, 70), listedTx(1, 50)}},
		logPages: [][]ExplorerLog{{}},
	}
	core, recorded := observer.New(zap.WarnLevel)
	src := NewExplorerSource(ExplorerConfig{ChainID: 10, Contract: testContract}, api, fakeSeen{hashN(1): true}, zap.New(core))

	_, err := src.Pull(context.Background(), model.SyncCursor{ChainID: 10, LastBlock: 50})
	require.NoError(t, err)

	warnings := recorded.FilterMessage("explorer listing is not newest-first").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, uint64(70), warnings[0].ContextMap()["block"])
}
