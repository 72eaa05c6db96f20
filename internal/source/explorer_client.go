package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ExplorerClient talks to a Blockscout v2 REST API.
type ExplorerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewExplorerClient builds an ExplorerClient. A nil httpClient uses http.DefaultClient.
func NewExplorerClient(baseURL string, httpClient *http.Client) *ExplorerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ExplorerClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// PageParams is the opaque next_page_params cursor. Nil means no more pages.
type PageParams url.Values

type AddressRef struct {
	Hash string `json:"hash"`
}

// ExplorerTx is a Blockscout transaction list item.
type ExplorerTx struct {
	Hash        string      `json:"hash"`
	BlockNumber *uint64     `json:"block_number"`
	Block       *uint64     `json:"block"`
	Timestamp   string      `json:"timestamp"`
	From        *AddressRef `json:"from"`
	To          *AddressRef `json:"to"`
	Value       string      `json:"value"`
	GasUsed     string      `json:"gas_used"`
	GasPrice    string      `json:"gas_price"`
	Status      string      `json:"status"`
	Result      string      `json:"result"`
}

func (t ExplorerTx) blockNumber() uint64 {
	if t.BlockNumber != nil {
		return *t.BlockNumber
	}
	if t.Block != nil {
		return *t.Block
	}
	return 0
}

func (t ExplorerTx) failed() bool {
	return t.Status == "error" || (t.Result != "" && t.Result != "success")
}

// ExplorerLog is a Blockscout log list item.
type ExplorerLog struct {
	Address     *AddressRef `json:"address"`
	BlockNumber uint64      `json:"block_number"`
	Data        string      `json:"data"`
	Index       uint        `json:"index"`
	Topics      []*string   `json:"topics"`
	TxHash      string      `json:"transaction_hash"`
}

// ExplorerTokenTransfer is a Blockscout token transfer item.
type ExplorerTokenTransfer struct {
	Token struct {
		Address     string `json:"address"`
		AddressHash string `json:"address_hash"`
		Symbol      string `json:"symbol"`
		Decimals    string `json:"decimals"`
		Type        string `json:"type"`
	} `json:"token"`
	From  *AddressRef `json:"from"`
	To    *AddressRef `json:"to"`
	Total struct {
		Value    string `json:"value"`
		Decimals string `json:"decimals"`
	} `json:"total"`
	LogIndex uint   `json:"log_index"`
	TxHash   string `json:"transaction_hash"`
}

type pageResponse[T any] struct {
	Items          []T                        `json:"items"`
	NextPageParams map[string]json.RawMessage `json:"next_page_params"`
}

// Transactions lists transactions sent to address, newest first.
func (c *ExplorerClient) Transactions(ctx context.Context, address common.Address, page PageParams) ([]ExplorerTx, PageParams, error) {
	query := url.Values{}
	query.Set("filter", "to")
	var resp pageResponse[ExplorerTx]
	if err := c.get(ctx, "/api/v2/addresses/"+address.Hex()+"/transactions", query, page, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, toPageParams(resp.NextPageParams), nil
}

// Logs lists logs emitted by address, newest first.
func (c *ExplorerClient) Logs(ctx context.Context, address common.Address, page PageParams) ([]ExplorerLog, PageParams, error) {
	var resp pageResponse[ExplorerLog]
	if err := c.get(ctx, "/api/v2/addresses/"+address.Hex()+"/logs", nil, page, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, toPageParams(resp.NextPageParams), nil
}

// TransactionLogs lists every log of one transaction.
func (c *ExplorerClient) TransactionLogs(ctx context.Context, hash common.Hash) ([]ExplorerLog, error) {
	var out []ExplorerLog
	var page PageParams
	for {
		var resp pageResponse[ExplorerLog]
		if err := c.get(ctx, "/api/v2/transactions/"+hash.Hex()+"/logs", nil, page, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
		page = toPageParams(resp.NextPageParams)
		if page == nil {
			return out, nil
		}
	}
}

// TokenTransfers lists the token transfers of one transaction.
func (c *ExplorerClient) TokenTransfers(ctx context.Context, hash common.Hash) ([]ExplorerTokenTransfer, error) {
	var out []ExplorerTokenTransfer
	var page PageParams
	for {
		var resp pageResponse[ExplorerTokenTransfer]
		if err := c.get(ctx, "/api/v2/transactions/"+hash.Hex()+"/token-transfers", nil, page, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
		page = toPageParams(resp.NextPageParams)
		if page == nil {
			return out, nil
		}
	}
}

func (c *ExplorerClient) get(ctx context.Context, path string, query url.Values, page PageParams, out interface{}) error {
	values := url.Values{}
	for k, v := range query {
		values[k] = v
	}
	for k, v := range page {
		values[k] = v
	}
	endpoint := c.baseURL + path
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("explorer %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("explorer %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("explorer %s: decode: %w", path, err)
	}
	return nil
}

// toPageParams flattens next_page_params into query values. Blockscout
// mixes numbers, strings and nulls in the object.
func toPageParams(raw map[string]json.RawMessage) PageParams {
	if len(raw) == 0 {
		return nil
	}
	params := PageParams{}
	for key, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			params[key] = []string{s}
			continue
		}
		trimmed := strings.TrimSpace(string(value))
		if trimmed == "null" {
			continue
		}
		params[key] = []string{trimmed}
	}
	return params
}

func (l ExplorerLog) toTypesLog() (types.Log, error) {
	data, err := hexutil.Decode(l.Data)
	if err != nil && l.Data != "" {
		return types.Log{}, fmt.Errorf("log %s/%d data: %w", l.TxHash, l.Index, err)
	}
	topics := make([]common.Hash, 0, len(l.Topics))
	for _, topic := range l.Topics {
		if topic == nil {
			continue
		}
		topics = append(topics, common.HexToHash(*topic))
	}
	var address common.Address
	if l.Address != nil {
		address = common.HexToAddress(l.Address.Hash)
	}
	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: l.BlockNumber,
		TxHash:      common.HexToHash(l.TxHash),
		Index:       l.Index,
	}, nil
}

func parseExplorerTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func parseDecimals(value string) *uint8 {
	if value == "" {
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return nil
	}
	d := uint8(n)
	return &d
}
