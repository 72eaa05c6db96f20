package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"intentScope/internal/model"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newRPCServer(t *testing.T, handle func(req rpcRequest) (interface{}, map[string]interface{})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientTransactionReceipt(t *testing.T) {
	txHash := "0x" + strings.Repeat("ab", 32)
	server := newRPCServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		if req.Method != "eth_getTransactionReceipt" {
			t.Errorf("unexpected method %s", req.Method)
		}
		return map[string]interface{}{
			"transactionHash":   txHash,
			"blockNumber":       "0x10",
			"from":              "0x00000000000000000000000000000000000000aa",
			"to":                "0x00000000000000000000000000000000000000bb",
			"gasUsed":           "0x5208",
			"effectiveGasPrice": "0x3b9aca00",
			"status":            "0x1",
			"logs": []map[string]interface{}{{
				"address":          "0x00000000000000000000000000000000000000bb",
				"topics":           []string{"0x" + strings.Repeat("11", 32)},
				"data":             "0x",
				"blockNumber":      "0x10",
				"transactionHash":  txHash,
				"transactionIndex": "0x0",
				"blockHash":        "0x" + strings.Repeat("22", 32),
				"logIndex":         "0x3",
				"removed":          false,
			}},
		}, nil
	})
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	receipt, err := client.TransactionReceipt(context.Background(), common.HexToHash(txHash))
	if err != nil {
		t.Fatalf("TransactionReceipt: %v", err)
	}
	if uint64(receipt.BlockNumber) != 16 {
		t.Fatalf("expected block 16, got %d", receipt.BlockNumber)
	}
	if uint64(receipt.GasUsed) != 21000 {
		t.Fatalf("expected gasUsed 21000, got %d", receipt.GasUsed)
	}
	if receipt.EffectiveGasPrice.ToInt().Int64() != 1_000_000_000 {
		t.Fatalf("unexpected gas price %s", receipt.EffectiveGasPrice.ToInt())
	}
	if len(receipt.Logs) != 1 || receipt.Logs[0].Index != 3 {
		t.Fatalf("unexpected logs %+v", receipt.Logs)
	}
}

func TestClientBlockTimestampCached(t *testing.T) {
	var calls atomic.Int32
	server := newRPCServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		calls.Add(1)
		return map[string]interface{}{
			"number":    "0x64",
			"timestamp": "0x6553f100",
		}, nil
	})
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		ts, err := client.BlockTimestamp(context.Background(), 100)
		if err != nil {
			t.Fatalf("BlockTimestamp: %v", err)
		}
		if ts != 1700000000 {
			t.Fatalf("expected 1700000000, got %d", ts)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 rpc call, got %d", calls.Load())
	}
}

func TestClientMapsRPCErrors(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return nil, map[string]interface{}{"code": -32005, "message": "query returned more than 10000 results"}
	})
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	_, err = client.LatestBlockNumber(context.Background())
	var rpcErr *model.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32005 {
		t.Fatalf("expected code -32005, got %d", rpcErr.Code)
	}
}

func TestClientReceiptNotFound(t *testing.T) {
	server := newRPCServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return nil, nil
	})
	defer server.Close()

	client, err := NewClient(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if _, err := client.TransactionReceipt(context.Background(), common.Hash{}); err == nil {
		t.Fatal("expected error for missing receipt")
	}
}
