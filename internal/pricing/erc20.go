package pricing

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"unicode"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Caller performs eth_call. Satisfied by *chain.Client.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// fetchTokenMeta loads symbol() (0x95d89b41) and decimals() (0x313ce567).
// Both string and bytes32 symbol encodings are accepted.
func fetchTokenMeta(ctx context.Context, caller Caller, token common.Address) (tokenMeta, error) {
	if caller == nil {
		return tokenMeta{}, fmt.Errorf("caller is nil")
	}
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return tokenMeta{}, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return tokenMeta{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string) ([]byte, error) {
		data, err := stringABI.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		if len(resp) == 0 {
			return nil, fmt.Errorf("call %s: empty result", method)
		}
		return resp, nil
	}

	raw, err := call("decimals")
	if err != nil {
		return tokenMeta{}, err
	}
	decimals, err := decodeDecimals(stringABI, raw)
	if err != nil {
		return tokenMeta{}, err
	}

	raw, err = call("symbol")
	if err != nil {
		return tokenMeta{}, err
	}
	symbol := decodeSymbol(stringABI, bytes32ABI, raw)
	if symbol == "" {
		return tokenMeta{}, fmt.Errorf("symbol of %s is empty", token.Hex())
	}

	return tokenMeta{Symbol: symbol, Decimals: decimals}, nil
}

func decodeDecimals(parsed abi.ABI, raw []byte) (uint8, error) {
	if values, err := parsed.Unpack("decimals", raw); err == nil && len(values) == 1 {
		if d, ok := values[0].(uint8); ok {
			return d, nil
		}
	}
	if len(raw) < 32 {
		return 0, fmt.Errorf("decimals: short result %d bytes", len(raw))
	}
	n := new(big.Int).SetBytes(raw[:32])
	if !n.IsUint64() || n.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", n)
	}
	return uint8(n.Uint64()), nil
}

func decodeSymbol(stringABI, bytes32ABI abi.ABI, raw []byte) string {
	if values, err := stringABI.Unpack("symbol", raw); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok {
			if clean := sanitizeSymbol(s); clean != "" {
				return clean
			}
		}
	}
	if values, err := bytes32ABI.Unpack("symbol", raw); err == nil && len(values) == 1 {
		if b, ok := values[0].([32]byte); ok {
			return sanitizeSymbol(string(bytes.TrimRight(b[:], "\x00")))
		}
	}
	return sanitizeSymbol(string(bytes.Trim(raw, "\x00")))
}

func sanitizeSymbol(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
