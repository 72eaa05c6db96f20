package protocol

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const adapterABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32[]", "name": "tags", "type": "bytes32[]"},
      {"indexed": false, "internalType": "bytes32[]", "name": "logicRefs", "type": "bytes32[]"}
    ],
    "name": "TransactionExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "actionTreeRoot", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "actionTagCount", "type": "uint256"}
    ],
    "name": "ActionExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "bytes32", "name": "root", "type": "bytes32"}
    ],
    "name": "CommitmentTreeRootAdded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "tag", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "blob", "type": "bytes"}
    ],
    "name": "ResourcePayload",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "tag", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "blob", "type": "bytes"}
    ],
    "name": "DiscoveryPayload",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "tag", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "blob", "type": "bytes"}
    ],
    "name": "ExternalPayload",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "tag", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "index", "type": "uint256"},
      {"indexed": false, "internalType": "bytes", "name": "blob", "type": "bytes"}
    ],
    "name": "ApplicationPayload",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "untrustedForwarder", "type": "address"},
      {"indexed": false, "internalType": "bytes", "name": "input", "type": "bytes"},
      {"indexed": false, "internalType": "bytes", "name": "output", "type": "bytes"}
    ],
    "name": "ForwarderCallExecuted",
    "type": "event"
  }
]`

const erc20TransferABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  }
]`

var (
	adapterABI     abi.ABI
	adapterABIOnce sync.Once
	adapterABIErr  error

	transferABI     abi.ABI
	transferABIOnce sync.Once
	transferABIErr  error
)

// AdapterABI returns the parsed protocol adapter event ABI.
func AdapterABI() (abi.ABI, error) {
	adapterABIOnce.Do(func() {
		adapterABI, adapterABIErr = abi.JSON(strings.NewReader(adapterABIJSON))
	})
	return adapterABI, adapterABIErr
}

// TransferABI returns the parsed ERC-20 Transfer event ABI.
func TransferABI() (abi.ABI, error) {
	transferABIOnce.Do(func() {
		transferABI, transferABIErr = abi.JSON(strings.NewReader(erc20TransferABIJSON))
	})
	return transferABI, transferABIErr
}
