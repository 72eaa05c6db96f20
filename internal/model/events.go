package model

import (
	"encoding/json"
	"time"
)

// EventKind is the semantic kind of a protocol adapter event.
type EventKind string

const (
	KindTransactionExecuted   EventKind = "TransactionExecuted"
	KindActionExecuted        EventKind = "ActionExecuted"
	KindCommitmentRootAdded   EventKind = "CommitmentRootAdded"
	KindResourcePayload       EventKind = "ResourcePayload"
	KindDiscoveryPayload      EventKind = "DiscoveryPayload"
	KindExternalPayload       EventKind = "ExternalPayload"
	KindApplicationPayload    EventKind = "ApplicationPayload"
	KindForwarderCallExecuted EventKind = "ForwarderCallExecuted"
)

// PayloadType is the sub-type carried by payload events.
type PayloadType string

const (
	PayloadResource    PayloadType = "Resource"
	PayloadDiscovery   PayloadType = "Discovery"
	PayloadExternal    PayloadType = "External"
	PayloadApplication PayloadType = "Application"
)

// NormalizedEvent is one watched-contract transaction. Unique on (ChainID, TxHash).
// ValueWei and GasPriceWei are base-10 big integers.
type NormalizedEvent struct {
	ChainID       uint64          `json:"chain_id"`
	TxHash        string          `json:"tx_hash"`
	BlockNumber   uint64          `json:"block_number"`
	Kind          EventKind       `json:"kind"`
	SolverAddress string          `json:"solver_address"`
	ValueWei      string          `json:"value_wei"`
	GasUsed       uint64          `json:"gas_used"`
	GasPriceWei   string          `json:"gas_price_wei"`
	Timestamp     time.Time       `json:"timestamp"`
	RawTopics     []string        `json:"raw_topics"`
	DecodedFields json.RawMessage `json:"decoded_fields,omitempty"`
}

// PayloadRecord is unique on (ChainID, TxHash, PayloadType, PayloadIndex).
type PayloadRecord struct {
	ChainID      uint64      `json:"chain_id"`
	TxHash       string      `json:"tx_hash"`
	BlockNumber  uint64      `json:"block_number"`
	PayloadType  PayloadType `json:"payload_type"`
	PayloadIndex uint64      `json:"payload_index"`
	Tag          string      `json:"tag"`
	Blob         string      `json:"blob"`
	Timestamp    time.Time   `json:"timestamp"`
}

// PrivacyRootRecord is unique on (ChainID, RootHash).
type PrivacyRootRecord struct {
	ChainID           uint64    `json:"chain_id"`
	BlockNumber       uint64    `json:"block_number"`
	LogIndex          uint64    `json:"log_index"`
	TxHash            string    `json:"tx_hash"`
	RootHash          string    `json:"root_hash"`
	Timestamp         time.Time `json:"timestamp"`
	EstimatedPoolSize uint64    `json:"estimated_pool_size"`
}
