package model

// SourceKind selects how a chain's activity is pulled.
type SourceKind string

const (
	SourceRPC      SourceKind = "rpc"
	SourceExplorer SourceKind = "explorer"
)

// ChainConfig is the immutable identity of one watched deployment.
type ChainConfig struct {
	ID              uint64     `json:"id" mapstructure:"id"`
	Name            string     `json:"name" mapstructure:"name"`
	RPCURL          string     `json:"rpc_url" mapstructure:"rpc_url"`
	ExplorerURL     string     `json:"explorer_url" mapstructure:"explorer_url"`
	ContractAddress string     `json:"contract_address" mapstructure:"contract_address"`
	StartBlock      uint64     `json:"start_block" mapstructure:"start_block"`
	Source          SourceKind `json:"source" mapstructure:"source"`
}
