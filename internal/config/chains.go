package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"intentScope/internal/model"
)

// loadChains reads the `chains` list and appends the chain given by the
// single-chain flags, if any.
func loadChains(v *viper.Viper) ([]model.ChainConfig, error) {
	var chains []model.ChainConfig
	if v.IsSet("chains") {
		if err := v.UnmarshalKey("chains", &chains); err != nil {
			return nil, fmt.Errorf("parse chains: %w", err)
		}
	}

	if id := v.GetUint64("chain-id"); id != 0 {
		chains = append(chains, model.ChainConfig{
			ID:              id,
			Name:            v.GetString("chain-name"),
			RPCURL:          v.GetString("rpc"),
			ExplorerURL:     v.GetString("explorer"),
			ContractAddress: v.GetString("contract"),
			StartBlock:      v.GetUint64("start-block"),
			Source:          model.SourceKind(v.GetString("source")),
		})
	}

	for i := range chains {
		c := &chains[i]
		c.Source = model.SourceKind(strings.ToLower(strings.TrimSpace(string(c.Source))))
		if c.Source == "" {
			c.Source = model.SourceRPC
		}
		c.ContractAddress = strings.TrimSpace(c.ContractAddress)
		if c.Name == "" {
			c.Name = fmt.Sprintf("chain-%d", c.ID)
		}
	}
	return chains, nil
}

func validateChain(c model.ChainConfig) error {
	if c.ID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("chain %d: rpc url is required", c.ID)
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("chain %d: invalid contract address: %q", c.ID, c.ContractAddress)
	}
	switch c.Source {
	case model.SourceRPC:
	case model.SourceExplorer:
		if c.ExplorerURL == "" {
			return fmt.Errorf("chain %d: explorer url is required for the explorer source", c.ID)
		}
	default:
		return fmt.Errorf("chain %d: unknown source %q", c.ID, c.Source)
	}
	return nil
}
