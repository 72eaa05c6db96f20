package protocol

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"intentScope/internal/model"
)

// Payload is a decoded Resource/Discovery/External/Application payload event.
type Payload struct {
	Type  model.PayloadType
	Tag   common.Hash
	Index uint64
	Blob  []byte
}

// Transfer is a decoded ERC-20 Transfer log.
type Transfer struct {
	Token    common.Address
	From     common.Address
	To       common.Address
	Amount   *big.Int
	LogIndex uint
}

// DecodePayload decodes a payload-kind log.
func DecodePayload(log types.Log) (Payload, error) {
	c, ok := classifyLog(log)
	if !ok || !c.IsPayload() {
		return Payload{}, decodeError(log, "not a payload event")
	}
	values, err := unpackEvent(log, c.Kind)
	if err != nil {
		return Payload{}, err
	}
	if len(values) != 2 {
		return Payload{}, decodeError(log, fmt.Sprintf("unexpected payload values: %d", len(values)))
	}
	index, err := asBigInt(values[0])
	if err != nil {
		return Payload{}, decodeError(log, err.Error())
	}
	if !index.IsUint64() {
		return Payload{}, decodeError(log, "payload index overflows uint64")
	}
	blob, ok := values[1].([]byte)
	if !ok {
		return Payload{}, decodeError(log, fmt.Sprintf("unsupported blob type %T", values[1]))
	}
	return Payload{
		Type:  c.Payload,
		Tag:   log.Topics[1],
		Index: index.Uint64(),
		Blob:  blob,
	}, nil
}

// DecodeCommitmentRoot returns the root carried by a CommitmentTreeRootAdded log.
func DecodeCommitmentRoot(log types.Log) (common.Hash, error) {
	c, ok := classifyLog(log)
	if !ok || c.Kind != model.KindCommitmentRootAdded {
		return common.Hash{}, decodeError(log, "not a commitment root event")
	}
	values, err := unpackEvent(log, c.Kind)
	if err != nil {
		return common.Hash{}, err
	}
	if len(values) != 1 {
		return common.Hash{}, decodeError(log, fmt.Sprintf("unexpected root values: %d", len(values)))
	}
	root, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, decodeError(log, fmt.Sprintf("unsupported root type %T", values[0]))
	}
	return common.Hash(root), nil
}

// DecodeFields renders the event arguments of a watched log as JSON.
func DecodeFields(log types.Log) (json.RawMessage, error) {
	c, ok := classifyLog(log)
	if !ok {
		return nil, decodeError(log, "unwatched topic")
	}
	values, err := unpackEvent(log, c.Kind)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"event": string(c.Kind)}
	switch c.Kind {
	case model.KindTransactionExecuted:
		if len(values) != 2 {
			return nil, decodeError(log, fmt.Sprintf("unexpected values: %d", len(values)))
		}
		tags, err := asHashList(values[0])
		if err != nil {
			return nil, decodeError(log, err.Error())
		}
		refs, err := asHashList(values[1])
		if err != nil {
			return nil, decodeError(log, err.Error())
		}
		fields["tags"] = tags
		fields["logicRefs"] = refs
	case model.KindActionExecuted:
		if len(values) != 2 {
			return nil, decodeError(log, fmt.Sprintf("unexpected values: %d", len(values)))
		}
		root, ok := values[0].([32]byte)
		if !ok {
			return nil, decodeError(log, fmt.Sprintf("unsupported root type %T", values[0]))
		}
		count, err := asBigInt(values[1])
		if err != nil {
			return nil, decodeError(log, err.Error())
		}
		fields["actionTreeRoot"] = common.Hash(root).Hex()
		fields["actionTagCount"] = count.String()
	case model.KindCommitmentRootAdded:
		root, ok := values[0].([32]byte)
		if !ok {
			return nil, decodeError(log, fmt.Sprintf("unsupported root type %T", values[0]))
		}
		fields["root"] = common.Hash(root).Hex()
	case model.KindForwarderCallExecuted:
		if len(values) != 2 {
			return nil, decodeError(log, fmt.Sprintf("unexpected values: %d", len(values)))
		}
		input, _ := values[0].([]byte)
		output, _ := values[1].([]byte)
		fields["untrustedForwarder"] = common.BytesToAddress(log.Topics[1].Bytes()).Hex()
		fields["input"] = hexutil.Encode(input)
		fields["output"] = hexutil.Encode(output)
	default:
		payload, err := DecodePayload(log)
		if err != nil {
			return nil, err
		}
		fields["tag"] = payload.Tag.Hex()
		fields["index"] = payload.Index
		fields["blobSize"] = len(payload.Blob)
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, decodeError(log, err.Error())
	}
	return out, nil
}

// DecodeTransfer decodes an ERC-20 Transfer. ERC-721 transfers share the
// topic but index the token id, so they carry four topics and are rejected.
func DecodeTransfer(log types.Log) (Transfer, error) {
	if len(log.Topics) == 0 || log.Topics[0] != TransferTopic {
		return Transfer{}, decodeError(log, "not a transfer event")
	}
	if len(log.Topics) != 3 {
		return Transfer{}, decodeError(log, fmt.Sprintf("expected 3 topics, got %d", len(log.Topics)))
	}
	parsed, err := TransferABI()
	if err != nil {
		return Transfer{}, fmt.Errorf("parse transfer abi: %w", err)
	}
	values, err := parsed.Events["Transfer"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return Transfer{}, decodeError(log, fmt.Sprintf("unpack Transfer: %v", err))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return Transfer{}, decodeError(log, err.Error())
	}
	return Transfer{
		Token:    log.Address,
		From:     common.BytesToAddress(log.Topics[1].Bytes()),
		To:       common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:   amount,
		LogIndex: log.Index,
	}, nil
}

func classifyLog(log types.Log) (Classification, bool) {
	if len(log.Topics) == 0 {
		return Classification{}, false
	}
	return Classify(log.Topics[0])
}

func unpackEvent(log types.Log, kind model.EventKind) ([]interface{}, error) {
	parsed, err := AdapterABI()
	if err != nil {
		return nil, fmt.Errorf("parse adapter abi: %w", err)
	}
	event, ok := parsed.Events[kindToABIName[kind]]
	if !ok {
		return nil, decodeError(log, fmt.Sprintf("no abi for %s", kind))
	}
	indexed := len(indexedArguments(event.Inputs))
	if len(log.Topics) != indexed+1 {
		return nil, decodeError(log, fmt.Sprintf("expected %d topics, got %d", indexed+1, len(log.Topics)))
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, decodeError(log, fmt.Sprintf("unpack %s: %v", event.Name, err))
	}
	return values, nil
}

func decodeError(log types.Log, reason string) *model.DecodeError {
	e := &model.DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Reason:      reason,
	}
	if len(log.Topics) > 0 {
		e.Topic0 = log.Topics[0].Hex()
	}
	return e
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asHashList(value interface{}) ([]string, error) {
	list, ok := value.([][32]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported bytes32[] type %T", value)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, common.Hash(item).Hex())
	}
	return out, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
