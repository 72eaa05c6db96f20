package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"intentScope/internal/model"
)

// Classification is the semantic meaning of a topic0.
// Payload is empty for non-payload kinds.
type Classification struct {
	Kind    model.EventKind
	Payload model.PayloadType
}

// IsPayload reports whether the event carries a payload blob.
func (c Classification) IsPayload() bool { return c.Payload != "" }

type watchedEvent struct {
	signature      string
	abiName        string
	classification Classification
}

// Order matters: WatchedTopics returns topics in this order.
var watchedEvents = []watchedEvent{
	{"TransactionExecuted(bytes32[],bytes32[])", "TransactionExecuted", Classification{Kind: model.KindTransactionExecuted}},
	{"ActionExecuted(bytes32,uint256)", "ActionExecuted", Classification{Kind: model.KindActionExecuted}},
	{"CommitmentTreeRootAdded(bytes32)", "CommitmentTreeRootAdded", Classification{Kind: model.KindCommitmentRootAdded}},
	{"ResourcePayload(bytes32,uint256,bytes)", "ResourcePayload", Classification{Kind: model.KindResourcePayload, Payload: model.PayloadResource}},
	{"DiscoveryPayload(bytes32,uint256,bytes)", "DiscoveryPayload", Classification{Kind: model.KindDiscoveryPayload, Payload: model.PayloadDiscovery}},
	{"ExternalPayload(bytes32,uint256,bytes)", "ExternalPayload", Classification{Kind: model.KindExternalPayload, Payload: model.PayloadExternal}},
	{"ApplicationPayload(bytes32,uint256,bytes)", "ApplicationPayload", Classification{Kind: model.KindApplicationPayload, Payload: model.PayloadApplication}},
	{"ForwarderCallExecuted(address,bytes,bytes)", "ForwarderCallExecuted", Classification{Kind: model.KindForwarderCallExecuted}},
}

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var (
	topicTable    = make(map[common.Hash]Classification, len(watchedEvents))
	kindToABIName = make(map[model.EventKind]string, len(watchedEvents))
	watchedTopics = make([]common.Hash, 0, len(watchedEvents))
)

func init() {
	for _, ev := range watchedEvents {
		topic := crypto.Keccak256Hash([]byte(ev.signature))
		topicTable[topic] = ev.classification
		kindToABIName[ev.classification.Kind] = ev.abiName
		watchedTopics = append(watchedTopics, topic)
	}
}

// Classify maps a topic0 to its event kind. Unknown topics return false.
func Classify(topic0 common.Hash) (Classification, bool) {
	c, ok := topicTable[topic0]
	return c, ok
}

// ClassifyHex is Classify for a 0x-prefixed topic string.
func ClassifyHex(topic0 string) (Classification, bool) {
	if len(topic0) != 66 {
		return Classification{}, false
	}
	return Classify(common.HexToHash(topic0))
}

// WatchedTopics returns the topic0 union used to filter contract logs.
func WatchedTopics() []common.Hash {
	out := make([]common.Hash, len(watchedTopics))
	copy(out, watchedTopics)
	return out
}

// TopicFor returns the topic0 of a watched kind.
func TopicFor(kind model.EventKind) (common.Hash, bool) {
	for _, ev := range watchedEvents {
		if ev.classification.Kind == kind {
			return crypto.Keccak256Hash([]byte(ev.signature)), true
		}
	}
	return common.Hash{}, false
}
