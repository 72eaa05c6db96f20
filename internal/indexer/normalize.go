package indexer

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"intentScope/internal/model"
	"intentScope/internal/protocol"
	"intentScope/internal/source"
)

// classified is everything derived from a window before enrichment.
type classified struct {
	events    []model.NormalizedEvent
	payloads  []model.PayloadRecord
	roots     []model.PrivacyRootRecord
	transfers []transferCandidate
	errs      []*model.DecodeError
}

type transferCandidate struct {
	record model.TokenTransferRecord
	raw    source.RawTransfer
}

func classifyWindow(chainID uint64, contract common.Address, w *source.Window) classified {
	var out classified
	out.errs = append(out.errs, w.DecodeErrors...)

	seenTx := make(map[common.Hash]bool, len(w.Txs))
	seenTransfer := make(map[model.TransferKey]bool)
	for i := range w.Txs {
		tx := &w.Txs[i]
		if seenTx[tx.Hash] {
			continue
		}
		seenTx[tx.Hash] = true

		ev, payloads, roots, errs := normalizeTx(chainID, contract, tx)
		out.events = append(out.events, ev)
		out.payloads = append(out.payloads, payloads...)
		out.roots = append(out.roots, roots...)
		out.errs = append(out.errs, errs...)

		for j := range tx.Transfers {
			raw := &tx.Transfers[j]
			rec := model.TokenTransferRecord{
				ChainID:      chainID,
				TxHash:       tx.Hash.Hex(),
				BlockNumber:  tx.BlockNumber,
				LogIndex:     uint64(raw.LogIndex),
				TokenAddress: raw.Token.Hex(),
				FromAddress:  raw.From.Hex(),
				ToAddress:    raw.To.Hex(),
				AmountRaw:    bigString(raw.Amount),
				Timestamp:    tx.Timestamp.UTC(),
			}
			// One row per natural key; the first log wins.
			if seenTransfer[rec.Key()] {
				continue
			}
			seenTransfer[rec.Key()] = true
			out.transfers = append(out.transfers, transferCandidate{record: rec, raw: *raw})
		}
	}
	return out
}

// normalizeTx turns one contract transaction into its event row plus any
// payload and commitment-root rows. Undecodable logs are reported and skipped.
func normalizeTx(chainID uint64, contract common.Address, tx *source.RawTx) (model.NormalizedEvent, []model.PayloadRecord, []model.PrivacyRootRecord, []*model.DecodeError) {
	var (
		payloads []model.PayloadRecord
		roots    []model.PrivacyRootRecord
		errs     []*model.DecodeError
		topics   []string
		primary  *types.Log
		kind     model.EventKind
	)

	for i := range tx.Logs {
		log := &tx.Logs[i]
		if log.Removed || len(log.Topics) == 0 || !strings.EqualFold(log.Address.Hex(), contract.Hex()) {
			continue
		}
		c, ok := protocol.Classify(log.Topics[0])
		if !ok {
			continue
		}
		topics = append(topics, log.Topics[0].Hex())
		if primary == nil || (c.Kind == model.KindTransactionExecuted && kind != model.KindTransactionExecuted) {
			primary = log
			kind = c.Kind
		}

		switch {
		case c.IsPayload():
			p, err := protocol.DecodePayload(*log)
			if err != nil {
				errs = append(errs, asDecodeError(chainID, *log, err))
				continue
			}
			payloads = append(payloads, model.PayloadRecord{
				ChainID:      chainID,
				TxHash:       tx.Hash.Hex(),
				BlockNumber:  tx.BlockNumber,
				PayloadType:  p.Type,
				PayloadIndex: p.Index,
				Tag:          p.Tag.Hex(),
				Blob:         hexutil.Encode(p.Blob),
				Timestamp:    tx.Timestamp.UTC(),
			})
		case c.Kind == model.KindCommitmentRootAdded:
			root, err := protocol.DecodeCommitmentRoot(*log)
			if err != nil {
				errs = append(errs, asDecodeError(chainID, *log, err))
				continue
			}
			roots = append(roots, model.PrivacyRootRecord{
				ChainID:     chainID,
				BlockNumber: tx.BlockNumber,
				LogIndex:    uint64(log.Index),
				TxHash:      tx.Hash.Hex(),
				RootHash:    root.Hex(),
				Timestamp:   tx.Timestamp.UTC(),
			})
		}
	}

	if kind == "" {
		kind = model.KindTransactionExecuted
	}
	ev := model.NormalizedEvent{
		ChainID:       chainID,
		TxHash:        tx.Hash.Hex(),
		BlockNumber:   tx.BlockNumber,
		Kind:          kind,
		SolverAddress: tx.From.Hex(),
		ValueWei:      bigString(tx.Value),
		GasUsed:       tx.GasUsed,
		GasPriceWei:   bigString(tx.GasPrice),
		Timestamp:     tx.Timestamp.UTC(),
		RawTopics:     topics,
	}
	if primary != nil {
		fields, err := protocol.DecodeFields(*primary)
		if err != nil {
			errs = append(errs, asDecodeError(chainID, *primary, err))
		} else {
			ev.DecodedFields = fields
		}
	}
	return ev, payloads, roots, errs
}

func asDecodeError(chainID uint64, log types.Log, err error) *model.DecodeError {
	var de *model.DecodeError
	if !errors.As(err, &de) {
		de = &model.DecodeError{
			BlockNumber: log.BlockNumber,
			TxHash:      log.TxHash.Hex(),
			LogIndex:    uint64(log.Index),
			Address:     log.Address.Hex(),
			Reason:      err.Error(),
		}
		if len(log.Topics) > 0 {
			de.Topic0 = log.Topics[0].Hex()
		}
	}
	out := *de
	out.ChainID = chainID
	return &out
}
