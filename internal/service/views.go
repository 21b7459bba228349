package service

import (
	"strings"
	"time"

	"dot-wallet/pkg/config"
	"dot-wallet/pkg/wallet/types"
	"dot-wallet/pkg/wallet/units"
)

// FlowView 对外展示的交易流程，金额同时给出最小单位和展示格式
type FlowView struct {
	ID         string       `json:"id"`
	ChainID    string       `json:"chain_id"`
	Action     string       `json:"action"`
	State      string       `json:"state"`
	From       string       `json:"from"`
	Target     string       `json:"target,omitempty"`
	Validators []string     `json:"validators,omitempty"`
	ParaID     uint32       `json:"para_id,omitempty"`
	Amount     string       `json:"amount,omitempty"`
	AmountRaw  string       `json:"amount_raw,omitempty"`
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	Outcome    *OutcomeView `json:"outcome,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

type OutcomeView struct {
	Status         string               `json:"status"`
	TxHash         string               `json:"tx_hash,omitempty"`
	BlockHash      string               `json:"block_hash,omitempty"`
	ExtrinsicIndex int                  `json:"extrinsic_index"`
	Fee            string               `json:"fee,omitempty"`
	FeeRaw         string               `json:"fee_raw,omitempty"`
	FailureKind    string               `json:"failure_kind,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	Dispatch       *types.DispatchError `json:"dispatch_error,omitempty"`
	ExplorerURL    string               `json:"explorer_url,omitempty"`
}

type HistoryView struct {
	ChainID       string    `json:"chain_id"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	TxHash        string    `json:"tx_hash"`
	BlockHash     string    `json:"block_hash,omitempty"`
	Amount        string    `json:"amount"`
	Target        string    `json:"target,omitempty"`
	Fee           string    `json:"fee,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExplorerLink subscan 风格: <explorer>/extrinsic/<hash>
func ExplorerLink(ch config.ChainConfig, txHash string) string {
	if ch.ExplorerUrl == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(ch.ExplorerUrl, "/") + "/extrinsic/" + txHash
}

func (s *TxService) view(f *flow) *FlowView {
	cfg := f.chain.Config
	v := &FlowView{
		ID:        f.id,
		ChainID:   cfg.ID,
		State:     f.coord.State().String(),
		CreatedAt: f.created,
	}

	f.mu.Lock()
	if f.lastErr != nil {
		v.LastError = f.lastErr.Error()
	}
	v.UpdatedAt = f.updated
	f.mu.Unlock()

	if req := f.coord.Request(); req != nil {
		v.Action = req.Action.String()
		v.From = req.From
		v.Target = req.Target
		v.Validators = req.Validators
		v.ParaID = req.ParaID
		if req.Action.HasAmount() {
			v.Amount = units.Format(req.AmountOrZero(), cfg.Decimals, cfg.Symbol)
			v.AmountRaw = req.AmountOrZero().String()
		}
		if !req.ExpiresAt.IsZero() {
			at := req.ExpiresAt
			v.ExpiresAt = &at
		}
	}

	if out := f.coord.Outcome(); out != nil {
		ov := &OutcomeView{
			Status:         string(out.Status),
			TxHash:         out.TxHash,
			BlockHash:      out.BlockHash,
			ExtrinsicIndex: out.ExtrinsicIndex,
			FailureKind:    string(out.FailureKind),
			FailureReason:  out.FailureReason,
			Dispatch:       out.Dispatch,
			ExplorerURL:    ExplorerLink(cfg, out.TxHash),
		}
		if out.FeePaid != nil {
			ov.Fee = units.Format(out.FeePaid, cfg.Decimals, cfg.Symbol)
			ov.FeeRaw = out.FeePaid.String()
		}
		v.Outcome = ov
	}
	return v
}

func (s *TxService) historyView(e *types.HistoryEntry) *HistoryView {
	cfg := s.chains[e.ChainID].Config
	hv := &HistoryView{
		ChainID:       e.ChainID,
		Action:        e.Action.String(),
		Status:        string(e.Status),
		FailureKind:   string(e.FailureKind),
		TxHash:        e.TxHash,
		BlockHash:     e.BlockHash,
		Amount:        units.Format(e.Amount, cfg.Decimals, cfg.Symbol),
		Target:        e.Target,
		FailureReason: e.FailureReason,
		ExplorerURL:   ExplorerLink(cfg, e.TxHash),
		CreatedAt:     e.CreatedAt,
	}
	if e.Fee != nil {
		hv.Fee = units.Format(e.Fee, cfg.Decimals, cfg.Symbol)
	}
	return hv
}
