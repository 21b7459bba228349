package lifecycle

import (
	"context"
	"fmt"

	"dot-wallet/pkg/wallet/types"
)

// validate 做本地预检。nominate 需要查询链上的 MaxNominations 常量。
func validate(ctx context.Context, chain ChainClient, req *types.Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if !req.Action.Valid() {
		return fmt.Errorf("%w: unknown action %d", ErrInvalidRequest, int(req.Action))
	}
	if req.ChainID == "" {
		return fmt.Errorf("%w: chain id is required", ErrInvalidRequest)
	}
	if err := chain.CheckAddress(req.From); err != nil {
		return fmt.Errorf("%w: from address: %v", ErrInvalidRequest, err)
	}

	if req.Amount != nil && req.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	if req.Action.HasAmount() && req.Amount == nil {
		return fmt.Errorf("%w: %s requires an amount", ErrInvalidRequest, req.Action)
	}

	switch req.Action {
	case types.ActionTransfer:
		if req.Target == "" {
			return fmt.Errorf("%w: transfer requires a target address", ErrInvalidRequest)
		}
		if err := chain.CheckAddress(req.Target); err != nil {
			return fmt.Errorf("%w: target address: %v", ErrInvalidRequest, err)
		}

	case types.ActionNominate:
		if len(req.Validators) == 0 {
			return fmt.Errorf("%w: nomination list is empty", ErrInvalidRequest)
		}
		seen := make(map[string]struct{}, len(req.Validators))
		for _, v := range req.Validators {
			if err := chain.CheckAddress(v); err != nil {
				return fmt.Errorf("%w: validator %s: %v", ErrInvalidRequest, v, err)
			}
			if _, dup := seen[v]; dup {
				return fmt.Errorf("%w: duplicate validator %s", ErrInvalidRequest, v)
			}
			seen[v] = struct{}{}
		}
		max, err := chain.MaxNominations(ctx)
		if err != nil {
			return fmt.Errorf("query max nominations: %w", err)
		}
		if uint32(len(req.Validators)) > max {
			return fmt.Errorf("%w: %d validators exceeds max nominations %d", ErrInvalidRequest, len(req.Validators), max)
		}

	case types.ActionContribute:
		if req.ParaID == 0 {
			return fmt.Errorf("%w: contribute requires a para id", ErrInvalidRequest)
		}
	}
	return nil
}
