package signer

import (
	"context"
	"errors"
	"fmt"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/pkg/address"
	"dot-wallet/pkg/wallet/types"
)

var ErrUnsupportedSigner = errors.New("no signer backend for signing context")

// Router 按 SigningContext 的类型分发到具体后端
type Router struct {
	backends map[types.SignerKind]lifecycle.Signer
}

func NewRouter() *Router {
	return &Router{backends: make(map[types.SignerKind]lifecycle.Signer)}
}

// Register 为某种签名方式注册后端，重复注册覆盖旧值
func (r *Router) Register(kind types.SignerKind, s lifecycle.Signer) *Router {
	r.backends[kind] = s
	return r
}

func (r *Router) Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error) {
	if sc == nil {
		return nil, ErrUnsupportedSigner
	}
	backend, ok := r.backends[sc.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigner, sc.Kind())
	}
	return backend.Sign(ctx, tx, sc)
}

// checkOwner 确认签名公钥就是请求的发送方
func checkOwner(from string, pub []byte) error {
	want, _, err := address.Decode(from)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if len(pub) != len(want) {
		return fmt.Errorf("public key length %d does not match sender", len(pub))
	}
	for i := range want {
		if want[i] != pub[i] {
			return errors.New("signing key does not belong to sender")
		}
	}
	return nil
}
