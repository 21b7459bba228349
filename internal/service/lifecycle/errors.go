package lifecycle

import "errors"

var (
	// ErrInvalidRequest 本地预检失败，不会触达网络
	ErrInvalidRequest = errors.New("invalid transaction request")

	// ErrIncorrectSecret 密码错误，可以用同一请求重新签名
	ErrIncorrectSecret = errors.New("incorrect secret")

	// ErrSignerLocked 签名器被锁定 (设备锁屏 / 钱包未解锁)
	ErrSignerLocked = errors.New("signer locked")

	// ErrSignerRejected 用户在设备或外部钱包上拒绝了签名
	ErrSignerRejected = errors.New("signature rejected")

	ErrCancelled    = errors.New("transaction cancelled")
	ErrInvalidState = errors.New("invalid coordinator state")
	ErrBusy         = errors.New("confirm already in progress")
)
