package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 保留错误码，替换提示信息
func (e Errno) WithMessage(msg string) *Errno {
	return &Errno{Code: e.Code, Message: msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var ptr *Errno
	if errors.As(err, &ptr) {
		return ptr.Code, ptr.Message
	}
	var val Errno
	if errors.As(err, &val) {
		return val.Code, val.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrNotFound         = Errno{Code: 10005, Message: "Resource not found"}
)

// Transaction Errors (30000+)
var (
	ErrInvalidRequest    = Errno{Code: 30001, Message: "Invalid transaction request"}
	ErrUnknownChain      = Errno{Code: 30002, Message: "Unknown chain"}
	ErrIncorrectSecret   = Errno{Code: 30101, Message: "Password incorrect"}
	ErrSignerLocked      = Errno{Code: 30102, Message: "Signer locked"}
	ErrSignerRejected    = Errno{Code: 30103, Message: "Signature rejected"}
	ErrSignerUnavailable = Errno{Code: 30104, Message: "Signer did not respond"}
	ErrTxCancelled       = Errno{Code: 30201, Message: "Transaction cancelled"}
	ErrTxState           = Errno{Code: 30202, Message: "Transaction is not in a confirmable state"}
	ErrTxBusy            = Errno{Code: 30203, Message: "Another confirmation is in progress for this account"}
	ErrFlowNotFound      = Errno{Code: 30204, Message: "Transaction flow not found"}
	ErrChainUnavailable  = Errno{Code: 30301, Message: "Chain RPC unavailable"}
)
