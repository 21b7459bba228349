package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"dot-wallet/pkg/wallet/types"
)

var validate *validator.Validate

// Init 注册自定义校验规则到 gin 的 binding validator
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validate = v
		_ = v.RegisterValidation("tx_action", func(fl validator.FieldLevel) bool {
			_, err := types.ParseAction(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("signer_kind", func(fl validator.FieldLevel) bool {
			switch types.SignerKind(fl.Field().String()) {
			case types.SignerPassword, types.SignerLedger, types.SignerQR, types.SignerInjected:
				return true
			}
			return false
		})
	}
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "请求参数错误"
	}

	var errMsgs []string
	for _, e := range validationErrors {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 至少为 %s", field, param))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能超过 %s", field, param))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
		case "tx_action":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不是支持的交易类型", field))
		case "signer_kind":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不是支持的签名方式", field))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
		}
	}
	return strings.Join(errMsgs, "; ")
}
