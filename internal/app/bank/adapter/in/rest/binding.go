package rest

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
)

var registerOnce sync.Once

// registerDecimal 註冊 `decimal_amount` 驗證，交由 domain.ValidateAmount 判斷，不做數值轉換
func registerDecimal() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("decimal_amount", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && domain.ValidateAmount(d) == nil
		})
	})
}

type withdrawBody struct {
	Pin    string          `json:"pin" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"decimal_amount"`
}

type depositBody struct {
	Amount decimal.Decimal `json:"amount" binding:"decimal_amount"`
	// AccountNumber 有值時以帳號找目標帳戶，否則用路徑上的 id
	AccountNumber string `json:"accountNumber"`
}

type transferBody struct {
	SourceAccountNumber      string          `json:"sourceAccountNumber" binding:"required"`
	SourcePin                string          `json:"sourcePin" binding:"required"`
	DestinationAccountNumber string          `json:"destinationAccountNumber" binding:"required"`
	Amount                   decimal.Decimal `json:"amount" binding:"decimal_amount"`
}
