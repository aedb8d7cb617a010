package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Method representa a forma de pagamento de uma venda
type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
)

var (
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrInsufficientPayment = errors.New("insufficient payment")
)

// Settlement é o resultado da liquidação de um pagamento
type Settlement struct {
	Method       Method           `json:"method"`
	Total        decimal.Decimal  `json:"total"`
	CashReceived *decimal.Decimal `json:"cash_received,omitempty"`
	Change       decimal.Decimal  `json:"change"`
}

// Valid reports whether m is cash or transfer.
func (m Method) Valid() bool {
	return m == MethodCash || m == MethodTransfer
}

// ParseMethod converte uma string em Method
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", ErrInvalidMethod
	}
	return m, nil
}

// Settle valida o pagamento e calcula o troco.
// Em dinheiro, cashReceived é obrigatório e deve cobrir o total.
// Em transferência, os campos de dinheiro são descartados e o troco é zero.
func Settle(method Method, total decimal.Decimal, cashReceived *decimal.Decimal) (Settlement, error) {
	switch method {
	case MethodCash:
		if cashReceived == nil || cashReceived.LessThan(total) {
			return Settlement{}, ErrInsufficientPayment
		}
		received := *cashReceived
		return Settlement{
			Method:       method,
			Total:        total,
			CashReceived: &received,
			Change:       received.Sub(total),
		}, nil
	case MethodTransfer:
		return Settlement{
			Method: method,
			Total:  total,
			Change: decimal.Zero,
		}, nil
	default:
		return Settlement{}, ErrInvalidMethod
	}
}
