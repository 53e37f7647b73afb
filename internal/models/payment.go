package models

import (
	"errors"
	"strings"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

type PaymentMethod string

const (
	MethodGoPay     PaymentMethod = "gopay"
	MethodOVO       PaymentMethod = "ovo"
	MethodDANA      PaymentMethod = "dana"
	MethodShopeePay PaymentMethod = "shopeepay"
	MethodQRIS      PaymentMethod = "qris"
	MethodBCA       PaymentMethod = "bca"
	MethodMandiri   PaymentMethod = "mandiri"
	MethodSaldo     PaymentMethod = "saldo"
)

var methodLabels = map[PaymentMethod]string{
	MethodGoPay:     "GoPay",
	MethodOVO:       "OVO",
	MethodDANA:      "DANA",
	MethodShopeePay: "ShopeePay",
	MethodQRIS:      "QRIS",
	MethodBCA:       "BCA Virtual Account",
	MethodMandiri:   "Mandiri VA",
	MethodSaldo:     "Saldo Aplikasi",
}

// PaymentMethods lists every accepted method in display order.
func PaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		MethodGoPay, MethodOVO, MethodDANA, MethodShopeePay,
		MethodQRIS, MethodBCA, MethodMandiri, MethodSaldo,
	}
}

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := methodLabels[m]; !ok {
		return "", ErrInvalidPaymentMethod
	}
	return m, nil
}

func (m PaymentMethod) Valid() bool {
	_, ok := methodLabels[m]
	return ok
}

// DebitsBalance reports whether the method is paid from the stored balance.
func (m PaymentMethod) DebitsBalance() bool {
	return m == MethodSaldo
}

func (m PaymentMethod) Label() string {
	if l, ok := methodLabels[m]; ok {
		return l
	}
	return string(m)
}
