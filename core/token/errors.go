package token

import "errors"

var (
	errNilStore          = errors.New("token ledger: account store not configured")
	errNonPositiveAmount = errors.New("token ledger: amount must be positive")
)
