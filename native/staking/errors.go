package staking

import "errors"

var (
	// ErrNilState signals the engine was used before being wired to a
	// persistence layer.
	ErrNilState = errors.New("staking engine: state not configured")
	// ErrNilGateway signals the engine was used without a transfer gateway.
	ErrNilGateway = errors.New("staking engine: transfer gateway not configured")
	// ErrInvalidPoolID rejects unknown pool identifiers, and deposits into
	// pools disabled by a zero APR.
	ErrInvalidPoolID = errors.New("staking engine: invalid pool id")
	// ErrInsufficientDepositAmount rejects zero or negative deposits.
	ErrInsufficientDepositAmount = errors.New("staking engine: deposit amount must be positive")
	// ErrInvalidAmount rejects zero-value reserve funding.
	ErrInvalidAmount = errors.New("staking engine: amount must be positive")
	// ErrInvalidPoolAPR rejects pool creation with a zero APR.
	ErrInvalidPoolAPR = errors.New("staking engine: pool apr must be positive")
	// ErrInvalidWithdrawLockPeriod rejects lock periods above 365 days.
	ErrInvalidWithdrawLockPeriod = errors.New("staking engine: withdraw lock period exceeds maximum")
	// ErrInvalidEarlyWithdrawFee rejects fees above the configured ceiling.
	ErrInvalidEarlyWithdrawFee = errors.New("staking engine: early withdraw fee exceeds maximum")
	// ErrInvalidSettings rejects treasure recovery with no reserve or an
	// invalid destination, and zero marketing addresses.
	ErrInvalidSettings = errors.New("staking engine: invalid settings")
	// ErrTransferFrom propagates a failed inbound asset transfer.
	ErrTransferFrom = errors.New("staking engine: transfer from caller failed")
	// ErrTransfer propagates a failed outbound asset transfer.
	ErrTransfer = errors.New("staking engine: transfer to recipient failed")
)
