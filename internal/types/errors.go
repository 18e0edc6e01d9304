package types

import "errors"

// Sentinel errors for the trading framework.
var (
	// Signal and portfolio errors
	ErrInvalidSignal     = errors.New("invalid signal")
	ErrDuplicateSignal   = errors.New("duplicate signal within cooldown window")
	ErrPositionExists    = errors.New("position already held for symbol")
	ErrNoPosition        = errors.New("no open position for symbol")
	ErrOrderTooSmall     = errors.New("order amount below minimum")
	ErrInsufficientCash  = errors.New("insufficient available cash")
	ErrPositionLimit     = errors.New("single position limit exceeded")
	ErrTotalPositionCap  = errors.New("total position limit exceeded")
	ErrLotTooSmall       = errors.New("quantity below one lot")

	// Order errors
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderFinal         = errors.New("order already in terminal state")
	ErrInvalidTransition  = errors.New("illegal order status transition")
	ErrOverFill           = errors.New("fill exceeds remaining order quantity")
	ErrOrderValueLimit    = errors.New("order value exceeds limit")
	ErrDailyOrderLimit    = errors.New("daily order count limit reached")

	// Account errors
	ErrFreezeFailed    = errors.New("cash freeze failed")
	ErrInvalidCapital  = errors.New("initial capital must be positive")
	ErrTradeClosed     = errors.New("trade already closed")
	ErrSymbolMismatch  = errors.New("symbol mismatch")

	// Data errors
	ErrInvalidBar      = errors.New("invalid bar data")
	ErrNoData          = errors.New("no bar data available")
	ErrTimeNotSet      = errors.New("current time cursor not set")
	ErrUnknownSymbol   = errors.New("unknown symbol")

	// Runtime errors
	ErrBusClosed         = errors.New("event bus not running")
	ErrDuplicateTimer    = errors.New("duplicate timer id")
	ErrDuplicateStrategy = errors.New("duplicate strategy id")
	ErrTimerNotFound     = errors.New("timer not found")
	ErrStrategyNotFound  = errors.New("strategy not found")
	ErrAlreadyRunning    = errors.New("already running")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidRange  = errors.New("invalid date range")
)
