package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the closed taxonomy surfaced to tool callers.
type ErrorCode string

const (
	CodeMarketClosed     ErrorCode = "MARKET_CLOSED"
	CodeTradeContextBusy ErrorCode = "TRADE_CONTEXT_BUSY"
	CodeInsufficientFund ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInvalidStops     ErrorCode = "INVALID_STOPS"
	CodeUnknownError     ErrorCode = "UNKNOWN_ERROR"
	CodeUnknownOperation ErrorCode = "UNKNOWN_OPERATION"
	CodeAccountNotFound  ErrorCode = "ACCOUNT_NOT_FOUND"
	CodeLifecycleTimeout ErrorCode = "LIFECYCLE_TIMEOUT"
)

// TradeError carries a user-facing message and a taxonomy code.
type TradeError struct {
	Message string
	Code    ErrorCode
	cause   error
}

func (e *TradeError) Error() string { return e.Message }

func (e *TradeError) Unwrap() error { return e.cause }

func NewTradeError(code ErrorCode, message string) *TradeError {
	return &TradeError{Message: message, Code: code}
}

func AccountNotFound(accountID string) *TradeError {
	return &TradeError{
		Message: fmt.Sprintf("account %s not found", accountID),
		Code:    CodeAccountNotFound,
	}
}

func LifecycleTimeout(stage, accountID string, cause error) *TradeError {
	return &TradeError{
		Message: fmt.Sprintf("timed out waiting for account %s to %s", accountID, stage),
		Code:    CodeLifecycleTimeout,
		cause:   cause,
	}
}

// substitution rules checked in fixed priority order; the trigger phrases are
// part of the contract surface, callers key retry logic off the codes.
var mapRules = []struct {
	substr  string
	message string
	code    ErrorCode
}{
	{"market is closed", "Market is closed", CodeMarketClosed},
	{"trade context busy", "Trade context is busy, please retry", CodeTradeContextBusy},
	{"not enough money", "Insufficient funds", CodeInsufficientFund},
	{"invalid stops", "Invalid stop loss or take profit levels", CodeInvalidStops},
}

// MapError classifies a raw failure into the taxonomy. Already-classified
// errors pass through unchanged; anything unmatched keeps its original
// message under UNKNOWN_ERROR.
func MapError(err error) *TradeError {
	if err == nil {
		return nil
	}

	var te *TradeError
	if errors.As(err, &te) {
		return te
	}

	message := err.Error()
	for _, rule := range mapRules {
		if strings.Contains(message, rule.substr) {
			return &TradeError{Message: rule.message, Code: rule.code, cause: err}
		}
	}
	return &TradeError{Message: message, Code: CodeUnknownError, cause: err}
}
