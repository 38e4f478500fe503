package sho

import (
	"errors"

	"shodeposit/native/asset"
)

// Kind classifies engine failures.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindAuthorization covers signature or identity mismatches. The error
	// never says which argument differed from the signed tuple.
	KindAuthorization
	// KindState covers caller-facing conditions such as replay, deadline, cap
	// and pause.
	KindState
	// KindAssetTransfer covers failures raised by the asset layer or by a swap
	// target.
	KindAssetTransfer
	// KindAccessControl covers non-owner admin calls.
	KindAccessControl
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindAssetTransfer:
		return "asset_transfer"
	case KindAccessControl:
		return "access_control"
	default:
		return "unknown"
	}
}

// Error is a classified engine failure. Specific conditions are exported as
// package-level values so callers can match them with errors.Is; the category
// sentinels below match every Error of the same Kind.
type Error struct {
	kind Kind
	msg  string
}

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the failure category.
func (e *Error) Kind() Kind { return e.kind }

// Is matches category sentinels.
func (e *Error) Is(target error) bool {
	cat, ok := target.(*category)
	return ok && cat.kind == e.kind
}

type category struct {
	kind Kind
}

func (c *category) Error() string { return "sho: " + c.kind.String() + " failure" }

// Category sentinels.
var (
	ErrAuthorization  error = &category{kind: KindAuthorization}
	ErrStateViolation error = &category{kind: KindState}
	ErrAssetTransfer  error = &category{kind: KindAssetTransfer}
	ErrAccessControl  error = &category{kind: KindAccessControl}
)

var (
	ErrSignatureVerification = newError(KindAuthorization, "sho: signature verification failed")

	ErrPaused                 = newError(KindState, "sho: paused")
	ErrNotPaused              = newError(KindState, "sho: not paused")
	ErrInvalidDepositReceiver = newError(KindState, "sho: invalid deposit receiver")
	ErrAlreadyDeposited       = newError(KindState, "sho: this wallet already made a deposit for this sale")
	ErrDeadlinePassed         = newError(KindState, "sho: the deadline for this sale has passed")
	ErrCapReached             = newError(KindState, "sho: the maximum amount of deposits have been reached")
	ErrInvalidAmount          = newError(KindState, "sho: deposit amount must be positive")
	ErrInvalidSale            = newError(KindState, "sho: sale identifier required")
	ErrInvalidSwap            = newError(KindState, "sho: swap instruction incomplete")
	ErrReentrantCall          = newError(KindState, "sho: reentrant call")
	ErrLayoutMismatch         = newError(KindState, "sho: operation not supported by voucher layout")
	ErrZeroAddress            = newError(KindState, "sho: zero address")

	ErrSwapTargetUnknown = newError(KindAssetTransfer, "sho: swap target not registered")
	ErrSwapFailed        = newError(KindAssetTransfer, "sho: swap call failed")
	ErrSwapShortfall     = newError(KindAssetTransfer, "sho: swap output below deposit amount")

	ErrNotOwner = newError(KindAccessControl, "sho: caller is not the owner")
)

// Classify reports the category of err. Native asset failures, which the
// engine returns unwrapped, classify as KindAssetTransfer.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	switch {
	case errors.Is(err, asset.ErrTransferExceedsBalance),
		errors.Is(err, asset.ErrInsufficientAllowance),
		errors.Is(err, asset.ErrTransferFromZero),
		errors.Is(err, asset.ErrTransferToZero),
		errors.Is(err, asset.ErrUnknownAsset):
		return KindAssetTransfer
	}
	return KindUnknown
}

// reason maps an error to a short metrics label.
func reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSignatureVerification):
		return "signature"
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrAlreadyDeposited):
		return "already_deposited"
	case errors.Is(err, ErrDeadlinePassed):
		return "deadline"
	case errors.Is(err, ErrCapReached):
		return "cap"
	case errors.Is(err, ErrInvalidDepositReceiver):
		return "receiver"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, ErrSwapShortfall):
		return "swap_shortfall"
	case errors.Is(err, ErrSwapFailed), errors.Is(err, ErrSwapTargetUnknown):
		return "swap_failed"
	}
	return Classify(err).String()
}
