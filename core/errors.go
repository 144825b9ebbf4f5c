package core

import "errors"

// ErrorKind groups hard failures so callers can map them without string matching.
type ErrorKind string

const (
	KindState         ErrorKind = "state"
	KindAuthorization ErrorKind = "authorization"
	KindResourceLimit ErrorKind = "resource_limit"
	KindFunding       ErrorKind = "funding"
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
)

// Error is a hard failure with a stable, human-readable reason.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func newError(kind ErrorKind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the stable reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// State errors.
var (
	ErrAuctionInactive    = newError(KindState, "Auction inactive")
	ErrAuctionNotFinished = newError(KindState, "Auction active")
	ErrBidClaimed         = newError(KindState, "Bid already claimed")
	ErrPassNotForSale     = newError(KindState, "Pass not for sale")
	ErrNoCreatureOnSale   = newError(KindState, "No creature on sale")
	ErrBatchStillOnSale   = newError(KindState, "Batch still on sale")
)

// Authorization errors.
var (
	ErrNotOperator    = newError(KindAuthorization, "Caller is not the operator")
	ErrNotBidOwner    = newError(KindAuthorization, "Not the owner of the bid")
	ErrNotBeneficiary = newError(KindAuthorization, "Not beneficiary")
	ErrInvalidOwner   = newError(KindAuthorization, "Scion: invalid owner")
)

// Resource-limit errors.
var (
	ErrTooManyBids       = newError(KindResourceLimit, "Too many bids during 1 transaction")
	ErrTooManyIndexes    = newError(KindResourceLimit, "Too much indexes")
	ErrTooManyPromotions = newError(KindResourceLimit, "Too many mintPass to mint")
	ErrBidsLimitReached  = newError(KindResourceLimit, "Bids limit reached")
)

// Funding errors.
var (
	ErrBidBelowMinimum      = newError(KindFunding, "Bid value must be bigger then minimum bid")
	ErrInsufficientBidFunds = newError(KindFunding, "There is not enough funds to make bids")
	ErrInsufficientUpdate   = newError(KindFunding, "There is not enough funds to update bid")
	ErrInsufficientBuyFunds = newError(KindFunding, "There is not enough funds to buy")
	ErrInsufficientReroll   = newError(KindFunding, "There is not enough funds to reroll")
	ErrInsufficientBalance  = newError(KindFunding, "Insufficient balance")

	ErrInsufficientCreatureFunds = newError(KindFunding, "There is not enough funds to claim creature")
)

// Configuration errors.
var (
	ErrPricesNotSet       = newError(KindConfiguration, "Prices not set yet")
	ErrWeightBandsNotSet  = newError(KindConfiguration, "Weight bands not set")
	ErrCatalogNotSet      = newError(KindConfiguration, "Catalog not set")
	ErrNoAssetsInBand     = newError(KindConfiguration, "No assets in weight band")
	ErrNoRerollCandidates = newError(KindConfiguration, "No other asset to reroll into")
)

// Validation errors.
var (
	ErrLengthMismatch      = newError(KindValidation, "Array lengths mismatch")
	ErrInvalidBand         = newError(KindValidation, "Band bottom exceeds top")
	ErrInvalidTier         = newError(KindValidation, "Invalid tier")
	ErrInvalidWeight       = newError(KindValidation, "Weight out of range")
	ErrInvalidAmount       = newError(KindValidation, "Amount must be positive")
	ErrAmountPrecision     = newError(KindValidation, "Amount exceeds 8 decimal places")
	ErrInvalidCount        = newError(KindValidation, "Count must be positive")
	ErrInvalidDuration     = newError(KindValidation, "Duration must be positive")
	ErrEmptyCategory       = newError(KindValidation, "Category has no entries")
	ErrDuplicateAsset      = newError(KindValidation, "Duplicate asset id")
	ErrWeightSumOverflow   = newError(KindValidation, "Category weight sum overflows")
	ErrBidNotFound         = newError(KindValidation, "Bid not found")
	ErrPassNotFound        = newError(KindValidation, "Pass not found")
	ErrTokenNotFound       = newError(KindValidation, "Token not found")
	ErrCategoryNotFound    = newError(KindValidation, "Asset type not found")
	ErrAssetNotFound       = newError(KindValidation, "Asset not found")
	ErrEntryOutOfRange     = newError(KindValidation, "Asset index out of range")
	ErrDowngradeNotAllowed = newError(KindValidation, "Downgrade not allowed")
	ErrWeightChangeBlocked = newError(KindValidation, "Weight change not allowed")
	ErrRarityPlusRequired  = newError(KindValidation, "Rarity increase required")

	ErrBatchPriceNotPositive = newError(KindValidation, "Price should be higher than 0")
	ErrCreatureLineNotFound  = newError(KindValidation, "Creature line not found")
	ErrCreatureNotFound      = newError(KindValidation, "Creature not found")
)
