package domain

import "errors"

// Kind clasifica un error del ledger según su causa.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindAuthorization
	KindTemporal
	KindResource
	KindEntitlement
	KindNotFound
)

// String devuelve el nombre del kind en minúsculas.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindAuthorization:
		return "authorization"
	case KindTemporal:
		return "temporal"
	case KindResource:
		return "resource"
	case KindEntitlement:
		return "entitlement"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error es un error tipado del ledger. Los valores exportados abajo son
// sentinels: compararlos con errors.Is.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// KindOf devuelve el Kind del primer *Error en la cadena, o KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf devuelve el código estable del error, o "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// Validation
var (
	ErrTitleTooLong          = newError(KindValidation, "title_too_long", "title too long")
	ErrDescriptionTooLong    = newError(KindValidation, "description_too_long", "description too long")
	ErrTooManyOutcomes       = newError(KindValidation, "too_many_outcomes", "too many outcomes")
	ErrTooFewOutcomes        = newError(KindValidation, "too_few_outcomes", "need at least 2 outcomes")
	ErrOutcomeLabelTooLong   = newError(KindValidation, "outcome_label_too_long", "outcome label too long")
	ErrInvalidBetAmount      = newError(KindValidation, "invalid_bet_amount", "invalid bet amount")
	ErrInvalidDeadline       = newError(KindValidation, "invalid_deadline", "invalid deadline configuration")
	ErrInvalidFeeConfig      = newError(KindValidation, "invalid_fee_config", "invalid fee configuration")
	ErrInvalidOutcome        = newError(KindValidation, "invalid_outcome", "invalid outcome index")
	ErrInvalidCategory       = newError(KindValidation, "invalid_category", "invalid category")
	ErrOracleNameTooLong     = newError(KindValidation, "oracle_name_too_long", "oracle name too long")
	ErrDataSourceTooLong     = newError(KindValidation, "data_source_too_long", "data source URL too long")
	ErrOracleEventIDTooLong  = newError(KindValidation, "oracle_event_id_too_long", "oracle event ID too long")
	ErrInvalidLicenseType    = newError(KindValidation, "invalid_license_type", "invalid license type")
	ErrTooManyDomains        = newError(KindValidation, "too_many_domains", "too many domains specified")
	ErrDomainTooLong         = newError(KindValidation, "domain_too_long", "domain name too long")
	ErrTooManyWallets        = newError(KindValidation, "too_many_wallets", "too many wallets specified")
	ErrInvalidAddress        = newError(KindValidation, "invalid_address", "invalid address")
	ErrInvalidLicenseKey     = newError(KindValidation, "invalid_license_key", "invalid license key")
	ErrProtocolAlreadyExists = newError(KindValidation, "protocol_already_initialized", "protocol already initialized")
)

// State
var (
	ErrMarketNotOpen          = newError(KindState, "market_not_open", "market is not open for betting")
	ErrMarketNotResolved      = newError(KindState, "market_not_resolved", "market has not been resolved yet")
	ErrMarketNotCancelled     = newError(KindState, "market_not_cancelled", "market has not been cancelled")
	ErrMarketHasBets          = newError(KindState, "market_has_bets", "market has active bets and cannot be cancelled")
	ErrMarketAlreadyHasOracle = newError(KindState, "market_already_has_oracle", "market already has an oracle assigned")
	ErrMarketHasNoOracle      = newError(KindState, "market_has_no_oracle", "market does not have an assigned oracle")
	ErrBetAlreadyPlaced       = newError(KindState, "bet_already_placed", "bet already placed for this market")
	ErrAlreadyClaimed         = newError(KindState, "already_claimed", "winnings already claimed")
	ErrBetAlreadyWithdrawn    = newError(KindState, "bet_already_withdrawn", "bet already withdrawn or claimed")
	ErrOracleNotActive        = newError(KindState, "oracle_not_active", "oracle is not active")
	ErrLicenseNotActive       = newError(KindState, "license_not_active", "license is not active")
	ErrLicenseAlreadyExists   = newError(KindState, "license_already_exists", "license already exists for this key")
	ErrLostBet                = newError(KindState, "lost_bet", "lost bet - no winnings to claim")
	ErrProtocolNotInitialized = newError(KindState, "protocol_not_initialized", "protocol has not been initialized")
	ErrAlreadyExists          = newError(KindState, "already_exists", "already exists")
)

// Authorization
var (
	ErrUnauthorized                   = newError(KindAuthorization, "unauthorized", "unauthorized action")
	ErrOracleNotAuthorizedForCategory = newError(KindAuthorization, "oracle_not_authorized_for_category", "oracle not authorized for this category")
	ErrOracleMismatch                 = newError(KindAuthorization, "oracle_mismatch", "oracle mismatch - wrong oracle for this market")
	ErrWalletNotAuthorized            = newError(KindAuthorization, "wallet_not_authorized", "wallet not authorized under this license")
	ErrDomainNotAuthorized            = newError(KindAuthorization, "domain_not_authorized", "domain not authorized under this license")
	ErrLicenseNotTransferable         = newError(KindAuthorization, "license_not_transferable", "license is not transferable")
)

// Temporal
var (
	ErrBettingDeadlinePassed           = newError(KindTemporal, "betting_deadline_passed", "betting deadline has passed")
	ErrWithdrawDeadlinePassed          = newError(KindTemporal, "withdraw_deadline_passed", "cannot withdraw after betting deadline")
	ErrCannotResolveBeforeBettingClose = newError(KindTemporal, "cannot_resolve_before_betting_deadline", "market cannot be resolved before betting deadline")
	ErrLicenseExpired                  = newError(KindTemporal, "license_expired", "license has expired")
)

// Resource
var (
	ErrOverflow          = newError(KindResource, "overflow", "arithmetic overflow")
	ErrInsufficientFunds = newError(KindResource, "insufficient_funds", "insufficient funds")
)

// Entitlement
var (
	ErrLicenseRequired           = newError(KindEntitlement, "license_required", "valid license required to perform this action")
	ErrLicenseMarketLimitReached = newError(KindEntitlement, "license_market_limit_reached", "license market limit reached")
	ErrFeatureNotEnabled         = newError(KindEntitlement, "feature_not_enabled", "feature not enabled for this license")
)

// ErrNotFound se devuelve cuando un registro no existe en el storage.
var ErrNotFound = newError(KindNotFound, "not_found", "not found")
