package domain

import "time"

// EventType identifica una transición confirmada del ledger.
type EventType string

const (
	EventProtocolInitialized EventType = "protocol_initialized"
	EventProtocolUpdated     EventType = "protocol_updated"
	EventLicenseRequirement  EventType = "license_requirement_set"
	EventOracleRegistered    EventType = "oracle_registered"
	EventOracleUpdated       EventType = "oracle_updated"
	EventOracleAssigned      EventType = "oracle_assigned"
	EventMarketCreated       EventType = "market_created"
	EventBetPlaced           EventType = "bet_placed"
	EventBetWithdrawn        EventType = "bet_withdrawn"
	EventMarketResolved      EventType = "market_resolved"
	EventMarketCancelled     EventType = "market_cancelled"
	EventWinningsClaimed     EventType = "winnings_claimed"
	EventRefundClaimed       EventType = "refund_claimed"
	EventLicenseIssued       EventType = "license_issued"
	EventLicenseRevoked      EventType = "license_revoked"
	EventLicenseActivated    EventType = "license_activated"
	EventLicenseTransferred  EventType = "license_transferred"
	EventLicenseUpdated      EventType = "license_updated"
)

// Event se publica después del commit de una operación.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Actor      Address           `json:"actor"`
	MarketID   uint64            `json:"market_id,omitempty"`
	Amount     uint64            `json:"amount,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
