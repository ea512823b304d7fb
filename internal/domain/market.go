package domain

import "slices"

const (
	MaxOutcomes         = 10
	MinOutcomes         = 2
	MaxTitleLen         = 128
	MaxDescriptionLen   = 512
	MaxOutcomeLabelLen  = 64
	MaxOracleEventIDLen = 64
)

// MarketStatus es el estado del mercado. Open → Resolved | Cancelled, terminales.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "OPEN"
	MarketResolved  MarketStatus = "RESOLVED"
	MarketCancelled MarketStatus = "CANCELLED"
)

// Outcome es uno de los resultados posibles de un mercado.
type Outcome struct {
	Label       string `json:"label"`
	TotalAmount uint64 `json:"total_amount"` // suma de stakes netos
	BettorCount uint32 `json:"bettor_count"`
}

// Market es un mercado pari-mutuel de stake fijo.
type Market struct {
	ID                 uint64         `json:"market_id"`
	Creator            Address        `json:"creator"`
	CreatorFeeWallet   Address        `json:"creator_fee_wallet"`
	TokenMint          string         `json:"token_mint"`
	Category           MarketCategory `json:"category"`
	Oracle             *uint32        `json:"oracle,omitempty"`  // nil = sin oráculo asignado
	License            *LicenseKey    `json:"license,omitempty"` // licencia con la que se creó
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	OracleEventID      string         `json:"oracle_event_id"`
	BetAmount          uint64         `json:"bet_amount"`
	BettingDeadline    int64          `json:"betting_deadline"`
	ResolutionDeadline int64          `json:"resolution_deadline"`
	Status             MarketStatus   `json:"status"`
	WinningOutcome     uint8          `json:"winning_outcome"` // válido solo si Resolved
	TotalPool          uint64         `json:"total_pool"`
	BonusPool          uint64         `json:"bonus_pool"`
	Outcomes           []Outcome      `json:"outcomes"`
	CreatedAt          int64          `json:"created_at"`
	ResolvedAt         int64          `json:"resolved_at"`
	ResolvedByOracle   bool           `json:"resolved_by_oracle"`
}

// Clone devuelve una copia sin estado compartido con m.
func (m Market) Clone() Market {
	m.Outcomes = slices.Clone(m.Outcomes)
	if m.Oracle != nil {
		id := *m.Oracle
		m.Oracle = &id
	}
	if m.License != nil {
		k := *m.License
		m.License = &k
	}
	return m
}

// HasOracle indica si el mercado tiene oráculo asignado.
func (m Market) HasOracle() bool { return m.Oracle != nil }

// IsBettingClosed: la ventana de apuestas cierra estrictamente después del deadline.
func (m Market) IsBettingClosed(now int64) bool { return now > m.BettingDeadline }

// IsPastResolutionDeadline indica si now superó el resolution deadline.
func (m Market) IsPastResolutionDeadline(now int64) bool { return now > m.ResolutionDeadline }

// ValidOutcome indica si idx es un índice válido de outcome.
func (m Market) ValidOutcome(idx uint8) bool { return int(idx) < len(m.Outcomes) }

// TotalBettors suma los bettors de todos los outcomes.
func (m Market) TotalBettors() uint64 {
	var n uint64
	for _, o := range m.Outcomes {
		n += uint64(o.BettorCount)
	}
	return n
}

// PoolConsistent comprueba total_pool == Σ outcomes[i].total_amount.
func (m Market) PoolConsistent() bool {
	var sum uint64
	for _, o := range m.Outcomes {
		next, err := CheckedAdd(sum, o.TotalAmount)
		if err != nil {
			return false
		}
		sum = next
	}
	return sum == m.TotalPool
}

// TotalDistributable es total_pool + bonus_pool.
func (m Market) TotalDistributable() (uint64, error) {
	return CheckedAdd(m.TotalPool, m.BonusPool)
}

// CalculatePayout devuelve floor(pool_amount * distributable / winning_total)
// para una apuesta ganadora de un mercado resuelto; 0 en cualquier otro caso.
func (m Market) CalculatePayout(b Bet) (uint64, error) {
	if m.Status != MarketResolved || b.OutcomeIndex != m.WinningOutcome || !m.ValidOutcome(m.WinningOutcome) {
		return 0, nil
	}
	winning := m.Outcomes[m.WinningOutcome].TotalAmount
	if winning == 0 {
		return 0, nil
	}
	distributable, err := m.TotalDistributable()
	if err != nil {
		return 0, err
	}
	return MulDiv(b.PoolAmount, distributable, winning)
}

// MarketParams son los datos de entrada de create_market.
type MarketParams struct {
	ID                 uint64   `json:"market_id"`
	CategoryCode       uint8    `json:"category"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	BetAmount          uint64   `json:"bet_amount"`
	BettingDeadline    int64    `json:"betting_deadline"`
	ResolutionDeadline int64    `json:"resolution_deadline"`
	Outcomes           []string `json:"outcomes"`
	OracleEventID      string   `json:"oracle_event_id"`
	CreatorFeeWallet   Address  `json:"creator_fee_wallet"`
	TokenMint          string   `json:"token_mint"`
}

// Validate aplica las reglas de create_market que no dependen de licencias.
func (p MarketParams) Validate(now int64) (MarketCategory, error) {
	if len(p.Title) > MaxTitleLen {
		return 0, ErrTitleTooLong
	}
	if len(p.Description) > MaxDescriptionLen {
		return 0, ErrDescriptionTooLong
	}
	if len(p.Outcomes) < MinOutcomes {
		return 0, ErrTooFewOutcomes
	}
	if len(p.Outcomes) > MaxOutcomes {
		return 0, ErrTooManyOutcomes
	}
	if p.BetAmount == 0 {
		return 0, ErrInvalidBetAmount
	}
	if len(p.OracleEventID) > MaxOracleEventIDLen {
		return 0, ErrOracleEventIDTooLong
	}
	cat, err := CategoryFromCode(p.CategoryCode)
	if err != nil {
		return 0, err
	}
	if p.BettingDeadline <= now {
		return 0, ErrInvalidDeadline
	}
	if p.ResolutionDeadline < p.BettingDeadline {
		return 0, ErrInvalidDeadline
	}
	for _, label := range p.Outcomes {
		if len(label) > MaxOutcomeLabelLen {
			return 0, ErrOutcomeLabelTooLong
		}
	}
	if p.CreatorFeeWallet != "" {
		if err := p.CreatorFeeWallet.Validate(); err != nil {
			return 0, err
		}
	}
	return cat, nil
}

// NewMarket construye el mercado Open con contadores a cero.
func NewMarket(p MarketParams, creator Address, cat MarketCategory, now int64) Market {
	outcomes := make([]Outcome, len(p.Outcomes))
	for i, label := range p.Outcomes {
		outcomes[i] = Outcome{Label: label}
	}
	feeWallet := p.CreatorFeeWallet
	if feeWallet == "" {
		feeWallet = creator
	}
	return Market{
		ID:                 p.ID,
		Creator:            creator,
		CreatorFeeWallet:   feeWallet,
		TokenMint:          p.TokenMint,
		Category:           cat,
		Title:              p.Title,
		Description:        p.Description,
		OracleEventID:      p.OracleEventID,
		BetAmount:          p.BetAmount,
		BettingDeadline:    p.BettingDeadline,
		ResolutionDeadline: p.ResolutionDeadline,
		Status:             MarketOpen,
		Outcomes:           outcomes,
		CreatedAt:          now,
	}
}

// Bet es la apuesta única de un bettor en un mercado.
type Bet struct {
	MarketID       uint64  `json:"market_id"`
	Bettor         Address `json:"bettor"`
	OutcomeIndex   uint8   `json:"outcome_index"`
	OriginalAmount uint64  `json:"original_amount"` // stake antes de fees
	PoolAmount     uint64  `json:"pool_amount"`     // stake neto acreditado al outcome
	Claimed        bool    `json:"claimed"`
	PlacedAt       int64   `json:"placed_at"`
}
