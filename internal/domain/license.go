package domain

import (
	"encoding/hex"
	"math"
	"slices"
)

const (
	MaxLicenseDomains = 5
	MaxLicenseWallets = 10
	MaxDomainLen      = 64
)

// LicenseType es el tier de una licencia.
type LicenseType uint8

const (
	LicenseBasic LicenseType = iota
	LicensePro
	LicenseEnterprise
	LicenseCustom
)

// Unlimited es el techo de mercados de Enterprise y Custom.
const Unlimited = math.MaxUint32

// licenseTiers es la tabla por tier: nombre, techo de mercados y features.
var licenseTiers = [...]struct {
	name       string
	maxMarkets uint32
	features   LicenseFeatures
}{
	LicenseBasic: {"Basic", 5, LicenseFeatures{CanCreateMarkets: true}},
	LicensePro: {"Pro", 50, LicenseFeatures{
		CanCreateMarkets: true, CanUseOracles: true, CanCreatePrivateMarkets: true,
	}},
	LicenseEnterprise: {"Enterprise", Unlimited, LicenseFeatures{
		CanCreateMarkets: true, CanUseOracles: true, CanCreatePrivateMarkets: true, CanSetCustomFees: true,
	}},
	LicenseCustom: {"Custom", Unlimited, LicenseFeatures{CanCreateMarkets: true}},
}

// LicenseTypeFromCode decodifica el código numérico del tier.
func LicenseTypeFromCode(code uint8) (LicenseType, error) {
	if int(code) >= len(licenseTiers) {
		return 0, ErrInvalidLicenseType
	}
	return LicenseType(code), nil
}

func (t LicenseType) String() string {
	if int(t) >= len(licenseTiers) {
		return "Unknown"
	}
	return licenseTiers[t].name
}

// MaxMarkets es el techo por defecto del tier.
func (t LicenseType) MaxMarkets() uint32 { return licenseTiers[t].maxMarkets }

// DefaultFeatures son las features que recibe el tier al emitirse.
func (t LicenseType) DefaultFeatures() LicenseFeatures { return licenseTiers[t].features }

// LicenseFeatures son los flags de capacidad de una licencia.
type LicenseFeatures struct {
	CanCreateMarkets        bool `json:"can_create_markets"`
	CanUseOracles           bool `json:"can_use_oracles"`
	CanCreatePrivateMarkets bool `json:"can_create_private_markets"`
	CanSetCustomFees        bool `json:"can_set_custom_fees"`
}

// LicenseKey es el identificador opaco de 32 bytes de una licencia.
type LicenseKey [32]byte

// ParseLicenseKey decodifica una clave en hex (64 caracteres).
func ParseLicenseKey(s string) (LicenseKey, error) {
	var k LicenseKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(k) {
		return k, ErrInvalidLicenseKey
	}
	copy(k[:], b)
	return k, nil
}

func (k LicenseKey) String() string { return hex.EncodeToString(k[:]) }

func (k LicenseKey) IsZero() bool { return k == LicenseKey{} }

func (k LicenseKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *LicenseKey) UnmarshalText(b []byte) error {
	parsed, err := ParseLicenseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// License es un permiso para crear mercados bajo cuota y feature set.
type License struct {
	Key            LicenseKey      `json:"license_key"`
	Holder         Address         `json:"holder"`
	Type           LicenseType     `json:"license_type"`
	Features       LicenseFeatures `json:"features"`
	AllowedDomains []string        `json:"allowed_domains"`
	AllowedWallets []Address       `json:"allowed_wallets"`
	MaxMarkets     uint32          `json:"max_markets"`
	MarketsCreated uint32          `json:"markets_created"`
	IsActive       bool            `json:"is_active"`
	IsTransferable bool            `json:"is_transferable"`
	IssuedAt       int64           `json:"issued_at"`
	ExpiresAt      int64           `json:"expires_at"` // 0 = nunca
	LastUsedAt     int64           `json:"last_used_at"`
	IssuedBy       Address         `json:"issued_by"`
}

// IsValid: activa y no expirada en now.
func (l License) IsValid(now int64) bool {
	if !l.IsActive {
		return false
	}
	return l.ExpiresAt == 0 || now <= l.ExpiresAt
}

// IsExpired indica si la licencia tiene fecha de expiración ya pasada.
func (l License) IsExpired(now int64) bool {
	return l.ExpiresAt > 0 && now > l.ExpiresAt
}

// CanCreateMarket comprueba feature y cuota.
func (l License) CanCreateMarket() bool {
	return l.Features.CanCreateMarkets && l.MarketsCreated < l.MaxMarkets
}

// IsWalletAuthorized: el holder siempre; si no, pertenencia a AllowedWallets.
func (l License) IsWalletAuthorized(w Address) bool {
	if l.Holder == w {
		return true
	}
	return slices.Contains(l.AllowedWallets, w)
}

// IsDomainAllowed: lista vacía permite cualquier dominio.
func (l License) IsDomainAllowed(domain string) bool {
	if len(l.AllowedDomains) == 0 {
		return true
	}
	return slices.Contains(l.AllowedDomains, domain)
}

// ValidateDomains comprueba cantidad y longitud de una lista de dominios.
func ValidateDomains(domains []string) error {
	if len(domains) > MaxLicenseDomains {
		return ErrTooManyDomains
	}
	for _, d := range domains {
		if len(d) > MaxDomainLen {
			return ErrDomainTooLong
		}
	}
	return nil
}

// ValidateWallets comprueba cantidad y formato de una lista de wallets.
func ValidateWallets(wallets []Address) error {
	if len(wallets) > MaxLicenseWallets {
		return ErrTooManyWallets
	}
	for _, w := range wallets {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone devuelve una copia sin slices compartidos.
func (l License) Clone() License {
	l.AllowedDomains = slices.Clone(l.AllowedDomains)
	l.AllowedWallets = slices.Clone(l.AllowedWallets)
	return l
}
