package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MarketCategory es la categoría de un mercado. El ordinal indexa el vector
// de autorización de los oráculos.
type MarketCategory uint8

const (
	CategoryPolitics MarketCategory = iota
	CategorySports
	CategoryFinance
	CategoryCrypto
	CategoryGeopolitics
	CategoryEarnings
	CategoryTech
	CategoryCulture
	CategoryWorld
	CategoryEconomy
	CategoryElections
	CategoryMentions
)

// NumCategories es el tamaño del vector de categorías de un oráculo.
const NumCategories = 12

var categoryNames = [NumCategories]string{
	"Politics", "Sports", "Finance", "Crypto", "Geopolitics", "Earnings",
	"Tech", "Culture", "World", "Economy", "Elections", "Mentions",
}

// CategoryFromCode decodifica el código numérico de una categoría.
func CategoryFromCode(code uint8) (MarketCategory, error) {
	if int(code) >= NumCategories {
		return 0, ErrInvalidCategory
	}
	return MarketCategory(code), nil
}

// ParseCategory acepta el nombre (sin distinguir mayúsculas) o el código.
func ParseCategory(s string) (MarketCategory, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return MarketCategory(i), nil
		}
	}
	if code, err := strconv.ParseUint(s, 10, 8); err == nil {
		return CategoryFromCode(uint8(code))
	}
	return 0, ErrInvalidCategory
}

// Valid indica si el ordinal cae dentro del enum.
func (c MarketCategory) Valid() bool { return int(c) < NumCategories }

func (c MarketCategory) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// CategorySet es el vector de 12 slots de autorización por categoría.
type CategorySet [NumCategories]bool

// CategorySetOf construye un set con las categorías dadas habilitadas.
func CategorySetOf(cats ...MarketCategory) CategorySet {
	var s CategorySet
	for _, c := range cats {
		s.Enable(c)
	}
	return s
}

// Has devuelve false para ordinales fuera de rango.
func (s CategorySet) Has(c MarketCategory) bool {
	if !c.Valid() {
		return false
	}
	return s[c]
}

func (s *CategorySet) Enable(c MarketCategory) {
	if c.Valid() {
		s[c] = true
	}
}

func (s *CategorySet) Disable(c MarketCategory) {
	if c.Valid() {
		s[c] = false
	}
}

// Mask codifica el set como bitmask (bit i = categoría i), usado por el storage.
func (s CategorySet) Mask() uint16 {
	var m uint16
	for i, on := range s {
		if on {
			m |= 1 << i
		}
	}
	return m
}

// CategorySetFromMask es la inversa de Mask; ignora los bits altos.
func CategorySetFromMask(m uint16) CategorySet {
	var s CategorySet
	for i := range s {
		s[i] = m&(1<<i) != 0
	}
	return s
}

// MarshalText serializa la categoría por nombre.
func (c MarketCategory) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidCategory
	}
	return []byte(c.String()), nil
}

// UnmarshalText acepta el nombre o el código numérico.
func (c *MarketCategory) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
