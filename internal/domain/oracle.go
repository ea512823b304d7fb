package domain

const (
	MaxOracleNameLen = 64
	MaxDataSourceLen = 256
)

// Oracle es una autoridad de resolución limitada a un set de categorías.
type Oracle struct {
	ID               uint32      `json:"oracle_id"`
	Authority        Address     `json:"authority"`
	Name             string      `json:"name"`
	Categories       CategorySet `json:"categories"`
	DataSource       string      `json:"data_source"`
	IsActive         bool        `json:"is_active"`
	MarketsResolved  uint64      `json:"markets_resolved"`
	RegisteredAt     int64       `json:"registered_at"`
	LastResolutionAt int64       `json:"last_resolution_at"`
}

// CanResolveCategory consulta el slot de la categoría.
func (o Oracle) CanResolveCategory(c MarketCategory) bool {
	return o.Categories.Has(c)
}

func (o *Oracle) EnableCategory(c MarketCategory) { o.Categories.Enable(c) }

func (o *Oracle) DisableCategory(c MarketCategory) { o.Categories.Disable(c) }

// ValidateOracleName valida la longitud del nombre.
func ValidateOracleName(name string) error {
	if len(name) > MaxOracleNameLen {
		return ErrOracleNameTooLong
	}
	return nil
}

// ValidateDataSource valida la longitud del data source.
func ValidateDataSource(src string) error {
	if len(src) > MaxDataSourceLen {
		return ErrDataSourceTooLong
	}
	return nil
}

// OracleUpdate es un reemplazo parcial: los campos nil no cambian.
type OracleUpdate struct {
	Name       *string      `json:"name,omitempty"`
	Categories *CategorySet `json:"categories,omitempty"`
	DataSource *string      `json:"data_source,omitempty"`
	IsActive   *bool        `json:"is_active,omitempty"`
}

// Apply valida y aplica el update sobre una copia del oráculo.
func (u OracleUpdate) Apply(o Oracle) (Oracle, error) {
	if u.Name != nil {
		if err := ValidateOracleName(*u.Name); err != nil {
			return o, err
		}
		o.Name = *u.Name
	}
	if u.Categories != nil {
		o.Categories = *u.Categories
	}
	if u.DataSource != nil {
		if err := ValidateDataSource(*u.DataSource); err != nil {
			return o, err
		}
		o.DataSource = *u.DataSource
	}
	if u.IsActive != nil {
		o.IsActive = *u.IsActive
	}
	return o, nil
}
