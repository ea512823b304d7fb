package domain

// ProtocolConfig es la configuración global del protocolo. Se crea una vez y
// solo la modifica la authority.
type ProtocolConfig struct {
	Authority      Address  `json:"authority"`
	Treasury       Address  `json:"treasury"`
	Fees           FeeRates `json:"fees"`
	TotalMarkets   uint64   `json:"total_markets"`
	TotalVolume    Uint128  `json:"total_volume"`
	TotalOracles   uint32   `json:"total_oracles"`
	TotalLicenses  uint32   `json:"total_licenses"`
	RequireLicense bool     `json:"require_license"`
}

// IsAuthority indica si caller es la authority del protocolo.
func (p ProtocolConfig) IsAuthority(caller Address) bool {
	return caller != "" && caller == p.Authority
}

// ProtocolUpdate es un update parcial: los campos nil no cambian.
type ProtocolUpdate struct {
	Treasury    *Address `json:"treasury,omitempty"`
	ProtocolBPS *uint16  `json:"protocol_fee_bps,omitempty"`
	CreatorBPS  *uint16  `json:"creator_fee_bps,omitempty"`
	PoolBPS     *uint16  `json:"pool_fee_bps,omitempty"`
}

// Apply fusiona el update y valida el techo de fees sobre el resultado.
func (u ProtocolUpdate) Apply(p ProtocolConfig) (ProtocolConfig, error) {
	if u.Treasury != nil {
		if err := u.Treasury.Validate(); err != nil {
			return p, err
		}
		p.Treasury = *u.Treasury
	}
	if u.ProtocolBPS != nil {
		p.Fees.ProtocolBPS = *u.ProtocolBPS
	}
	if u.CreatorBPS != nil {
		p.Fees.CreatorBPS = *u.CreatorBPS
	}
	if u.PoolBPS != nil {
		p.Fees.PoolBPS = *u.PoolBPS
	}
	if err := p.Fees.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
