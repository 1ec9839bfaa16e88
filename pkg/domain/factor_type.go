package domain

import dErrors "casework/pkg/domain-errors"

// FactorType categorizes a risk factor by its source of concern.
type FactorType string

const (
	FactorTypeGeography FactorType = "geography"
	FactorTypeIndustry  FactorType = "industry"
	FactorTypePEP       FactorType = "pep"
	FactorTypeSanctions FactorType = "sanctions"
	FactorTypeAdverse   FactorType = "adverse_media"
	FactorTypeStructure FactorType = "ownership_structure"
	FactorTypeCustomer  FactorType = "customer_profile"
	FactorTypeBusiness  FactorType = "business_profile"
)

var validFactorTypes = map[FactorType]bool{
	FactorTypeGeography: true,
	FactorTypeIndustry:  true,
	FactorTypePEP:       true,
	FactorTypeSanctions: true,
	FactorTypeAdverse:   true,
	FactorTypeStructure: true,
	FactorTypeCustomer:  true,
	FactorTypeBusiness:  true,
}

// legacyFactorTypes maps values written by earlier ingestion pipelines onto
// the current enum. The table is the documented compatibility surface; any
// string outside it and the current enum is a data-quality error that must
// reach operators rather than decay into a default.
var legacyFactorTypes = map[string]FactorType{
	"KYC":           FactorTypeCustomer,
	"KYB":           FactorTypeBusiness,
	"COUNTRY":       FactorTypeGeography,
	"SECTOR":        FactorTypeIndustry,
	"WATCHLIST":     FactorTypeSanctions,
	"ADVERSE_MEDIA": FactorTypeAdverse,
}

// ParseFactorType decodes a persisted or externally supplied factor type.
// Current enum values pass through; legacy values map through the
// compatibility table; anything else returns CodeValidation.
func ParseFactorType(s string) (FactorType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "factor type cannot be empty")
	}
	t := FactorType(s)
	if validFactorTypes[t] {
		return t, nil
	}
	if mapped, ok := legacyFactorTypes[s]; ok {
		return mapped, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unmapped factor type: "+s)
}

func (t FactorType) IsValid() bool {
	return validFactorTypes[t]
}

func (t FactorType) String() string {
	return string(t)
}
