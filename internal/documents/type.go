package documents

import "fmt"

// Type is the closed set of document kinds the classifier may emit.
type Type string

const (
	NationalIDFront Type = "national_id_front"
	NationalIDBack  Type = "national_id_back"
	HRLetter        Type = "hr_letter"
	UtilityReceipt  Type = "utility_receipt"
)

// Types lists every Type in classifier prompt order.
var Types = []Type{NationalIDFront, NationalIDBack, HRLetter, UtilityReceipt}

// Family groups types that share a destination table.
type Family string

const (
	FamilyNationalID     Family = "national_id"
	FamilyHRLetter       Family = "hr_letter"
	FamilyUtilityReceipt Family = "utility_receipt"
)

// Families lists every Family.
var Families = []Family{FamilyNationalID, FamilyHRLetter, FamilyUtilityReceipt}

// ParseType matches s exactly against the known labels.
func ParseType(s string) (Type, bool) {
	for _, t := range Types {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ParseFamily matches s exactly against the known families.
func ParseFamily(s string) (Family, bool) {
	for _, f := range Families {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Family returns the family t belongs to. It panics on a value outside the
// closed set, which can only come from a conversion bypassing ParseType.
func (t Type) Family() Family {
	switch t {
	case NationalIDFront, NationalIDBack:
		return FamilyNationalID
	case HRLetter:
		return FamilyHRLetter
	case UtilityReceipt:
		return FamilyUtilityReceipt
	default:
		panic(fmt.Sprintf("documents: unknown type %q", string(t)))
	}
}

// IsNationalID reports whether t is either side of a national ID card.
func (t Type) IsNationalID() bool {
	return t == NationalIDFront || t == NationalIDBack
}

func (t Type) String() string { return string(t) }

func (f Family) String() string { return string(f) }
