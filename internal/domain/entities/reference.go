package entities

import (
	"encoding/json"
	"os"
)

// AncillaryCodeSet is the fixed set of CPT codes exempted from
// mismatch/overbilling detection and zero-rated automatically. Loaded
// once per run and treated as immutable.
type AncillaryCodeSet map[string]struct{}

// Contains reports whether cpt is an ancillary code.
func (s AncillaryCodeSet) Contains(cpt string) bool {
	_, ok := s[cpt]
	return ok
}

// defaultAncillaryCodes is the fallback when the reference file is
// missing or unreadable.
var defaultAncillaryCodes = []string{
	"36415", "36416", "99000", "99001", "A4550", "A4556",
	"A4558", "A4570", "A4580", "A4590", "Q4001", "T1015",
}

type ancillaryCodesFile struct {
	IgnoredCPTCodes []string `json:"ignored_cpt_codes"`
}

// LoadAncillaryCodeSet reads the ancillary CPT reference file, falling
// back to the built-in set when the file cannot be read or parsed.
func LoadAncillaryCodeSet(path string) AncillaryCodeSet {
	codes := defaultAncillaryCodes

	if data, err := os.ReadFile(path); err == nil {
		var parsed ancillaryCodesFile
		if err := json.Unmarshal(data, &parsed); err == nil && len(parsed.IgnoredCPTCodes) > 0 {
			codes = parsed.IgnoredCPTCodes
		}
	}

	set := make(AncillaryCodeSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// ArthrogramCPTCodes identifies orders that must be routed to the
// arthrogram workflow regardless of bundle type.
var ArthrogramCPTCodes = map[string]struct{}{
	"20610": {},
	"20611": {},
	"77002": {},
	"77003": {},
	"77021": {},
}

// CPTCategory is the (category, subcategory) pair for a procedure code
// from the dim_proc reference table.
type CPTCategory struct {
	Category    string `json:"category" db:"category"`
	Subcategory string `json:"subcategory" db:"subcategory"`
}

// Key returns a stable grouping key for the category pair.
func (c CPTCategory) Key() string {
	return c.Category + "/" + c.Subcategory
}
