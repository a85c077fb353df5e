package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Field is a single extracted value with explicit presence. An absent field is
// distinct from a present-but-blank one; the parser marks anything it cannot
// locate as absent.
type Field struct {
	Value   string `json:"value"`
	Present bool   `json:"present"`
}

// FieldOf returns a present Field with the given value.
func FieldOf(v string) Field { return Field{Value: v, Present: true} }

// AbsentField is the zero Field, named for readability at call sites.
var AbsentField = Field{}

// Or returns the field value, or the fallback when absent.
func (f Field) Or(fallback string) string {
	if f.Present {
		return f.Value
	}
	return fallback
}

// Plot is one row of the RoR plot table.
type Plot struct {
	Number   string          `json:"plot_number"`
	Area     decimal.Decimal `json:"area"` // hectares
	LandType string          `json:"land_type,omitempty"`
	PlotType string          `json:"plot_type,omitempty"`
	Owner    string          `json:"owner,omitempty"`
	Father   string          `json:"father,omitempty"`
	Caste    string          `json:"caste,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// LocationFields are the bilingual location fields plus the khatiyan number.
type LocationFields struct {
	District       Field `json:"district"`
	NativeDistrict Field `json:"native_district"`
	Tehsil         Field `json:"tehsil"`
	NativeTehsil   Field `json:"native_tehsil"`
	Village        Field `json:"village"`
	NativeVillage  Field `json:"native_village"`
	KhatiyanNumber Field `json:"khatiyan_number"`
}

// OwnerFields hold the primary owner and related details.
type OwnerFields struct {
	OwnerName  Field    `json:"owner_name"`
	FatherName Field    `json:"father_name"`
	Caste      Field    `json:"caste"`
	CoOwners   []string `json:"co_owners,omitempty"`
}

// PlotFields hold per-plot detail and the aggregates derived from it.
// TotalArea is the exact decimal sum of per-plot areas; nil when no plot rows
// were found.
type PlotFields struct {
	Plots       []Plot           `json:"plots,omitempty"`
	PlotNumbers Field            `json:"plot_numbers"`
	TotalArea   *decimal.Decimal `json:"total_area,omitempty"`
	LandType    Field            `json:"land_type"`
}

// TotalPlots is the number of plot rows extracted.
func (p PlotFields) TotalPlots() int { return len(p.Plots) }

// FieldBundle is the full extraction output: four field groups covering
// location, owner, plots and free-text metadata.
type FieldBundle struct {
	Location LocationFields `json:"location"`
	Owner    OwnerFields    `json:"owner"`
	Plots    PlotFields     `json:"plots"`
	Metadata Field          `json:"special_comments"`
}

// Identity derives the record identity from the bundle's location fields.
// Absent fields map to empty components.
func (b FieldBundle) Identity() RecordIdentity {
	return RecordIdentity{
		District:       strings.TrimSpace(b.Location.District.Value),
		Tehsil:         strings.TrimSpace(b.Location.Tehsil.Value),
		Village:        strings.TrimSpace(b.Location.Village.Value),
		KhatiyanNumber: strings.TrimSpace(b.Location.KhatiyanNumber.Value),
	}
}
