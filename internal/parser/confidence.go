package parser

import (
	"github.com/bhulekh-seva/ror-cli/internal/model"

	"go.uber.org/zap"
)

// Bucket thresholds over the weighted completeness ratio.
const (
	HighThreshold   = 0.95
	MediumThreshold = 0.70
)

// FieldWeight is one entry of the confidence checklist.
type FieldWeight struct {
	Name    string
	Weight  int
	Present func(model.FieldBundle) bool
}

// FieldWeights is the stable weighted checklist of fields expected in every
// well-formed record. Location fields and the khatiyan number carry the
// highest weight; caste is optional and carries none.
var FieldWeights = []FieldWeight{
	{"district", 2, func(b model.FieldBundle) bool { return b.Location.District.Present }},
	{"tehsil", 2, func(b model.FieldBundle) bool { return b.Location.Tehsil.Present }},
	{"village", 2, func(b model.FieldBundle) bool { return b.Location.Village.Present }},
	{"khatiyan_number", 2, func(b model.FieldBundle) bool { return b.Location.KhatiyanNumber.Present }},
	{"owner_name", 1, func(b model.FieldBundle) bool { return b.Owner.OwnerName.Present }},
	{"father_name", 1, func(b model.FieldBundle) bool { return b.Owner.FatherName.Present }},
	{"total_plots", 1, func(b model.FieldBundle) bool { return b.Plots.TotalPlots() > 0 }},
	{"plot_numbers", 1, func(b model.FieldBundle) bool { return b.Plots.PlotNumbers.Present }},
	{"total_area", 1, func(b model.FieldBundle) bool { return b.Plots.TotalArea != nil }},
	{"caste", 0, func(b model.FieldBundle) bool { return b.Owner.Caste.Present }},
}

// Score computes the weighted completeness ratio of a bundle in [0, 1].
func Score(b model.FieldBundle) float64 {
	var present, total int
	for _, fw := range FieldWeights {
		total += fw.Weight
		if fw.Present(b) {
			present += fw.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total)
}

// Bucket maps a completeness score to a confidence bucket. Boundaries are
// inclusive: exactly 0.95 is high, exactly 0.70 is medium.
func Bucket(score float64) model.ConfidenceBucket {
	switch {
	case score >= HighThreshold:
		return model.ConfidenceHigh
	case score >= MediumThreshold:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Confidence scores a bundle and returns its bucket.
func Confidence(b model.FieldBundle) model.ConfidenceBucket {
	score := Score(b)
	bucket := Bucket(score)
	zap.L().Debug("parser: confidence computed",
		zap.Float64("score", score),
		zap.String("bucket", string(bucket)),
	)
	return bucket
}
