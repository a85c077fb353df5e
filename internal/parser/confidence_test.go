package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// completeBundle has every weighted field present, including the zero-weight
// caste field.
func completeBundle() model.FieldBundle {
	area := decimal.RequireFromString("0.50")
	return model.FieldBundle{
		Location: model.LocationFields{
			District:       model.FieldOf("Khordha"),
			Tehsil:         model.FieldOf("Bhubaneswar"),
			Village:        model.FieldOf("Badagada"),
			KhatiyanNumber: model.FieldOf("1245"),
		},
		Owner: model.OwnerFields{
			OwnerName:  model.FieldOf("Anita Sahoo"),
			FatherName: model.FieldOf("Raghunath Sahoo"),
			Caste:      model.FieldOf("General"),
		},
		Plots: model.PlotFields{
			Plots:       []model.Plot{{Number: "1525", Area: area}},
			PlotNumbers: model.FieldOf("1525"),
			TotalArea:   &area,
		},
	}
}

func TestScore_CompleteBundle(t *testing.T) {
	assert.Equal(t, 1.0, Score(completeBundle()))
}

func TestScore_MissingWeightOneField(t *testing.T) {
	b := completeBundle()
	b.Owner.FatherName = model.AbsentField

	// 12 of 13 weighted points.
	assert.InDelta(t, 12.0/13.0, Score(b), 1e-9)
	assert.Equal(t, model.ConfidenceMedium, Confidence(b))
}

func TestScore_MissingOwnerAndPlots(t *testing.T) {
	b := completeBundle()
	b.Owner.OwnerName = model.AbsentField
	b.Owner.FatherName = model.AbsentField
	b.Plots = model.PlotFields{}

	// Only the four weight-2 location fields remain: 8 of 13.
	assert.InDelta(t, 8.0/13.0, Score(b), 1e-9)
	assert.Equal(t, model.ConfidenceLow, Confidence(b))
}

func TestScore_CasteCarriesNoWeight(t *testing.T) {
	b := completeBundle()
	b.Owner.Caste = model.AbsentField
	assert.Equal(t, 1.0, Score(b))
}

func TestScore_EmptyBundle(t *testing.T) {
	assert.Equal(t, 0.0, Score(model.FieldBundle{}))
	assert.Equal(t, model.ConfidenceLow, Confidence(model.FieldBundle{}))
}

func TestBucket_InclusiveBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.ConfidenceBucket
	}{
		{1.0, model.ConfidenceHigh},
		{0.95, model.ConfidenceHigh},
		{0.9499, model.ConfidenceMedium},
		{0.70, model.ConfidenceMedium},
		{0.6999, model.ConfidenceLow},
		{0.0, model.ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.score), "score %v", tt.score)
	}
}
