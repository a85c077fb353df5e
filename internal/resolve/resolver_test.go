package resolve

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// fakeMaster serves a small in-memory hierarchy:
//
//	Khordha (1) → Bhubaneswar (10) → Badagada (100), Gadakana (101)
//	Cuttack (2) → Salipur (20)     → Nemalo (200)
type fakeMaster struct {
	districtsErr error
	tehsilsErr   error
	villagesErr  error
}

func (m *fakeMaster) Districts(ctx context.Context) ([]District, error) {
	if m.districtsErr != nil {
		return nil, m.districtsErr
	}
	return []District{
		{ID: 1, SourceID: "384", NativeName: "ଖୋର୍ଦ୍ଧା", EnglishName: "Khordha"},
		{ID: 2, SourceID: "372", NativeName: "କଟକ", EnglishName: "Cuttack"},
	}, nil
}

func (m *fakeMaster) TehsilsByDistrict(ctx context.Context, districtID int64) ([]Tehsil, error) {
	if m.tehsilsErr != nil {
		return nil, m.tehsilsErr
	}
	switch districtID {
	case 1:
		return []Tehsil{{ID: 10, DistrictID: 1, SourceID: "21", NativeName: "ଭୁବନେଶ୍ୱର", EnglishName: "Bhubaneswar"}}, nil
	case 2:
		return []Tehsil{{ID: 20, DistrictID: 2, SourceID: "05", NativeName: "ସାଲିପୁର", EnglishName: "Salipur"}}, nil
	}
	return nil, nil
}

func (m *fakeMaster) VillagesByTehsil(ctx context.Context, districtID, tehsilID int64) ([]Village, error) {
	if m.villagesErr != nil {
		return nil, m.villagesErr
	}
	switch tehsilID {
	case 10:
		return []Village{
			{ID: 100, DistrictID: 1, TehsilID: 10, SourceID: "055", NativeName: "ବଡଗଡ", EnglishName: "Badagada"},
			{ID: 101, DistrictID: 1, TehsilID: 10, SourceID: "056", NativeName: "ଗଡକଣ", EnglishName: "Gadakana"},
		}, nil
	case 20:
		return []Village{{ID: 200, DistrictID: 2, TehsilID: 20, SourceID: "012", NativeName: "ନେମାଳ", EnglishName: "Nemalo"}}, nil
	}
	return nil, nil
}

func TestResolve_FullHierarchy(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	res, err := r.Resolve(context.Background(), Input{
		District:       "Khordha",
		Tehsil:         "Bhubaneswar",
		Village:        "Badagada",
		KhatiyanNumber: "1245",
	})
	require.NoError(t, err)

	require.True(t, res.FullyResolved())
	assert.Equal(t, int64(1), *res.DistrictID)
	assert.Equal(t, int64(10), *res.TehsilID)
	assert.Equal(t, int64(100), *res.VillageID)
	assert.Equal(t, "384", res.DistrictSourceID)
	assert.Equal(t,
		"https://bhulekh.ori.nic.in/SRoRFront_Uni.aspx?district=384&tahasil=21&village=055&khatiyan=1245",
		res.ViewerURL)

	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, model.MatchSuccess, o.Status)
		assert.Equal(t, StrategyEnglishEnglish, o.Strategy)
	}
}

func TestResolve_CaseAndWhitespaceInsensitive(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	res, err := r.Resolve(context.Background(), Input{
		District: "  khordha  ",
		Tehsil:   "BHUBANESWAR",
		Village:  "badagada",
	})
	require.NoError(t, err)
	assert.True(t, res.FullyResolved())
}

func TestResolve_NativeFallbackStrategy(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	// English inputs match nothing; the native names carry the match.
	res, err := r.Resolve(context.Background(), Input{
		District:       "Khurda Dist",
		NativeDistrict: "ଖୋର୍ଦ୍ଧା",
		Tehsil:         "BBSR",
		NativeTehsil:   "ଭୁବନେଶ୍ୱର",
		Village:        "",
		NativeVillage:  "ବଡଗଡ",
	})
	require.NoError(t, err)

	require.True(t, res.FullyResolved())
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, StrategyNativeNative, o.Strategy)
	}
}

func TestResolve_DistrictFailureHaltsHierarchy(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	res, err := r.Resolve(context.Background(), Input{
		District: "Atlantis",
		Tehsil:   "Bhubaneswar",
		Village:  "Badagada",
	})
	require.NoError(t, err)

	assert.False(t, res.FullyResolved())
	assert.Nil(t, res.DistrictID)
	assert.Empty(t, res.ViewerURL)

	// Lower levels are never attempted.
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, model.LocationDistrict, res.Outcomes[0].Level)
	assert.Equal(t, model.MatchFailed, res.Outcomes[0].Status)
	assert.Nil(t, res.Outcomes[0].MatchedID)
	assert.Zero(t, res.Outcomes[0].Strategy)
}

func TestResolve_VillageFailureKeepsUpperMatches(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	res, err := r.Resolve(context.Background(), Input{
		District: "Khordha",
		Tehsil:   "Bhubaneswar",
		Village:  "Nowhere",
	})
	require.NoError(t, err)

	assert.False(t, res.FullyResolved())
	require.NotNil(t, res.DistrictID)
	require.NotNil(t, res.TehsilID)
	assert.Nil(t, res.VillageID)
	assert.Empty(t, res.ViewerURL)

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, model.MatchFailed, res.Outcomes[2].Status)
}

func TestResolve_ParentConstrainsChildren(t *testing.T) {
	r := NewResolver(&fakeMaster{})

	// Nemalo exists, but only under Cuttack/Salipur.
	res, err := r.Resolve(context.Background(), Input{
		District: "Khordha",
		Tehsil:   "Bhubaneswar",
		Village:  "Nemalo",
	})
	require.NoError(t, err)
	assert.False(t, res.FullyResolved())
	assert.Equal(t, model.MatchFailed, res.Outcomes[2].Status)
}

func TestResolve_StrategyOrderDominatesRowOrder(t *testing.T) {
	// A later row matching an earlier strategy beats an earlier row matching a
	// later strategy.
	rows := []nameRow{
		{id: 1, native: "Target", english: "Other"},
		{id: 2, native: "x", english: "Target"},
	}
	row, strategy, ok := matchLevel(rows, "Target", "")
	require.True(t, ok)
	assert.Equal(t, int64(2), row.id)
	assert.Equal(t, StrategyEnglishEnglish, strategy)
}

func TestResolve_FirstRowWinsWithinStrategy(t *testing.T) {
	rows := []nameRow{
		{id: 1, english: "Dup"},
		{id: 2, english: "Dup"},
	}
	row, _, ok := matchLevel(rows, "Dup", "")
	require.True(t, ok)
	assert.Equal(t, int64(1), row.id)
}

func TestResolve_EmptyInputsNeverMatchBlankMasterNames(t *testing.T) {
	rows := []nameRow{{id: 1, native: "", english: ""}}
	_, _, ok := matchLevel(rows, "", "")
	assert.False(t, ok)
}

func TestResolve_MasterErrorPropagates(t *testing.T) {
	r := NewResolver(&fakeMaster{tehsilsErr: eris.New("db down")})

	_, err := r.Resolve(context.Background(), Input{District: "Khordha", Tehsil: "Bhubaneswar"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load tehsils")
}
