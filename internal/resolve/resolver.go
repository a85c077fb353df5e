// Package resolve matches free-text district/tehsil/village names against the
// master geographic dataset, strictly top-down: each level's candidate set is
// constrained to children of the already-resolved parent, and a failure at
// any level halts resolution for the record.
package resolve

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// Matching strategies, tried in this strict order at every level.
const (
	StrategyEnglishEnglish = 1 // English input vs master English name
	StrategyNativeEnglish  = 2 // native input vs master English name
	StrategyEnglishNative  = 3 // English input vs master native name
	StrategyNativeNative   = 4 // native input vs master native name
)

// Input is the free-text location material taken from an extraction record.
type Input struct {
	District       string
	NativeDistrict string
	Tehsil         string
	NativeTehsil   string
	Village        string
	NativeVillage  string
	KhatiyanNumber string
}

// LevelOutcome reports one attempted level of the hierarchy. Levels below a
// failed one are never attempted and produce no outcome.
type LevelOutcome struct {
	Level        model.LocationType
	NativeInput  string
	EnglishInput string
	Status       model.MatchStatus
	MatchedID    *int64
	Strategy     int // 1-4 on success, 0 on failure
}

// Resolution is the result of a hierarchical resolution run. IDs are set only
// for levels that resolved; ViewerURL is set only on full three-level success.
type Resolution struct {
	DistrictID       *int64
	TehsilID         *int64
	VillageID        *int64
	DistrictSourceID string
	TehsilSourceID   string
	VillageSourceID  string
	ViewerURL        string
	Outcomes         []LevelOutcome
}

// FullyResolved reports whether all three levels matched.
func (r *Resolution) FullyResolved() bool {
	return r.DistrictID != nil && r.TehsilID != nil && r.VillageID != nil
}

// Resolver performs hierarchical location matching against a master dataset.
type Resolver struct {
	master MasterGeo
}

// NewResolver creates a Resolver over the given master dataset.
func NewResolver(master MasterGeo) *Resolver {
	return &Resolver{master: master}
}

// Resolve runs district → tehsil → village matching. Master-data read errors
// propagate; a no-match is not an error, it is a failed outcome with the
// remaining levels skipped.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Resolution, error) {
	res := &Resolution{}
	log := zap.L().With(zap.String("district", in.District), zap.String("tehsil", in.Tehsil), zap.String("village", in.Village))

	districts, err := r.master.Districts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load districts")
	}
	dRow, dStrategy, dOK := matchLevel(districtRows(districts), in.District, in.NativeDistrict)
	res.Outcomes = append(res.Outcomes, outcome(model.LocationDistrict, in.NativeDistrict, in.District, dRow, dStrategy, dOK))
	if !dOK {
		log.Info("resolve: district unmatched, halting")
		return res, nil
	}
	res.DistrictID = &dRow.id
	res.DistrictSourceID = dRow.sourceID

	tehsils, err := r.master.TehsilsByDistrict(ctx, dRow.id)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load tehsils")
	}
	tRow, tStrategy, tOK := matchLevel(tehsilRows(tehsils), in.Tehsil, in.NativeTehsil)
	res.Outcomes = append(res.Outcomes, outcome(model.LocationTehsil, in.NativeTehsil, in.Tehsil, tRow, tStrategy, tOK))
	if !tOK {
		log.Info("resolve: tehsil unmatched, halting")
		return res, nil
	}
	res.TehsilID = &tRow.id
	res.TehsilSourceID = tRow.sourceID

	villages, err := r.master.VillagesByTehsil(ctx, dRow.id, tRow.id)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load villages")
	}
	vRow, vStrategy, vOK := matchLevel(villageRows(villages), in.Village, in.NativeVillage)
	res.Outcomes = append(res.Outcomes, outcome(model.LocationVillage, in.NativeVillage, in.Village, vRow, vStrategy, vOK))
	if !vOK {
		log.Info("resolve: village unmatched")
		return res, nil
	}
	res.VillageID = &vRow.id
	res.VillageSourceID = vRow.sourceID

	res.ViewerURL = ViewerURL(res.DistrictSourceID, res.TehsilSourceID, res.VillageSourceID, strings.TrimSpace(in.KhatiyanNumber))
	log.Info("resolve: fully resolved",
		zap.Int64("district_id", dRow.id),
		zap.Int64("tehsil_id", tRow.id),
		zap.Int64("village_id", vRow.id),
	)
	return res, nil
}

// nameRow is the level-independent view of a master row.
type nameRow struct {
	id       int64
	sourceID string
	native   string
	english  string
}

func districtRows(ds []District) []nameRow {
	rows := make([]nameRow, len(ds))
	for i, d := range ds {
		rows[i] = nameRow{d.ID, d.SourceID, d.NativeName, d.EnglishName}
	}
	return rows
}

func tehsilRows(ts []Tehsil) []nameRow {
	rows := make([]nameRow, len(ts))
	for i, t := range ts {
		rows[i] = nameRow{t.ID, t.SourceID, t.NativeName, t.EnglishName}
	}
	return rows
}

func villageRows(vs []Village) []nameRow {
	rows := make([]nameRow, len(vs))
	for i, v := range vs {
		rows[i] = nameRow{v.ID, v.SourceID, v.NativeName, v.EnglishName}
	}
	return rows
}

// matchLevel tries the four strategies in order over the candidate rows.
// Strategy order dominates row order; within one strategy the first row in
// natural storage order wins (known non-determinism when the master data
// itself is ambiguous).
func matchLevel(rows []nameRow, english, native string) (nameRow, int, bool) {
	english = strings.TrimSpace(english)
	native = strings.TrimSpace(native)

	type comparison struct {
		strategy int
		input    string
		master   func(nameRow) string
	}
	comparisons := []comparison{
		{StrategyEnglishEnglish, english, func(r nameRow) string { return r.english }},
		{StrategyNativeEnglish, native, func(r nameRow) string { return r.english }},
		{StrategyEnglishNative, english, func(r nameRow) string { return r.native }},
		{StrategyNativeNative, native, func(r nameRow) string { return r.native }},
	}

	for _, c := range comparisons {
		if c.input == "" {
			continue
		}
		for _, row := range rows {
			if strings.EqualFold(c.input, strings.TrimSpace(c.master(row))) {
				return row, c.strategy, true
			}
		}
	}
	return nameRow{}, 0, false
}

func outcome(level model.LocationType, native, english string, row nameRow, strategy int, ok bool) LevelOutcome {
	o := LevelOutcome{
		Level:        level,
		NativeInput:  strings.TrimSpace(native),
		EnglishInput: strings.TrimSpace(english),
		Status:       model.MatchFailed,
	}
	if ok {
		id := row.id
		o.Status = model.MatchSuccess
		o.MatchedID = &id
		o.Strategy = strategy
	}
	return o
}
