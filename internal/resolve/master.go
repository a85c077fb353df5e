package resolve

import "context"

// District is a row of the master districts table.
type District struct {
	ID          int64
	SourceID    string
	NativeName  string
	EnglishName string
}

// Tehsil is a row of the master tahasils table, child of a district.
type Tehsil struct {
	ID          int64
	DistrictID  int64
	SourceID    string
	NativeName  string
	EnglishName string
}

// Village is a row of the master villages table, child of a district+tehsil.
type Village struct {
	ID          int64
	DistrictID  int64
	TehsilID    int64
	SourceID    string
	NativeName  string
	EnglishName string
}

// MasterGeo reads the master geographic dataset. It is read-only from the
// resolver's perspective; implementations must return rows in natural storage
// order, since ties between matching rows are broken by position.
type MasterGeo interface {
	Districts(ctx context.Context) ([]District, error)
	TehsilsByDistrict(ctx context.Context, districtID int64) ([]Tehsil, error)
	VillagesByTehsil(ctx context.Context, districtID, tehsilID int64) ([]Village, error)
}
