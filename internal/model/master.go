package model

// MasterDistrict is one district of the master geographic dataset as carried
// by an import payload, with its subtree. Stores assign internal IDs on
// import; SourceID is the Bhulekh portal code used in viewer URLs.
type MasterDistrict struct {
	SourceID    string         `json:"source_id" yaml:"source_id"`
	NativeName  string         `json:"native_name" yaml:"native_name"`
	EnglishName string         `json:"english_name" yaml:"english_name"`
	Tehsils     []MasterTehsil `json:"tehsils" yaml:"tehsils"`
}

// MasterTehsil is one tehsil of an import payload.
type MasterTehsil struct {
	SourceID    string          `json:"source_id" yaml:"source_id"`
	NativeName  string          `json:"native_name" yaml:"native_name"`
	EnglishName string          `json:"english_name" yaml:"english_name"`
	Villages    []MasterVillage `json:"villages" yaml:"villages"`
}

// MasterVillage is one village of an import payload.
type MasterVillage struct {
	SourceID    string `json:"source_id" yaml:"source_id"`
	NativeName  string `json:"native_name" yaml:"native_name"`
	EnglishName string `json:"english_name" yaml:"english_name"`
}

// MasterImportStats reports how many rows an import touched per level.
type MasterImportStats struct {
	Districts int `json:"districts"`
	Tehsils   int `json:"tehsils"`
	Villages  int `json:"villages"`
}
