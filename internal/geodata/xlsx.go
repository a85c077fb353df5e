package geodata

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// Flat sheet layout: one row per village with its full ancestry. The first
// row is a header.
const (
	colDistrictCode = iota
	colDistrictNative
	colDistrictEnglish
	colTahasilCode
	colTahasilNative
	colTahasilEnglish
	colVillageCode
	colVillageNative
	colVillageEnglish
	xlsxColumns
)

// LoadXLSX reads a flat master dataset sheet and groups it into the
// district → tahasil → village hierarchy. Row order within each parent is
// preserved, since the resolver breaks ties by position.
func LoadXLSX(path string) ([]model.MasterDistrict, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("geodata: no sheets in %s", path)
	}

	var (
		districts   []model.MasterDistrict
		districtIdx = map[string]int{}
		tahasilIdx  = map[string]int{} // keyed district|tahasil
	)

	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue
		}
		cells := rowToStrings(row)
		if len(cells) < xlsxColumns {
			continue
		}
		if cells[colDistrictCode] == "" || cells[colTahasilCode] == "" || cells[colVillageCode] == "" {
			continue
		}

		di, ok := districtIdx[cells[colDistrictCode]]
		if !ok {
			di = len(districts)
			districtIdx[cells[colDistrictCode]] = di
			districts = append(districts, model.MasterDistrict{
				SourceID:    cells[colDistrictCode],
				NativeName:  cells[colDistrictNative],
				EnglishName: cells[colDistrictEnglish],
			})
		}

		tKey := cells[colDistrictCode] + "|" + cells[colTahasilCode]
		ti, ok := tahasilIdx[tKey]
		if !ok {
			ti = len(districts[di].Tehsils)
			tahasilIdx[tKey] = ti
			districts[di].Tehsils = append(districts[di].Tehsils, model.MasterTehsil{
				SourceID:    cells[colTahasilCode],
				NativeName:  cells[colTahasilNative],
				EnglishName: cells[colTahasilEnglish],
			})
		}

		districts[di].Tehsils[ti].Villages = append(districts[di].Tehsils[ti].Villages, model.MasterVillage{
			SourceID:    cells[colVillageCode],
			NativeName:  cells[colVillageNative],
			EnglishName: cells[colVillageEnglish],
		})
	}

	if len(districts) == 0 {
		return nil, eris.Errorf("geodata: no usable rows in %s", path)
	}
	return districts, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
