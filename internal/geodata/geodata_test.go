package geodata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

const masterYAML = `
districts:
  - source_id: "384"
    native_name: "ଖୋର୍ଦ୍ଧା"
    english_name: "Khordha"
    tehsils:
      - source_id: "21"
        native_name: "ଭୁବନେଶ୍ୱର"
        english_name: "Bhubaneswar"
        villages:
          - source_id: "055"
            native_name: "ବଡଗଡ"
            english_name: "Badagada"
          - source_id: "056"
            native_name: "ଗଡକଣ"
            english_name: "Gadakana"
  - source_id: "372"
    english_name: "Cuttack"
    tehsils:
      - source_id: "05"
        english_name: "Salipur"
        villages:
          - source_id: "012"
            english_name: "Nemalo"
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	districts, err := Load(writeTemp(t, "master.yaml", masterYAML))
	require.NoError(t, err)

	require.Len(t, districts, 2)
	assert.Equal(t, "384", districts[0].SourceID)
	assert.Equal(t, "Khordha", districts[0].EnglishName)
	assert.Equal(t, "ଖୋର୍ଦ୍ଧା", districts[0].NativeName)

	require.Len(t, districts[0].Tehsils, 1)
	assert.Equal(t, "Bhubaneswar", districts[0].Tehsils[0].EnglishName)

	villages := districts[0].Tehsils[0].Villages
	require.Len(t, villages, 2)
	assert.Equal(t, "Badagada", villages[0].EnglishName)
	assert.Equal(t, "Gadakana", villages[1].EnglishName)
}

func TestLoadYAML_Empty(t *testing.T) {
	_, err := Load(writeTemp(t, "empty.yml", "districts: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no districts")
}

func TestLoadYAML_Malformed(t *testing.T) {
	_, err := Load(writeTemp(t, "bad.yaml", "districts: [unclosed"))
	require.Error(t, err)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load("master.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func writeMasterXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("master")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "master.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadXLSX(t *testing.T) {
	header := []string{"District Code", "District (Odia)", "District", "Tahasil Code", "Tahasil (Odia)", "Tahasil", "Village Code", "Village (Odia)", "Village"}
	path := writeMasterXLSX(t, [][]string{
		header,
		{"384", "ଖୋର୍ଦ୍ଧା", "Khordha", "21", "ଭୁବନେଶ୍ୱର", "Bhubaneswar", "055", "ବଡଗଡ", "Badagada"},
		{"384", "ଖୋର୍ଦ୍ଧା", "Khordha", "21", "ଭୁବନେଶ୍ୱର", "Bhubaneswar", "056", "ଗଡକଣ", "Gadakana"},
		{"372", "କଟକ", "Cuttack", "05", "ସାଲିପୁର", "Salipur", "012", "ନେମାଳ", "Nemalo"},
		// Short and code-less rows are skipped.
		{"384", "ଖୋର୍ଦ୍ଧା", "Khordha"},
		{"", "", "", "", "", "", "057", "", "Orphan"},
	})

	districts, err := Load(path)
	require.NoError(t, err)

	require.Len(t, districts, 2)
	assert.Equal(t, "Khordha", districts[0].EnglishName)
	require.Len(t, districts[0].Tehsils, 1)

	villages := districts[0].Tehsils[0].Villages
	require.Len(t, villages, 2)
	assert.Equal(t, "055", villages[0].SourceID)
	assert.Equal(t, "056", villages[1].SourceID)

	assert.Equal(t, "Cuttack", districts[1].EnglishName)
	require.Len(t, districts[1].Tehsils, 1)
	assert.Len(t, districts[1].Tehsils[0].Villages, 1)
}

func TestLoadXLSX_HeaderOnly(t *testing.T) {
	path := writeMasterXLSX(t, [][]string{
		{"District Code", "District (Odia)", "District", "Tahasil Code", "Tahasil (Odia)", "Tahasil", "Village Code", "Village (Odia)", "Village"},
	})
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}
