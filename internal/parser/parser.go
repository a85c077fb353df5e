// Package parser converts Bhulekh RoR (Record of Rights) HTML into a typed
// field bundle. Extraction is deterministic and total: malformed input
// degrades to absent fields, never to an error.
package parser

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
)

// Version identifies the parser revision recorded on FieldExtraction rows.
const Version = "parser-v1"

// plotTableID is the ASP.NET grid holding per-plot rows on the RoR page.
const plotTableID = "GrdViewRoR"

// minPlotCells is the minimum cell count for a usable plot row.
const minPlotCells = 11

// bilingual label pairs as rendered by the Bhulekh page.
type label struct {
	odia    string
	english string
}

var (
	labelDistrict = label{"ଜିଲ୍ଲା", "District"}
	labelTehsil   = label{"ତହସିଲ", "Tahasil"}
	labelVillage  = label{"ମୌଜା", "Mouza"}
	labelKhatiyan = label{"ଖତିୟାନର କ୍ରମିକ ନମ୍ବର", "Khata No"}
)

// metadata fields collected into the free-text special comments block.
var metadataLabels = []label{
	{"ଅନ୍ତିମ ପ୍ରକାଶନ ତାରିଖ", "Final Publication Date"},
	{"ଭଡା ନିର୍ଦ୍ଧାରଣ ତାରିଖ", "Rent Fixation Date"},
	{"ଥାନା ନଂ", "P.S. No"},
	{"ଥାନା", "Police Station"},
	{"ତହସିଲ ନଂ", "Tahasil No"},
	{"ଜମି ରାଜସ୍ୱ", "Land Revenue"},
}

// Parse extracts a field bundle from raw RoR HTML. It never fails: anything
// it cannot locate is marked absent.
func Parse(html string) model.FieldBundle {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		zap.L().Warn("parser: unreadable html", zap.Error(err))
		return model.FieldBundle{}
	}

	var b model.FieldBundle
	b.Location = extractLocation(doc)
	b.Owner, b.Plots = extractPlots(doc)
	b.Metadata = extractSpecialComments(doc)
	return b
}

// extractLocation pulls the four bilingual location fields.
func extractLocation(doc *goquery.Document) model.LocationFields {
	var loc model.LocationFields

	native, english := bilingualField(doc, labelDistrict)
	loc.NativeDistrict, loc.District = native, english

	native, english = bilingualField(doc, labelTehsil)
	loc.NativeTehsil, loc.Tehsil = native, english

	native, english = bilingualField(doc, labelVillage)
	loc.NativeVillage, loc.Village = native, english

	// Khatiyan number is numeric; only the English side carries a value.
	_, loc.KhatiyanNumber = bilingualField(doc, labelKhatiyan)

	return loc
}

// bilingualField finds a <strong>Odia / English</strong> label cell and reads
// the sibling td, formatted "native value / english value". A single value is
// taken as English-only.
func bilingualField(doc *goquery.Document, l label) (native, english model.Field) {
	doc.Find("strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		if !strings.Contains(text, l.odia) && !strings.Contains(text, l.english) {
			return true
		}
		td := s.Closest("td")
		if td.Length() == 0 {
			return true
		}
		valueTD := td.NextFiltered("td")
		if valueTD.Length() == 0 {
			return true
		}

		value := cleanText(valueTD.Text())
		value = strings.TrimSpace(strings.TrimPrefix(value, ":"))
		if value == "" {
			return false
		}

		parts := strings.SplitN(value, "/", 2)
		if len(parts) == 2 {
			native = fieldOrAbsent(parts[0])
			english = fieldOrAbsent(parts[1])
		} else {
			english = fieldOrAbsent(parts[0])
		}
		return false
	})
	return native, english
}

// extractPlots walks the plot grid and derives owner and plot field groups.
func extractPlots(doc *goquery.Document) (model.OwnerFields, model.PlotFields) {
	var owner model.OwnerFields
	var plots model.PlotFields

	table := doc.Find("table#" + plotTableID)
	if table.Length() == 0 {
		zap.L().Debug("parser: plot table not found")
		return owner, plots
	}

	var (
		ownerOrder []string
		ownerSeen  = map[string]bool{}
		landTypes  = map[string]bool{}
		firstDad   string
		firstCaste string
		total      = decimal.Zero
	)

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := row.Find("td")
		if cells.Length() < minPlotCells {
			return
		}

		cell := func(idx int) string { return cleanText(cells.Eq(idx).Text()) }

		p := model.Plot{
			Number:   cell(1),
			LandType: cell(2),
			PlotType: cell(3),
			Owner:    cell(8),
			Father:   cell(9),
			Caste:    cell(10),
		}

		areaStr := normalizeDigits(cell(4))
		area, err := decimal.NewFromString(areaStr)
		if err != nil {
			zap.L().Warn("parser: unparseable plot area", zap.String("area", areaStr))
			area = decimal.Zero
		}
		p.Area = area
		total = total.Add(area)

		if cells.Length() > 13 {
			if note := cell(13); note != "" && !strings.EqualFold(note, "not found") {
				p.Notes = note
			}
		}

		plots.Plots = append(plots.Plots, p)

		if p.Owner != "" && !ownerSeen[p.Owner] {
			ownerSeen[p.Owner] = true
			ownerOrder = append(ownerOrder, p.Owner)
		}
		if p.Father != "" && firstDad == "" {
			firstDad = p.Father
		}
		if p.Caste != "" && firstCaste == "" {
			firstCaste = p.Caste
		}
		if p.LandType != "" {
			landTypes[p.LandType] = true
		}
	})

	if len(plots.Plots) == 0 {
		return owner, plots
	}

	numbers := make([]string, 0, len(plots.Plots))
	for _, p := range plots.Plots {
		numbers = append(numbers, p.Number)
	}
	plots.PlotNumbers = model.FieldOf(strings.Join(numbers, ", "))
	plots.TotalArea = &total

	if len(landTypes) > 0 {
		types := make([]string, 0, len(landTypes))
		for t := range landTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		plots.LandType = model.FieldOf(strings.Join(types, " / "))
	}

	sort.Strings(ownerOrder)
	owner.OwnerName = model.FieldOf(ownerOrder[0])
	if len(ownerOrder) > 1 {
		owner.CoOwners = ownerOrder[1:]
	}
	owner.FatherName = fieldOrAbsent(firstDad)
	owner.Caste = fieldOrAbsent(firstCaste)

	return owner, plots
}

// extractSpecialComments collects dates, administrative codes and per-plot
// notes into a single free-text block.
func extractSpecialComments(doc *goquery.Document) model.Field {
	var comments []string
	seen := map[string]bool{}

	for _, l := range metadataLabels {
		doc.Find("strong").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := cleanText(s.Text())
			if !strings.Contains(text, l.odia) && !strings.Contains(text, l.english) {
				return true
			}
			parent := s.Parent()
			if parent.Length() == 0 {
				return true
			}
			full := cleanText(parent.Text())
			idx := strings.Index(full, ":")
			if idx < 0 || idx == len(full)-1 {
				return true
			}
			value := strings.TrimSpace(full[idx+1:])
			if value == "" || seen[l.english] {
				return false
			}
			seen[l.english] = true
			comments = append(comments, l.english+": "+value)
			return false
		})
	}

	if notes := plotNotes(doc); len(notes) > 0 {
		comments = append(comments, "Plot Notes: "+strings.Join(notes, "; "))
	}

	if len(comments) == 0 {
		return model.AbsentField
	}
	return model.FieldOf(strings.Join(comments, "\n"))
}

// plotNotes gathers note-column values keyed to their plot numbers.
func plotNotes(doc *goquery.Document) []string {
	var notes []string
	doc.Find("table#" + plotTableID + " tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() <= 13 {
			return
		}
		note := cleanText(cells.Eq(13).Text())
		if note == "" || strings.EqualFold(note, "not found") {
			return
		}
		notes = append(notes, "Plot "+cleanText(cells.Eq(1).Text())+": "+note)
	})
	return notes
}

// cleanText collapses the source site's inconsistent whitespace into single
// spaces. strings.Fields splits on all unicode whitespace, which covers the
// page's stray non-breaking spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fieldOrAbsent(s string) model.Field {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.AbsentField
	}
	return model.FieldOf(s)
}
