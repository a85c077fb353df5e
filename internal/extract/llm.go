package extract

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/prompts"
	"github.com/bhulekh-seva/ror-cli/pkg/anthropic"
)

// extractionPromptName is the prompt-service key for the extraction template.
const extractionPromptName = "ror_extraction"

// defaultExtractionPrompt is the built-in template used when neither the
// prompt API nor the local fallback file is available. %s receives the page
// content.
const defaultExtractionPrompt = `You are extracting structured data from an Odisha Bhulekh Record of Rights (RoR) page.

Page content:
%s

Return a single JSON object with exactly these keys (use null for anything not present on the page):
{"district": string, "native_district": string, "tehsil": string, "native_tehsil": string,
 "village": string, "native_village": string, "khatiyan_number": string,
 "owner_name": string, "father_name": string, "caste": string, "other_owners": [string],
 "plots": [{"plot_number": string, "area": number, "land_type": string, "plot_type": string, "notes": string}],
 "special_comments": string}

Areas are in hectares. Preserve Odia script values verbatim in the native_* fields.`

// maxPromptContent caps how much page content is sent to the model.
const maxPromptContent = 60000

// AnthropicExtractor implements LLMExtractor on top of the Anthropic client.
type AnthropicExtractor struct {
	client        anthropic.Client
	prompts       *prompts.Service
	model         string
	promptVersion string
}

// NewAnthropicExtractor creates an LLM extractor using the given model.
// promptVersion is recorded on FieldExtraction rows so a changed prompt
// produces a new extraction rather than overwriting an old one.
func NewAnthropicExtractor(client anthropic.Client, ps *prompts.Service, modelID, promptVersion string) *AnthropicExtractor {
	return &AnthropicExtractor{
		client:        client,
		prompts:       ps,
		model:         modelID,
		promptVersion: promptVersion,
	}
}

func (e *AnthropicExtractor) Version() string { return e.promptVersion }

// Extract sends the page to the model and decodes the JSON reply into a
// field bundle. Prefers the plain-text rendering when available; falls back
// to raw HTML.
func (e *AnthropicExtractor) Extract(ctx context.Context, html, text string) (model.FieldBundle, error) {
	content := text
	if strings.TrimSpace(content) == "" {
		content = html
	}
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}

	template, err := e.prompts.Get(ctx, extractionPromptName, defaultExtractionPrompt)
	if err != nil {
		return model.FieldBundle{}, eris.Wrap(err, "llm extract: resolve prompt")
	}

	prompt := strings.Replace(template, "%s", content, 1)

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 4096,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return model.FieldBundle{}, eris.Wrap(err, "llm extract: create message")
	}

	bundle, err := decodeLLMBundle(resp.Text())
	if err != nil {
		return model.FieldBundle{}, err
	}

	zap.L().Info("llm extract: completed",
		zap.String("model", e.model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return bundle, nil
}

// llmBundle mirrors the JSON shape the extraction prompt requests.
type llmBundle struct {
	District        *string   `json:"district"`
	NativeDistrict  *string   `json:"native_district"`
	Tehsil          *string   `json:"tehsil"`
	NativeTehsil    *string   `json:"native_tehsil"`
	Village         *string   `json:"village"`
	NativeVillage   *string   `json:"native_village"`
	KhatiyanNumber  *string   `json:"khatiyan_number"`
	OwnerName       *string   `json:"owner_name"`
	FatherName      *string   `json:"father_name"`
	Caste           *string   `json:"caste"`
	OtherOwners     []string  `json:"other_owners"`
	Plots           []llmPlot `json:"plots"`
	SpecialComments *string   `json:"special_comments"`
}

type llmPlot struct {
	PlotNumber string      `json:"plot_number"`
	Area       json.Number `json:"area"`
	LandType   string      `json:"land_type"`
	PlotType   string      `json:"plot_type"`
	Notes      string      `json:"notes"`
}

// decodeLLMBundle parses the model reply (tolerating code fences and leading
// prose) into a FieldBundle. A malformed reply is an error, never a partial
// bundle.
func decodeLLMBundle(reply string) (model.FieldBundle, error) {
	var raw llmBundle
	if err := json.Unmarshal([]byte(cleanJSON(reply)), &raw); err != nil {
		return model.FieldBundle{}, eris.Wrap(err, "llm extract: decode reply")
	}

	var b model.FieldBundle
	b.Location = model.LocationFields{
		District:       fieldFromPtr(raw.District),
		NativeDistrict: fieldFromPtr(raw.NativeDistrict),
		Tehsil:         fieldFromPtr(raw.Tehsil),
		NativeTehsil:   fieldFromPtr(raw.NativeTehsil),
		Village:        fieldFromPtr(raw.Village),
		NativeVillage:  fieldFromPtr(raw.NativeVillage),
		KhatiyanNumber: fieldFromPtr(raw.KhatiyanNumber),
	}
	b.Owner = model.OwnerFields{
		OwnerName:  fieldFromPtr(raw.OwnerName),
		FatherName: fieldFromPtr(raw.FatherName),
		Caste:      fieldFromPtr(raw.Caste),
		CoOwners:   raw.OtherOwners,
	}
	b.Metadata = fieldFromPtr(raw.SpecialComments)

	if len(raw.Plots) > 0 {
		total := decimal.Zero
		numbers := make([]string, 0, len(raw.Plots))
		landTypes := map[string]bool{}
		for _, p := range raw.Plots {
			area, err := decimal.NewFromString(p.Area.String())
			if err != nil {
				area = decimal.Zero
			}
			total = total.Add(area)
			numbers = append(numbers, p.PlotNumber)
			if p.LandType != "" {
				landTypes[p.LandType] = true
			}
			b.Plots.Plots = append(b.Plots.Plots, model.Plot{
				Number:   p.PlotNumber,
				Area:     area,
				LandType: p.LandType,
				PlotType: p.PlotType,
				Notes:    p.Notes,
			})
		}
		b.Plots.PlotNumbers = model.FieldOf(strings.Join(numbers, ", "))
		b.Plots.TotalArea = &total
		if len(landTypes) > 0 {
			types := make([]string, 0, len(landTypes))
			for t := range landTypes {
				types = append(types, t)
			}
			sort.Strings(types)
			b.Plots.LandType = model.FieldOf(strings.Join(types, " / "))
		}
	}

	return b, nil
}

func fieldFromPtr(s *string) model.Field {
	if s == nil || strings.TrimSpace(*s) == "" {
		return model.AbsentField
	}
	return model.FieldOf(strings.TrimSpace(*s))
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
