package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhulekh-seva/ror-cli/internal/audit"
	"github.com/bhulekh-seva/ror-cli/internal/extract"
	"github.com/bhulekh-seva/ror-cli/internal/model"
	"github.com/bhulekh-seva/ror-cli/internal/pipeline"
	"github.com/bhulekh-seva/ror-cli/internal/prompts"
	"github.com/bhulekh-seva/ror-cli/internal/resolve"
	"github.com/bhulekh-seva/ror-cli/internal/store"
	"github.com/bhulekh-seva/ror-cli/pkg/anthropic"
)

const viewerURL = "https://bhulekh.ori.nic.in/SRoRFront_Uni.aspx?district=384&tahasil=21&village=055&khatiyan=1245"

const rorPage = `
<html><body>
<table>
  <tr><td><strong>ଜିଲ୍ଲା / District</strong></td><td>: ଖୋର୍ଦ୍ଧା / Khordha</td></tr>
  <tr><td><strong>ତହସିଲ / Tahasil</strong></td><td>: ଭୁବନେଶ୍ୱର / Bhubaneswar</td></tr>
  <tr><td><strong>ମୌଜା / Mouza</strong></td><td>: ବଡଗଡ / Badagada</td></tr>
  <tr><td><strong>ଖତିୟାନର କ୍ରମିକ ନମ୍ବର / Khata No</strong></td><td>: 1245</td></tr>
</table>
<table id="GrdViewRoR">
  <tr><td>Sl</td><td>Plot</td><td>Kisam</td><td>Type</td><td>Area</td><td></td><td></td><td></td><td>Owner</td><td>Father</td><td>Caste</td></tr>
  <tr><td>1</td><td>1525</td><td>Dhana-II</td><td>Agricultural</td><td>0.10</td><td></td><td></td><td></td><td>Anita Sahoo</td><td>Raghunath Sahoo</td><td>General</td></tr>
</table>
</body></html>`

const unmatchedVillagePage = `
<html><body>
<table>
  <tr><td><strong>ଜିଲ୍ଲା / District</strong></td><td>: ଖୋର୍ଦ୍ଧା / Khordha</td></tr>
  <tr><td><strong>ତହସିଲ / Tahasil</strong></td><td>: ଭୁବନେଶ୍ୱର / Bhubaneswar</td></tr>
  <tr><td><strong>ମୌଜା / Mouza</strong></td><td>: ତାଳଗଡ / Talagarh</td></tr>
  <tr><td><strong>ଖତିୟାନର କ୍ରମିକ ନମ୍ବର / Khata No</strong></td><td>: 77</td></tr>
</table>
<table id="GrdViewRoR">
  <tr><td>Sl</td><td>Plot</td><td>Kisam</td><td>Type</td><td>Area</td><td></td><td></td><td></td><td>Owner</td><td>Father</td><td>Caste</td></tr>
  <tr><td>1</td><td>9</td><td>Biali</td><td>Agricultural</td><td>0.20</td><td></td><td></td><td></td><td>Hari Das</td><td>Gopal Das</td><td>General</td></tr>
</table>
</body></html>`

type stubClient struct {
	reply string
	calls int
}

func (c *stubClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.calls++
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.reply}},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	_, err = st.ImportMaster(ctx, []model.MasterDistrict{{
		SourceID: "384", NativeName: "ଖୋର୍ଦ୍ଧା", EnglishName: "Khordha",
		Tehsils: []model.MasterTehsil{{
			SourceID: "21", NativeName: "ଭୁବନେଶ୍ୱର", EnglishName: "Bhubaneswar",
			Villages: []model.MasterVillage{{SourceID: "055", NativeName: "ବଡଗଡ", EnglishName: "Badagada"}},
		}},
	}})
	require.NoError(t, err)

	orch := extract.NewOrchestrator(nil, 0)
	proc := pipeline.NewProcessor(st, orch, resolve.NewResolver(st), audit.NewAuditor(st))
	ps := prompts.NewService("", time.Hour, "")
	sum := pipeline.NewSummarizer(st, &stubClient{reply: "A short summary."}, ps, "claude-sonnet-4-5-20250929", "summary-v1", time.Hour)

	srv := httptest.NewServer(New(proc, sum, audit.NewAuditor(st), st).Router())
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeJSON(t, resp)["status"])
}

func TestLoadContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL, "html": rorPage})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeJSON(t, resp)
	assert.NotEmpty(t, body["record_id"])
	assert.Equal(t, true, body["created"])
	assert.Equal(t, true, body["resolved"])
	assert.Equal(t, "html_parser", body["method"])
	assert.Equal(t, viewerURL, body["viewer_url"])

	// Resubmission returns the stored record.
	resp = postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL, "html": rorPage})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	again := decodeJSON(t, resp)
	assert.Equal(t, false, again["created"])
	assert.Equal(t, body["record_id"], again["record_id"])
}

func TestLoadContent_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/load-content", map[string]string{"html": rorPage})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestLoadContent_DisallowedURL(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, u := range []string{
		"https://example.com/SRoRFront_Uni.aspx",
		"https://bhulekh.ori.nic.in/other.aspx",
		"not a url at all ://",
	} {
		resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": u, "html": rorPage})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "url %s", u)
		resp.Body.Close()
	}
}

func TestLoadContent_ExtractionFailure(t *testing.T) {
	srv, _ := newTestServer(t)

	// An unrecognized layout escalates to the LLM, which is not configured.
	resp := postJSON(t, srv.URL+"/load-content", map[string]string{
		"url": viewerURL, "html": "<p>not a ror page</p>",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestChat(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL, "html": rorPage})
	recordID := decodeJSON(t, resp)["record_id"].(string)

	resp = postJSON(t, srv.URL+"/chat", map[string]string{"record_id": recordID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	assert.Equal(t, "A short summary.", body["summary"])
	assert.Equal(t, false, body["cached"])

	resp = postJSON(t, srv.URL+"/chat", map[string]string{"record_id": recordID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeJSON(t, resp)["cached"])
}

func TestChat_RecordNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/chat", map[string]string{"record_id": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFeedback(t *testing.T) {
	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL, "html": rorPage})
	recordID := decodeJSON(t, resp)["record_id"].(string)

	extractions, err := st.ListExtractions(context.Background(), recordID)
	require.NoError(t, err)
	require.Len(t, extractions, 1)
	feID := extractions[0].ID

	resp = postJSON(t, srv.URL+"/extractions/"+feID+"/feedback", map[string]string{"feedback": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/extractions/"+feID+"/feedback", map[string]string{"feedback": "correct", "comment": "verified"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	updated, err := st.ListExtractions(context.Background(), recordID)
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackCorrect, updated[0].Feedback)
	assert.Equal(t, "verified", updated[0].FeedbackComment)

	resp = postJSON(t, srv.URL+"/extractions/missing/feedback", map[string]string{"feedback": "wrong"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAuditReviewFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/load-content", map[string]string{"url": viewerURL, "html": unmatchedVillagePage})
	body := decodeJSON(t, resp)
	assert.Equal(t, false, body["resolved"])

	resp, err := http.Get(srv.URL + "/audits")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	audits := decodeJSON(t, resp)
	assert.Equal(t, float64(1), audits["count"])
	rows := audits["audits"].([]any)
	auditID := rows[0].(map[string]any)["id"].(string)

	resp = postJSON(t, srv.URL+"/audits/"+auditID+"/resolve", map[string]string{"notes": "no reviewer"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/audits/"+auditID+"/resolve", map[string]string{
		"resolved_by": "reviewer@example.com", "notes": "mapped by hand",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/audits")
	require.NoError(t, err)
	assert.Equal(t, float64(0), decodeJSON(t, resp)["count"])

	resp = postJSON(t, srv.URL+"/audits/missing/resolve", map[string]string{"resolved_by": "reviewer"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestLoadContent_CRoRPageGoesToLLM(t *testing.T) {
	srv, _ := newTestServer(t)

	// The HTML would parse cleanly, but CRoR pages bypass the parser and the
	// test server has no LLM extractor configured.
	resp := postJSON(t, srv.URL+"/load-content", map[string]string{
		"url":  "https://bhulekh.ori.nic.in/CRoRFront_Uni.aspx?district=384",
		"html": rorPage,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestAllowedSourceURL(t *testing.T) {
	assert.True(t, allowedSourceURL("https://bhulekh.ori.nic.in/SRoRFront_Uni.aspx?district=384"))
	assert.True(t, allowedSourceURL("https://BHULEKH.ORI.NIC.IN/CRoRFront_Uni.aspx"))
	assert.False(t, allowedSourceURL("https://bhulekh.ori.nic.in/login.aspx"))
	assert.False(t, allowedSourceURL("https://example.com/SRoRFront_Uni.aspx"))
	assert.False(t, allowedSourceURL(""))
}

func TestLLMOnlySourceURL(t *testing.T) {
	assert.True(t, llmOnlySourceURL("https://bhulekh.ori.nic.in/CRoRFront_Uni.aspx?district=384"))
	assert.False(t, llmOnlySourceURL(viewerURL))
	assert.False(t, llmOnlySourceURL(""))
}
