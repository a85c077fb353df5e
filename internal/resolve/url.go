package resolve

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// viewerBase is the Bhulekh Odisha RoR viewer endpoint.
const viewerBase = "https://bhulekh.ori.nic.in/SRoRFront_Uni.aspx"

// ViewerURL builds the canonical RoR viewer link from master source codes and
// a khatiyan number.
func ViewerURL(districtCode, tehsilCode, villageCode, khatiyan string) string {
	// url.Values.Encode sorts keys; keep the site's parameter order instead.
	return viewerBase + "?district=" + url.QueryEscape(districtCode) +
		"&tahasil=" + url.QueryEscape(tehsilCode) +
		"&village=" + url.QueryEscape(villageCode) +
		"&khatiyan=" + url.QueryEscape(khatiyan)
}

// ViewerRef is the decomposed form of a viewer URL.
type ViewerRef struct {
	DistrictCode string
	TehsilCode   string
	VillageCode  string
	Khatiyan     string
}

// ParseViewerURL is the inverse of ViewerURL. It accepts any URL on the
// viewer host and path carrying the four query parameters.
func ParseViewerURL(raw string) (*ViewerRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: parse viewer url")
	}
	if !strings.EqualFold(u.Host, "bhulekh.ori.nic.in") {
		return nil, eris.Errorf("resolve: unexpected viewer host %q", u.Host)
	}

	q := u.Query()
	ref := &ViewerRef{
		DistrictCode: q.Get("district"),
		TehsilCode:   q.Get("tahasil"),
		VillageCode:  q.Get("village"),
		Khatiyan:     q.Get("khatiyan"),
	}
	if ref.DistrictCode == "" || ref.TehsilCode == "" || ref.VillageCode == "" || ref.Khatiyan == "" {
		return nil, eris.Errorf("resolve: viewer url missing parameters: %s", raw)
	}
	return ref, nil
}
