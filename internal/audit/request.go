package audit

import (
	"net/http"
	"strings"
)

// LocationHeader carries an optional client-reported location.
const LocationHeader = "X-Client-Location"

// WithRequest fills the client metadata of in from the request. RemoteAddr is
// expected to have been rewritten by a real-IP middleware upstream.
func (in Input) WithRequest(r *http.Request) Input {
	if r == nil {
		return in
	}
	in.IPAddress = normalizeIP(r.RemoteAddr)
	in.UserAgent = r.UserAgent()
	in.Location = strings.TrimSpace(r.Header.Get(LocationHeader))
	return in
}
