// Package version reports the pagegenie build. Values are injected with
// -ldflags "-X github.com/Aman-CERP/pagegenie/pkg/version.Version=v1.2.3".
package version

import (
	"fmt"
	"net/http"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	// Date is RFC 3339.
	Date = "unknown"
)

// Info is the build description printed by `pagegenie version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
}

// GetInfo collects the build variables and runtime platform.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		UserAgent: UserAgent(),
	}
}

// String is the one-line form, e.g.
// "pagegenie dev (commit unknown, built unknown, go1.25.5 linux/amd64)".
func (i Info) String() string {
	return fmt.Sprintf("pagegenie %s (commit %s, built %s, %s %s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}

// UserAgent identifies pagegenie to the embedding, generation and rerank
// APIs.
func UserAgent() string {
	return fmt.Sprintf("pagegenie/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Transport stamps UserAgent on every request sent through base
// (http.DefaultTransport when nil).
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return userAgentTransport{base: base}
}

type userAgentTransport struct {
	base http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent())
	return t.base.RoundTrip(req)
}

// Client returns a copy of c (or a zero client) whose transport stamps
// UserAgent.
func Client(c *http.Client) *http.Client {
	out := &http.Client{}
	if c != nil {
		*out = *c
	}
	out.Transport = Transport(out.Transport)
	return out
}
