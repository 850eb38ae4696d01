// Package regclient talks to the PlatformIO registry API to verify that the
// packages a platform descriptor pins actually exist there.
package regclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/espforge/espforge/internal/board"
	"github.com/espforge/espforge/internal/ctxlog"
)

// DefaultBaseURL is the public PlatformIO registry API.
const DefaultBaseURL = "https://api.registry.platformio.org"

// defaultOwner is assumed for packages that do not name one.
const defaultOwner = "platformio"

// Client queries the registry. The zero value is not usable; construct with
// NewClient so the HTTP client carries a timeout.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a registry client. An empty baseURL selects the public
// registry; httpClient may be nil for a default with a 30s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Result is the availability verdict for one pinned package.
type Result struct {
	Name     string
	Owner    string
	Type     string
	Required string

	// Found reports whether the registry knows the package at all.
	Found bool

	// Latest is the newest published version when found.
	Latest string

	// Pinned reports whether the exact required version is published.
	// Range requirements (^, ~, >=) cannot be resolved here and report
	// true whenever the package exists.
	Pinned bool
}

// packageInfo is the subset of the registry's package document we read.
type packageInfo struct {
	Version struct {
		Name string `json:"name"`
	} `json:"version"`
	Versions []struct {
		Name string `json:"name"`
	} `json:"versions"`
}

// Check verifies every package the platform descriptor pins. Network
// failures abort; a missing package is a Result, not an error.
func (c *Client) Check(ctx context.Context, p *board.Platform) ([]Result, error) {
	logger := ctxlog.FromContext(ctx)

	names := p.PackageNames()
	results := make([]Result, 0, len(names))
	for _, name := range names {
		pkg := p.Packages[name]
		owner := pkg.Owner
		if owner == "" {
			owner = defaultOwner
		}

		result := Result{Name: name, Owner: owner, Type: pkg.Type, Required: pkg.Version}

		info, found, err := c.fetchPackage(ctx, owner, pkg.Type, name)
		if err != nil {
			return nil, fmt.Errorf("registry check for %s failed: %w", name, err)
		}
		if found {
			result.Found = true
			result.Latest = info.Version.Name
			result.Pinned = versionSatisfied(pkg.Version, info)
		}

		logger.Debug("Checked registry package.", "package", name, "found", result.Found, "latest", result.Latest)
		results = append(results, result)
	}
	return results, nil
}

// fetchPackage requests one package document. A 404 means the package does
// not exist; any other non-200 status is an error.
func (c *Client) fetchPackage(ctx context.Context, owner, pkgType, name string) (*packageInfo, bool, error) {
	endpoint := fmt.Sprintf("%s/v3/packages/%s/%s/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(pkgType), url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("registry returned status %s", resp.Status)
	}

	var info packageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, false, fmt.Errorf("failed to decode registry response: %w", err)
	}
	return &info, true, nil
}

// versionSatisfied reports whether an exact version requirement is published.
// Requirements with range operators are accepted as long as the package
// exists; resolving them would duplicate the registry's own solver.
func versionSatisfied(required string, info *packageInfo) bool {
	if required == "" || strings.ContainsAny(required[:1], "^~><=*") {
		return true
	}
	for _, v := range info.Versions {
		if v.Name == required {
			return true
		}
	}
	return info.Version.Name == required
}

// Missing filters a check's results down to the packages that are absent or
// not published at their pinned version, sorted by name.
func Missing(results []Result) []Result {
	var missing []Result
	for _, r := range results {
		if !r.Found || !r.Pinned {
			missing = append(missing, r)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })
	return missing
}
