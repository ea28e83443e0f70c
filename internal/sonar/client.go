package sonar

import (
	"encoding/json"
	"net/http"
	"strings"

	sonargo "github.com/magicsong/sonargo/sonar"
	"github.com/pkg/errors"

	"github.com/z4ce/sonar2dojo/internal/config"
	"github.com/z4ce/sonar2dojo/internal/logging"
	"github.com/z4ce/sonar2dojo/internal/transport"
)

// API endpoints relative to https://sonarcloud.io/api/
const (
	EndpointProjectsSearch = "projects/search"
	EndpointIssuesSearch   = "issues/search"
)

// ProjectPageSize is the page size used when walking the project registry
const ProjectPageSize = 100

// IssueTypeVulnerability filters issue searches down to vulnerabilities
const IssueTypeVulnerability = "VULNERABILITY"

// Client reads projects and issues from SonarCloud
type Client struct {
	HTTPClient   transport.Doer
	Host         string
	Token        string
	Organization string

	log   *logging.Logger
	debug transport.Debugger
}

// New creates a SonarCloud client from the configuration
func New(cfg *config.Config, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		HTTPClient:   transport.NewHTTPClient(cfg.HTTPTimeout),
		Host:         apiHost(cfg.SonarURL),
		Token:        cfg.SonarToken,
		Organization: cfg.Organization,
		log:          log,
		debug:        transport.Debugger{Log: log},
	}
}

// apiHost makes sure the host ends with "/api/"
func apiHost(host string) string {
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	if !strings.HasSuffix(host, "api/") {
		host += "api/"
	}
	return host
}

func (c *Client) newRequest(method, path string, options any) (*http.Request, error) {
	sonarGoClient, err := sonargo.NewClient(c.Host, c.Token, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sonar client")
	}
	request, err := sonarGoClient.NewRequest(method, path, options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	// sonargo leaves the host out of .Opaque
	request.URL.Opaque = ""
	request.URL.Path = sonarGoClient.BaseURL().Path + path
	request.SetBasicAuth(c.Token, "")
	request.Header.Set("Accept", "application/json")
	return request, nil
}

func (c *Client) get(path string, options any, result any) error {
	req, err := c.newRequest(http.MethodGet, path, options)
	if err != nil {
		return err
	}
	c.debug.Request(req, nil)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	c.debug.Response(resp)

	if err := sonargo.CheckResponse(resp); err != nil {
		return errors.Wrapf(err, "unexpected response from %s", req.URL.Path)
	}

	// unknown fields are dropped; the search objects carry far more than we use
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(result), "failed to decode response")
}

// ListProjects walks the organization's project registry page by page until
// a short page comes back and returns every project in registry order.
func (c *Client) ListProjects() ([]Project, error) {
	var all []Project
	for page := 1; ; page++ {
		options := &ProjectsSearchOption{
			Organization: c.Organization,
			P:            page,
			Ps:           ProjectPageSize,
		}

		var response ProjectsSearchResponse
		if err := c.get(EndpointProjectsSearch, options, &response); err != nil {
			return nil, errors.Wrapf(err, "failed to list projects (page %d)", page)
		}

		all = append(all, response.Components...)
		c.log.Debug("Fetched %d projects on page %d", len(response.Components), page)

		if len(response.Components) < ProjectPageSize {
			break
		}
	}
	return all, nil
}

// SearchProject returns the first project matching name, or nil when none does
func (c *Client) SearchProject(name string) (*Project, error) {
	options := &ProjectsSearchOption{
		Organization: c.Organization,
		Q:            name,
	}

	var response ProjectsSearchResponse
	if err := c.get(EndpointProjectsSearch, options, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to search project %q", name)
	}
	if len(response.Components) == 0 {
		return nil, nil
	}
	project := response.Components[0]
	return &project, nil
}

// ListVulnerabilities returns the vulnerability issues of a project.
// Only the first page of results is requested.
func (c *Client) ListVulnerabilities(projectKey string) ([]Issue, error) {
	options := &IssuesSearchOption{
		ComponentKeys: projectKey,
		Types:         IssueTypeVulnerability,
	}

	var response IssuesSearchResponse
	if err := c.get(EndpointIssuesSearch, options, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch vulnerabilities for %s", projectKey)
	}
	if response.Total > len(response.Issues) {
		c.log.Warn("Project %s reports %d vulnerabilities, only the first %d are imported",
			projectKey, response.Total, len(response.Issues))
	}
	return response.Issues, nil
}
