package sonar

// ProjectsSearchOption is the query of api/projects/search
type ProjectsSearchOption struct {
	Organization string `url:"organization,omitempty"`
	Q            string `url:"q,omitempty"`
	P            int    `url:"p,omitempty"`
	Ps           int    `url:"ps,omitempty"`
}

// IssuesSearchOption is the query of api/issues/search
type IssuesSearchOption struct {
	ComponentKeys string `url:"componentKeys,omitempty"`
	Types         string `url:"types,omitempty"`
}

// Paging is the paging block returned by search endpoints
type Paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// Project is a SonarCloud project as listed by the registry
type Project struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Qualifier    string `json:"qualifier,omitempty"`
}

// ProjectsSearchResponse is the body of api/projects/search
type ProjectsSearchResponse struct {
	Paging     Paging    `json:"paging"`
	Components []Project `json:"components"`
}

// Issue is a SonarCloud issue
type Issue struct {
	Key       string `json:"key"`
	Rule      string `json:"rule,omitempty"`
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Project   string `json:"project,omitempty"`
	Line      int    `json:"line,omitempty"`
	Message   string `json:"message"`
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
}

// IssuesSearchResponse is the body of api/issues/search
type IssuesSearchResponse struct {
	Total  int     `json:"total"`
	P      int     `json:"p"`
	Ps     int     `json:"ps"`
	Issues []Issue `json:"issues"`
}
