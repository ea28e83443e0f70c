package dojo

// DateLayout is the date format DefectDojo accepts for target windows
const DateLayout = "2006-01-02"

// Fixed classifications used when provisioning
const (
	EngagementStatusInProgress = "In Progress"
	EngagementTypeCICD         = "CI/CD"
)

// Page is a paginated list response
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Product is the top-level DefectDojo entity
type Product struct {
	ID          int    `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ProdType    int    `json:"prod_type"`
}

// Engagement is a time-boxed unit of testing under a product
type Engagement struct {
	ID             int    `json:"id,omitempty"`
	Name           string `json:"name"`
	Product        int    `json:"product"`
	Status         string `json:"status"`
	TargetStart    string `json:"target_start"`
	TargetEnd      string `json:"target_end"`
	EngagementType string `json:"engagement_type"`
	Description    string `json:"description,omitempty"`
}

// Test is one import batch inside an engagement
type Test struct {
	ID          int    `json:"id,omitempty"`
	Title       string `json:"title"`
	Engagement  int    `json:"engagement"`
	TestType    int    `json:"test_type"`
	TargetStart string `json:"target_start"`
	TargetEnd   string `json:"target_end"`
}

// Finding is a single reported vulnerability
type Finding struct {
	ID                int    `json:"id,omitempty"`
	Title             string `json:"title"`
	Severity          string `json:"severity"`
	NumericalSeverity string `json:"numerical_severity"`
	Description       string `json:"description"`
	Test              int    `json:"test"`
	FoundBy           []int  `json:"found_by"`
	Active            bool   `json:"active"`
	Verified          bool   `json:"verified"`
	StaticFinding     bool   `json:"static_finding"`
	FilePath          string `json:"file_path,omitempty"`
	Line              int    `json:"line,omitempty"`
	UniqueIDFromTool  string `json:"unique_id_from_tool,omitempty"`
}
