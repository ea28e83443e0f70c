// Package severity translates SonarCloud issue severities into the
// DefectDojo severity names and numerical codes.
package severity

import "strings"

// Level is a DefectDojo severity name.
type Level string

const (
	Info     Level = "Info"
	Low      Level = "Low"
	Medium   Level = "Medium"
	High     Level = "High"
	Critical Level = "Critical"
)

// Sonar issue severities.
const (
	SonarInfo     = "INFO"
	SonarMinor    = "MINOR"
	SonarMajor    = "MAJOR"
	SonarCritical = "CRITICAL"
	SonarBlocker  = "BLOCKER"
)

// BLOCKER sits below CRITICAL in DefectDojo terms.
var fromSonar = map[string]Level{
	SonarInfo:     Info,
	SonarMinor:    Low,
	SonarMajor:    Medium,
	SonarBlocker:  High,
	SonarCritical: Critical,
}

// Numerical returns the DefectDojo numerical code (0 for Info up to 4 for Critical).
func (l Level) Numerical() int {
	switch l {
	case Info:
		return 0
	case Low:
		return 1
	case High:
		return 3
	case Critical:
		return 4
	default:
		return 2
	}
}

func (l Level) String() string {
	return string(l)
}

// FromSonar maps a Sonar severity. Missing or unknown values become Medium.
func FromSonar(s string) Level {
	if l, ok := fromSonar[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return Medium
}
