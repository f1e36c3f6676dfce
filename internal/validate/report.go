package validate

// Report is the outcome of validating one candidate source.
type Report struct {
	Valid       bool         `json:"valid"`
	Score       int          `json:"score"`
	Errors      []Diagnostic `json:"errors"`
	Warnings    []Diagnostic `json:"warnings"`
	Suggestions []Diagnostic `json:"suggestions"`
}

const (
	maxScore         = 100
	errorWeight      = 10
	warningWeight    = 3
	suggestionWeight = 1
)

// buildReport partitions diagnostics by severity and derives the score.
// Valid holds exactly when no error-grade diagnostic is present.
func buildReport(diags []Diagnostic) Report {
	var r Report
	for _, d := range diags {
		switch d.Severity {
		case SeverityCritical, SeverityError:
			r.Errors = append(r.Errors, d)
		case SeverityWarning:
			r.Warnings = append(r.Warnings, d)
		default:
			r.Suggestions = append(r.Suggestions, d)
		}
	}
	r.Valid = len(r.Errors) == 0
	r.Score = score(len(r.Errors), len(r.Warnings), len(r.Suggestions))
	return r
}

func score(errors, warnings, suggestions int) int {
	s := maxScore - errorWeight*errors - warningWeight*warnings - suggestionWeight*suggestions
	if s < 0 {
		return 0
	}
	return s
}

// All returns every diagnostic in the report, errors first.
func (r Report) All() []Diagnostic {
	out := make([]Diagnostic, 0, len(r.Errors)+len(r.Warnings)+len(r.Suggestions))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	out = append(out, r.Suggestions...)
	return out
}
