package validate

// Severity ranks how strongly a diagnostic counts against a candidate.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Diagnostic is a single finding about a candidate source.
type Diagnostic struct {
	Severity   Severity `json:"-"`
	Level      string   `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	Line       int      `json:"line,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Snippet    string   `json:"snippet,omitempty"`
}

// Diagnostic categories, used to bucket findings for repair prompts.
const (
	CategorySyntax      = "syntax"
	CategoryStructure   = "structure"
	CategorySignature   = "signature"
	CategoryLogic       = "logic"
	CategoryStyle       = "style"
	CategoryPractice    = "practice"
	CategoryPerformance = "performance"
)

func diag(sev Severity, category, message string) Diagnostic {
	return Diagnostic{Severity: sev, Level: sev.String(), Category: category, Message: message}
}

func (d Diagnostic) withLine(line int) Diagnostic {
	d.Line = line
	return d
}

func (d Diagnostic) withSuggestion(s string) Diagnostic {
	d.Suggestion = s
	return d
}
