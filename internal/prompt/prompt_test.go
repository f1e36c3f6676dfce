package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"wayfinder/internal/validate"
)

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"fenced with tag", "Here you go:\n```go\npackage candidate\n```\nDone.", "package candidate"},
		{"fenced bare", "```\npackage candidate\n```", "package candidate"},
		{"raw file", "package candidate\n\nfunc X() {}", "package candidate\n\nfunc X() {}"},
		{"prose only", "I cannot fix this.", ""},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractCode(tc.in))
		})
	}
}

func TestStrategyShiftsWithIteration(t *testing.T) {
	assert.Contains(t, Strategy(1), "syntax")
	assert.Contains(t, Strategy(2), "logic")
	assert.Contains(t, Strategy(3), "Polish")
	final := Strategy(4)
	assert.Contains(t, final, "Final attempt")
	assert.Equal(t, final, Strategy(9), "late iterations share the convergence strategy")
}

func TestRepairPromptBucketsFindings(t *testing.T) {
	report := validate.New().Validate("package candidate\n\nfunc Other() {}\n", "Walker")
	p := Repair("package candidate", "Walker", report, 2, 5)

	assert.Contains(t, p, "Fix attempt 2 of 5")
	assert.Contains(t, p, "Structural findings:")
	assert.Contains(t, p, "type Walker is not declared")
	assert.Contains(t, p, "NewWalker(width, height int)")
	assert.True(t, strings.Contains(p, "```go"), "source must be fenced")
}

func TestGeneratePromptNamesContract(t *testing.T) {
	p := Generate("breadth-first search over a maze", "Solver")
	assert.Contains(t, p, "breadth-first search over a maze")
	assert.Contains(t, p, "NewSolver")
	assert.Contains(t, p, "FindPath")
	assert.Contains(t, p, "VisitedOrder")
}
