// Package prompt builds the instructions sent to the code oracle and
// normalizes what comes back.
package prompt

import (
	"fmt"
	"strings"

	"wayfinder/internal/contract"
	"wayfinder/internal/validate"
)

const system = `You are a Go engineer fixing small pathfinding algorithms.
Reply with a single complete Go source file and nothing else.
Do not add explanations before or after the code.`

// System returns the fixed system prompt for all oracle calls.
func System() string { return system }

// contractSection spells out the members a candidate must expose.
func contractSection(typeName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The file must declare a struct %s with fields %s, %s and %s, ",
		typeName, contract.FieldWidth, contract.FieldHeight, contract.FieldVisited)
	fmt.Fprintf(&b, "a constructor func %s(width, height int) *%s, ", contract.ConstructorName(typeName), typeName)
	fmt.Fprintf(&b, "a method %s(g grid.Grid, start, end grid.Point) []grid.Point returning the start-to-end path ", contract.MethodFindPath)
	fmt.Fprintf(&b, "(empty when unreachable), and a method %s() []grid.Point returning the visit order. ", contract.MethodVisitedOrder)
	b.WriteString(`Import "wayfinder/internal/grid" for the grid types.`)
	return b.String()
}

// Strategy returns the repair emphasis for an iteration, shifting from
// gross structure toward convergence as the budget runs down.
func Strategy(iteration int) string {
	switch iteration {
	case 1:
		return "Focus on syntax and structure: make the file parse and declare every required member."
	case 2:
		return "Focus on search logic: frontier handling, bounds checks and visit-order bookkeeping."
	case 3:
		return "Polish the remaining findings and harden edge cases without changing the search strategy."
	default:
		return "Final attempt: change as little as possible, fix only what the findings below name."
	}
}

// buckets groups diagnostics the way the oracle digests them best.
var buckets = []struct {
	label      string
	categories []string
}{
	{"Critical", []string{validate.CategorySyntax}},
	{"Structural", []string{validate.CategoryStructure, validate.CategorySignature}},
	{"Logic", []string{validate.CategoryLogic}},
	{"Warnings", []string{validate.CategoryStyle, validate.CategoryPractice, validate.CategoryPerformance}},
}

func bucketize(report validate.Report) string {
	var b strings.Builder
	for _, bucket := range buckets {
		var lines []string
		for _, d := range report.All() {
			for _, cat := range bucket.categories {
				if d.Category != cat {
					continue
				}
				line := fmt.Sprintf("- [%s] %s", d.Level, d.Message)
				if d.Line > 0 {
					line += fmt.Sprintf(" (line %d)", d.Line)
				}
				if d.Suggestion != "" {
					line += " (suggestion: " + d.Suggestion + ")"
				}
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s findings:\n%s\n", bucket.label, strings.Join(lines, "\n"))
	}
	return b.String()
}

// Repair builds the user prompt for one fix iteration.
func Repair(source, typeName string, report validate.Report, iteration, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fix attempt %d of %d. %s\n\n", iteration, maxIterations, Strategy(iteration))
	b.WriteString(contractSection(typeName))
	b.WriteString("\n\n")
	b.WriteString(bucketize(report))
	b.WriteString("\nCurrent source:\n```go\n")
	b.WriteString(source)
	b.WriteString("\n```\nReturn the corrected file.")
	return b.String()
}

// Generate builds the user prompt for creating a fresh candidate from
// a natural-language description.
func Generate(description, typeName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a Go pathfinding algorithm: %s\n\n", strings.TrimSpace(description))
	b.WriteString(contractSection(typeName))
	b.WriteString("\nReturn only the file.")
	return b.String()
}

// Optimize builds the user prompt for the terminal polish pass over an
// already valid candidate. Behavior must not change.
func Optimize(source, typeName string) string {
	var b strings.Builder
	b.WriteString("Improve readability and efficiency of this valid file without changing its behavior or its exported members.\n\n")
	b.WriteString(contractSection(typeName))
	b.WriteString("\n\nSource:\n```go\n")
	b.WriteString(source)
	b.WriteString("\n```\nReturn the improved file, or the same file if no safe improvement exists.")
	return b.String()
}

// ExtractCode pulls the Go source out of an oracle reply, stripping
// markdown fences and surrounding prose. Returns "" when no code is
// present.
func ExtractCode(reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ""
	}
	if i := strings.Index(reply, "```"); i >= 0 {
		rest := reply[i+3:]
		// drop the language tag on the fence line
		if j := strings.IndexByte(rest, '\n'); j >= 0 {
			rest = rest[j+1:]
		}
		if k := strings.Index(rest, "```"); k >= 0 {
			rest = rest[:k]
		}
		return strings.TrimSpace(rest)
	}
	if strings.Contains(reply, "package ") {
		return reply
	}
	return ""
}
