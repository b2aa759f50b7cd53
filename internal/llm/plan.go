package llm

import (
	"fmt"
	"strings"
)

// PlanLine is one parsed instruction from a model-authored command plan:
// a function name plus key=value arguments.
type PlanLine struct {
	Name string
	Args map[string]string
}

// Arg returns the named argument with surrounding whitespace and quotes
// stripped, or "" when absent.
func (p PlanLine) Arg(key string) string { return p.Args[key] }

// ParsePlan splits a model response into plan lines of the form
//
//	funcname(key='value', key2="value2")
//
// A line starting with "##" terminates the plan; everything after it is
// commentary. Empty lines are skipped. Lines that cannot be parsed are
// returned separately so the caller can log them; a malformed line never
// fails the rest of the plan.
func ParsePlan(text string) (lines []PlanLine, malformed []string) {
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "##") {
			break
		}
		if line == "" {
			continue
		}
		parsed, err := parseLine(line)
		if err != nil {
			malformed = append(malformed, line)
			continue
		}
		lines = append(lines, parsed)
	}
	return lines, malformed
}

func parseLine(line string) (PlanLine, error) {
	open := strings.Index(line, "(")
	if open < 0 || !strings.HasSuffix(line, ")") {
		return PlanLine{}, fmt.Errorf("not a function call: %q", line)
	}
	name := strings.TrimSpace(line[:open])
	if name == "" {
		return PlanLine{}, fmt.Errorf("missing function name: %q", line)
	}
	argsStr := strings.TrimSuffix(line[open+1:], ")")

	args := make(map[string]string)
	lastKey := ""
	for _, part := range strings.Split(argsStr, ",") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			// A comma inside a quoted value splits the segment; glue it
			// back onto the previous argument.
			if lastKey == "" {
				return PlanLine{}, fmt.Errorf("argument without key: %q", part)
			}
			args[lastKey] = stripQuotes(args[lastKey] + "," + part)
			continue
		}
		lastKey = strings.TrimSpace(key)
		args[lastKey] = stripQuotes(value)
	}
	return PlanLine{Name: name, Args: args}, nil
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	s = strings.Trim(s, `"`)
	return s
}
