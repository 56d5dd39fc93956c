package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const noOutput = "No output available"

// FormatStructuredOutput renders a session's structured output for chat.
// Review-shaped objects (issues / suggestions / approved) get dedicated
// sections; everything else is pretty-printed JSON.
func FormatStructuredOutput(output any) string {
	if isAbsent(output) {
		return noOutput
	}

	switch v := output.(type) {
	case string:
		return v
	case []any:
		return formatList(v)
	case map[string]any:
		if isReview(v) {
			return formatReview(v)
		}
		return prettyJSON(v)
	default:
		return scalarString(v)
	}
}

func formatList(items []any) string {
	parts := make([]string, 0, len(items))
	for i, item := range items {
		var text string
		switch item.(type) {
		case map[string]any, []any, nil:
			text = prettyJSON(item)
		default:
			text = scalarString(item)
		}
		parts = append(parts, fmt.Sprintf("%d. %s", i+1, text))
	}
	return strings.Join(parts, "\n\n")
}

func isReview(v map[string]any) bool {
	_, hasApproved := v["approved"]
	return truthy(v["issues"]) || truthy(v["suggestions"]) || hasApproved
}

func formatReview(v map[string]any) string {
	var b strings.Builder

	if issues, ok := v["issues"].([]any); ok {
		b.WriteString("📋 Issues:\n")
		lines := make([]string, 0, len(issues))
		for i, issue := range issues {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, formatIssue(issue)))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	if suggestions, ok := v["suggestions"].([]any); ok {
		b.WriteString("💡 Suggestions:\n")
		lines := make([]string, 0, len(suggestions))
		for i, s := range suggestions {
			text, isString := s.(string)
			if !isString {
				text = compactJSON(s)
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, text))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	if approved, ok := v["approved"]; ok {
		answer := "No"
		if truthy(approved) {
			answer = "Yes"
		}
		b.WriteString("✅ Approved: " + answer + "\n\n")
	}

	return strings.TrimSpace(b.String())
}

// formatIssue renders "[file:line] description", falling back to the
// message field and then to the raw issue.
func formatIssue(issue any) string {
	m, ok := issue.(map[string]any)
	if !ok {
		return compactJSON(issue)
	}

	var prefix string
	if file, ok := m["file"]; ok && truthy(file) {
		location := scalarString(file)
		if line, ok := m["line"]; ok && truthy(line) {
			location += ":" + scalarString(line)
		}
		prefix = "[" + location + "] "
	}

	for _, field := range []string{"description", "message"} {
		if text, ok := m[field]; ok && truthy(text) {
			return prefix + scalarString(text)
		}
	}
	return prefix + compactJSON(m)
}

// isAbsent treats nil, false, zero and empty strings, lists and objects
// as no output
func isAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}

func prettyJSON(v any) string {
	return encodeJSON(v, "  ")
}

func compactJSON(v any) string {
	return encodeJSON(v, "")
}

func encodeJSON(v any, indent string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
