package relief

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/reliefdesk/internal/core"
)

const systemPrompt = "You convert school relief (substitute cover) lists into JSON. Output only valid JSON."

func buildMatchPrompt(text string) string {
	return fmt.Sprintf(
		`Extract every cover assignment from the relief list below. Output format: a JSON array of objects `+
			`{"subject": string, "coveringIdentityName": string, "timeSlot": string}. `+
			`Rules: 1. coveringIdentityName is the teacher who covers the lesson, written as in the list. `+
			`2. timeSlot is the period number ("3"), a period range ("3-4") or a clock time ("09:40"). `+
			`3. One object per covering teacher per lesson. 4. Output [] when there are no assignments. `+
			`Relief list:
%s`,
		text,
	)
}

// parseAssignments keeps every well-formed element of the first JSON array in
// content. Malformed elements are dropped one by one.
func parseAssignments(content string, valid func(slot string) bool) ([]core.CoverageAssignment, int, error) {
	jsonStr := extractJSONArray(content)
	if jsonStr == "" {
		return nil, 0, fmt.Errorf("no JSON array found in response")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, 0, fmt.Errorf("unmarshal assignments: %w", err)
	}

	out := make([]core.CoverageAssignment, 0, len(raw))
	dropped := 0
	for _, item := range raw {
		a, ok := decodeAssignment(item)
		if !ok || !valid(a.TimeSlot) {
			dropped++
			continue
		}
		out = append(out, a)
	}
	return out, dropped, nil
}

func decodeAssignment(item json.RawMessage) (core.CoverageAssignment, bool) {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil {
		return core.CoverageAssignment{}, false
	}

	subject, ok1 := stringField(fields["subject"])
	name, ok2 := stringField(fields["coveringIdentityName"])
	slot, ok3 := stringField(fields["timeSlot"])
	if !ok1 || !ok2 || !ok3 {
		return core.CoverageAssignment{}, false
	}
	return core.CoverageAssignment{Subject: subject, CoveringName: name, TimeSlot: slot}, true
}

// stringField accepts non-empty strings and integral numbers.
func stringField(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case float64:
		if t != float64(int64(t)) || t < 0 {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	default:
		return "", false
	}
}

func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content[start:], "]")
	if end == -1 {
		return ""
	}

	return content[start : start+end+1]
}
