package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kardiahealth/kardia/internal/reply"
)

// extractionRule locates the reply_components sequence inside a parsed body.
// Rules are tried in order; the first match wins. The model is instructed to
// emit reply_components at the top level, but in practice it sometimes nests
// the document under an extra wrapper key.
type extractionRule struct {
	name    string
	project func(doc map[string]any) (any, bool)
}

var extractionRules = []extractionRule{
	{"top-level", func(doc map[string]any) (any, bool) {
		v, ok := doc["reply_components"]
		return v, ok
	}},
	{"reply wrapper", wrapperRule("reply")},
	{"response wrapper", wrapperRule("response")},
	{"data wrapper", wrapperRule("data")},
}

func wrapperRule(key string) func(map[string]any) (any, bool) {
	return func(doc map[string]any) (any, bool) {
		inner, ok := doc[key].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := inner["reply_components"]
		return v, ok
	}
}

// Normalize converts the raw text body of a successful model call into a
// canonical reply. It performs no I/O. Failures are typed: MalformedResponse
// when the body is not valid JSON, UnrecognizedResponseShape when no
// extraction rule matches, InvalidComponent when the sequence itself is bad.
func Normalize(raw string) (reply.Reply, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return reply.Reply{}, &MalformedResponse{Err: err, Preview: preview(cleaned, 200)}
	}

	doc, ok := parsed.(map[string]any)
	if !ok {
		return reply.Reply{}, &UnrecognizedResponseShape{}
	}

	var components any
	found := false
	for _, rule := range extractionRules {
		if v, ok := rule.project(doc); ok {
			components = v
			found = true
			break
		}
	}
	if !found {
		return reply.Reply{}, &UnrecognizedResponseShape{Keys: sortedKeys(doc)}
	}

	return buildReply(components)
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	body := strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func buildReply(v any) (reply.Reply, error) {
	seq, ok := v.([]any)
	if !ok {
		return reply.Reply{}, &InvalidComponent{Index: -1, Reason: "reply_components is not a sequence"}
	}
	if len(seq) == 0 {
		return reply.Reply{}, &InvalidComponent{Index: -1, Reason: "reply_components is empty"}
	}

	components := make([]reply.Component, 0, len(seq))
	for i, el := range seq {
		m, ok := el.(map[string]any)
		if !ok {
			return reply.Reply{}, &InvalidComponent{Index: i, Reason: "component is not an object"}
		}
		kind, ok := m["kind"].(string)
		if !ok || kind == "" {
			return reply.Reply{}, &InvalidComponent{Index: i, Reason: "missing kind field"}
		}

		c := reply.Component{Kind: kind}
		if content, ok := m["content"].(string); ok {
			c.Content = content
		}
		if items, ok := m["items"].([]any); ok {
			for _, it := range items {
				if s, ok := it.(string); ok {
					c.Items = append(c.Items, s)
				} else {
					c.Items = append(c.Items, fmt.Sprint(it))
				}
			}
		}
		components = append(components, c)
	}

	return reply.Reply{Components: components}, nil
}
