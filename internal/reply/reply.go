package reply

import "encoding/json"

// Component kinds produced by the model and accepted by clients.
const (
	KindParagraph = "paragraph"
	KindHeader    = "header"
	KindList      = "list"
	KindQuote     = "quote"
)

// Component is one unit of a structured reply. Paragraph, header and quote
// components carry Content; list components carry Items.
type Component struct {
	Kind    string   `json:"kind"`
	Content string   `json:"content,omitempty"`
	Items   []string `json:"items,omitempty"`
}

// Reply is the canonical structured reply. Every model response is normalized
// into this shape before it is persisted or returned to a caller.
type Reply struct {
	Components []Component `json:"reply_components"`
}

func Paragraph(text string) Component {
	return Component{Kind: KindParagraph, Content: text}
}

func (r Reply) Empty() bool { return len(r.Components) == 0 }

// FirstText returns the content of the first textual component, or "" if the
// reply has none. Used to reduce stored model turns to a compact snippet.
func (r Reply) FirstText() string {
	for _, c := range r.Components {
		if c.Content != "" {
			return c.Content
		}
	}
	return ""
}

// Parse decodes a reply as serialized on a model message. The second return
// is false when the content is not a stored reply.
func Parse(content string) (Reply, bool) {
	var r Reply
	if err := json.Unmarshal([]byte(content), &r); err != nil || r.Empty() {
		return Reply{}, false
	}
	return r, true
}
