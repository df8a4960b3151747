package gmail

import "strings"

// MessageRef is an entry of a message search result.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body holds either inline data or a reference to a separately fetched
// attachment.
type Body struct {
	AttachmentID string `json:"attachmentId,omitempty"`
	Size         int64  `json:"size"`
	Data         string `json:"data,omitempty"`
}

// Part is one node of a message's MIME tree.
type Part struct {
	PartID   string   `json:"partId"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename"`
	Headers  []Header `json:"headers,omitempty"`
	Body     Body     `json:"body"`
	Parts    []Part   `json:"parts,omitempty"`
}

type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId"`
	LabelIDs []string `json:"labelIds,omitempty"`
	Payload  Part     `json:"payload"`
}

// Header returns the first top-level header with the given name, matched
// case-insensitively.
func (m Message) Header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// walk visits parts depth-first in document order.
func (p Part) walk(visit func(Part)) {
	for _, child := range p.Parts {
		visit(child)
		child.walk(visit)
	}
}
