package search

// Document is a unit of text submitted for embedding, keyed by the
// schema fragment it describes.
type Document struct {
	fragmentID string
	text       string
}

// NewDocument creates a Document.
func NewDocument(fragmentID, text string) Document {
	return Document{
		fragmentID: fragmentID,
		text:       text,
	}
}

// FragmentID returns the fragment identifier.
func (d Document) FragmentID() string { return d.fragmentID }

// Text returns the document text.
func (d Document) Text() string { return d.text }
