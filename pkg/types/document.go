package types

// Document is a record in the vector store. Beyond the content and metadata
// accessors it is opaque to the rest of the subsystem.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GetContent returns the document body.
func (d Document) GetContent() string { return d.Content }

// GetMetadata returns the document metadata map, which may be nil.
func (d Document) GetMetadata() map[string]any { return d.Metadata }

// MetaString returns the named metadata value when it is a string.
func (d Document) MetaString(key string) string {
	if d.Metadata == nil {
		return ""
	}
	if s, ok := d.Metadata[key].(string); ok {
		return s
	}
	return ""
}

// TripleDocument is a subject-relation-object statement stored as a single
// document. The subject and object double as theme tags for
// spreading-activation search.
type TripleDocument struct {
	Subject  string
	Relation string
	Object   string
	Category string
}

// Content is the concatenated statement used for embedding and display.
func (t TripleDocument) Content() string {
	return t.Subject + t.Relation + t.Object
}

// Document flattens the triple into a store document, recording the triple
// parts in metadata so the tag index can be rebuilt from a snapshot.
func (t TripleDocument) Document() Document {
	return Document{
		Content: t.Content(),
		Metadata: map[string]any{
			"subject":  t.Subject,
			"relation": t.Relation,
			"object":   t.Object,
			"category": t.Category,
		},
	}
}

// TripleFromDocument recovers the triple parts from a document's metadata.
// The second return value is false when the document is not a stored triple.
func TripleFromDocument(d Document) (TripleDocument, bool) {
	subject := d.MetaString("subject")
	object := d.MetaString("object")
	if subject == "" && object == "" {
		return TripleDocument{}, false
	}
	return TripleDocument{
		Subject:  subject,
		Relation: d.MetaString("relation"),
		Object:   object,
		Category: d.MetaString("category"),
	}, true
}
