package stream

// Reference declares that records in one collection point at records in
// another through an id-valued field.
type Reference struct {
	// TargetCollection is the collection being pointed at (e.g. "gameSystems").
	TargetCollection string

	// SourceCollection is the collection holding the pointer (e.g. "sources").
	SourceCollection string

	// Field is the attribute in source records that holds the target id.
	Field string
}

// Refs holds all known cross-collection references for cascade operations.
type Refs struct {
	references []Reference
	byTarget   map[string][]Reference
}

// NewRefs creates a new empty Refs registry.
func NewRefs() *Refs {
	return &Refs{
		byTarget: make(map[string][]Reference),
	}
}

// Register adds a reference to the registry.
func (r *Refs) Register(ref Reference) {
	r.references = append(r.references, ref)
	r.byTarget[ref.TargetCollection] = append(r.byTarget[ref.TargetCollection], ref)
}

// ReferencesTo returns all references pointing at the given collection.
func (r *Refs) ReferencesTo(target string) []Reference {
	return r.byTarget[target]
}

// IsReferenced reports whether any collection points at the given one.
func (r *Refs) IsReferenced(target string) bool {
	return len(r.byTarget[target]) > 0
}

// All returns every registered reference.
func (r *Refs) All() []Reference {
	return r.references
}
