package document

import "context"

// Store exposes document metadata to HTTP handlers.
type Store interface {
	List(ctx context.Context) ([]Document, error)
	FindByFilename(ctx context.Context, filename string) (Document, bool, error)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Document
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied documents.
func NewMemoryStore(items []Document) *MemoryStore {
	return &MemoryStore{items: append([]Document(nil), items...)}
}

// List returns the preloaded documents.
func (s *MemoryStore) List(_ context.Context) ([]Document, error) {
	return append([]Document(nil), s.items...), nil
}

// FindByFilename looks up a document by its stored filename.
func (s *MemoryStore) FindByFilename(_ context.Context, filename string) (Document, bool, error) {
	for _, item := range s.items {
		if item.Filename == filename {
			return item, true, nil
		}
	}
	return Document{}, false, nil
}
