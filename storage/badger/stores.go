package badger

// Stores bundles every repository served by one Backend.
type Stores struct {
	Backend     *Backend
	Vectors     *VectorStore
	Articles    *ArticleRepository
	Combos      *ComboRepository
	Checkpoints *CheckpointRepository
}

// Open opens (or creates) a database at path and builds every repository
// on it. collection and dim configure the vector store.
func Open(path, collection string, dim int) (*Stores, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return newStores(backend, collection, dim)
}

func newStores(backend *Backend, collection string, dim int) (*Stores, error) {
	vectors, err := NewVectorStore(backend, collection, dim)
	if err != nil {
		backend.Close()
		return nil, err
	}
	combos, err := NewComboRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return &Stores{
		Backend:     backend,
		Vectors:     vectors,
		Articles:    NewArticleRepository(backend),
		Combos:      combos,
		Checkpoints: NewCheckpointRepository(backend),
	}, nil
}

// Close releases the repositories and then the backend.
func (s *Stores) Close() error {
	if err := s.Combos.Close(); err != nil {
		s.Backend.Close()
		return err
	}
	return s.Backend.Close()
}
