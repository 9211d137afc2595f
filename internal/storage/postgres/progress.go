package postgres

import "context"

// NamedState is a storage.ProgressStore backed by one row of vaultd_state.
type NamedState struct {
	Store *Store
	Name  string
}

func (s *NamedState) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Store == nil {
		return 0, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *NamedState) Save(ctx context.Context, last uint64) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, last)
}
