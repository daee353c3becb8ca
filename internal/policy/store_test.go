package policy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	doc Document
	err error
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Load(ctx context.Context) (Document, error) {
	return s.doc, s.err
}

func restrictedDocument() Document {
	return Document{
		Roles:       []string{"admin", "produce_manager"},
		Permissions: map[string][]string{"product:approve": {"admin"}},
	}
}

func TestSnapshotSurvivesReload(t *testing.T) {
	store, err := NewStore(marketplaceEngine(t))
	require.NoError(t, err)

	s1 := store.Snapshot()
	_, err = store.Reload(context.Background(), staticSource{doc: restrictedDocument()})
	require.NoError(t, err)

	assert.True(t, s1.HasPermission("produce_manager", "product:approve").Allowed)
	assert.False(t, store.Snapshot().HasPermission("produce_manager", "product:approve").Allowed)
	assert.Equal(t, uint64(2), store.Version())
}

func TestFailedReloadKeepsPreviousEngine(t *testing.T) {
	initial := marketplaceEngine(t)
	store, err := NewStore(initial)
	require.NoError(t, err)

	cyclic := Document{
		Roles:    []string{"a", "b"},
		Inherits: map[string][]string{"a": {"b"}, "b": {"a"}},
	}
	_, err = store.Reload(context.Background(), staticSource{doc: cyclic})
	require.ErrorIs(t, err, ErrCyclicHierarchy)
	assert.Same(t, initial, store.Snapshot())
	assert.Equal(t, uint64(1), store.Version())

	_, err = store.Reload(context.Background(), staticSource{err: errors.New("disk gone")})
	require.Error(t, err)
	assert.Same(t, initial, store.Snapshot())
}

func TestConcurrentDecisionsDuringReload(t *testing.T) {
	store, err := NewStore(marketplaceEngine(t))
	require.NoError(t, err)
	restricted, err := Build(restrictedDocument())
	require.NoError(t, err)
	permissive := store.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				snap := store.Snapshot()
				got := snap.HasPermission("produce_manager", "product:approve").Allowed
				want := snap == permissive
				if got != want {
					t.Errorf("torn decision: got %v on snapshot permissive=%v", got, want)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			store.Swap(restricted)
		} else {
			store.Swap(permissive)
		}
	}
	wg.Wait()
}

func TestNewStoreRequiresEngine(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}
