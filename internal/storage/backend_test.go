package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/fedgraph/internal/federation"
)

func sampleFederation(name string) *federation.Federation {
	return &federation.Federation{
		ID:         "id-" + name,
		Name:       name,
		ImportedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Stores: []federation.Store{
			{
				Name: "pets",
				EntityTypeDefs: []federation.EntityTypeDef{
					{Name: "Animal", ExtendsName: "Entity", StoreID: "pets"},
					{Name: "Dog", ExtendsName: "Animal", StoreID: "pets", ReferenceFields: []federation.ReferenceFieldDef{
						{FieldName: "owner", TargetTypeName: "Person", Cardinality: "1", IsHard: true},
					}},
				},
				EntityInstances: []federation.EntityInstance{
					{ID: "d1", TypeName: "Dog", StoreID: "pets", HasMarker: true, FieldValues: []federation.FieldValue{
						{FieldName: "owner", Values: []federation.Value{federation.ChainValue(federation.Hop{
							TargetTypeName: "Person",
							Keys:           []federation.MatchKey{{FieldName: "name", Value: "Alice"}},
						})}},
					}},
				},
			},
			{Name: "people", EntityTypeDefs: []federation.EntityTypeDef{{Name: "Person", ExtendsName: "Entity", StoreID: "people"}}},
		},
	}
}

// backends returns every implementation, initialized and closed with the test.
func backends(t *testing.T) map[string]StorageBackend {
	t.Helper()

	badgerBackend := NewBadgerBackend()
	require.NoError(t, badgerBackend.Initialize(filepath.Join(t.TempDir(), "badger"), false))
	t.Cleanup(func() { _ = badgerBackend.Close() })

	memory := NewMemoryBackend()
	require.NoError(t, memory.Initialize("", false))

	return map[string]StorageBackend{
		"Badger": badgerBackend,
		"Memory": memory,
	}
}

func TestStorageBackend_Contract(t *testing.T) {
	t.Parallel()

	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			t.Run("Empty", func(t *testing.T) {
				list, err := backend.ListFederations(ctx)
				require.NoError(t, err)
				assert.Empty(t, list)
				assert.Equal(t, 0, backend.FederationCount())
			})

			t.Run("SaveAndLoad", func(t *testing.T) {
				require.NoError(t, backend.SaveFederation(ctx, sampleFederation("zoo")))

				fed, err := backend.LoadFederation(ctx, "zoo")
				require.NoError(t, err)
				assert.Equal(t, "id-zoo", fed.ID)
				require.Len(t, fed.Stores, 2)
				assert.Equal(t, "pets", fed.Stores[0].Name)
				assert.True(t, fed.ImportedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

				dog := fed.Stores[0].EntityTypeDefs[1]
				assert.Equal(t, "Dog", dog.Name)
				require.Len(t, dog.ReferenceFields, 1)
				assert.True(t, dog.ReferenceFields[0].IsHard)

				d1 := fed.Stores[0].EntityInstances[0]
				assert.True(t, d1.HasMarker)
				owner, ok := d1.Field("owner")
				require.True(t, ok)
				require.Len(t, owner.Values, 1)
				assert.Equal(t, federation.ValueKeyChain, owner.Values[0].Kind)
				assert.Equal(t, "Alice", owner.Values[0].Chain.Hops[0].Keys[0].Value)
			})

			t.Run("Summary", func(t *testing.T) {
				s, err := backend.GetSummary(ctx, "zoo")
				require.NoError(t, err)
				assert.Equal(t, []string{"pets", "people"}, s.Stores)
				assert.Equal(t, 3, s.EntityTypes)
				assert.Equal(t, 1, s.Entities)
			})

			t.Run("ReplaceKeepsCount", func(t *testing.T) {
				replacement := sampleFederation("zoo")
				replacement.ID = "id-2"
				require.NoError(t, backend.SaveFederation(ctx, replacement))

				assert.Equal(t, 1, backend.FederationCount())
				fed, err := backend.LoadFederation(ctx, "zoo")
				require.NoError(t, err)
				assert.Equal(t, "id-2", fed.ID)
			})

			t.Run("ListSorted", func(t *testing.T) {
				require.NoError(t, backend.SaveFederation(ctx, sampleFederation("aquarium")))

				list, err := backend.ListFederations(ctx)
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, "aquarium", list[0].Name)
				assert.Equal(t, "zoo", list[1].Name)
				assert.Equal(t, 2, backend.FederationCount())
			})

			t.Run("Delete", func(t *testing.T) {
				require.NoError(t, backend.DeleteFederation(ctx, "aquarium"))
				assert.Equal(t, 1, backend.FederationCount())

				_, err := backend.LoadFederation(ctx, "aquarium")
				assert.ErrorIs(t, err, ErrNotFound)
				_, err = backend.GetSummary(ctx, "aquarium")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, backend.DeleteFederation(ctx, "aquarium"), ErrNotFound)
			})

			t.Run("EmptyName", func(t *testing.T) {
				assert.ErrorIs(t, backend.SaveFederation(ctx, &federation.Federation{}), ErrInvalidName)
			})
		})
	}
}
