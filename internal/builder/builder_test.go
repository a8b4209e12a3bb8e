package builder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
)

func petTypes() []federation.EntityTypeDef {
	return []federation.EntityTypeDef{
		{Name: "Animal", ExtendsName: "Entity"},
		{Name: "Dog", ExtendsName: "Animal", ReferenceFields: []federation.ReferenceFieldDef{
			{FieldName: "owner", TargetTypeName: "Person", Cardinality: "1", IsHard: true},
		}},
		{Name: "Person", ExtendsName: "Entity"},
	}
}

func nameField(v string) federation.FieldValue {
	return federation.FieldValue{FieldName: "name", Values: []federation.Value{federation.LiteralValue(v)}}
}

func ownerChain(name string) federation.FieldValue {
	return federation.FieldValue{FieldName: "owner", Values: []federation.Value{
		federation.ChainValue(federation.Hop{
			TargetTypeName: "Person",
			Keys:           []federation.MatchKey{{FieldName: "name", Value: name}},
		}),
	}}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		expected Mode
	}{
		{"", ModeTypes},
		{"types", ModeTypes},
		{"instances", ModeInstances},
		{"instance", ModeInstances},
	}
	for _, tt := range tests {
		m, err := ParseMode(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, m)
	}

	_, err := ParseMode("schema")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestBuild_UnknownMode(t *testing.T) {
	t.Parallel()

	res, err := Build(nil, Mode("bogus"), DefaultOptions())

	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Nil(t, res)
}

func TestBuild_TypeGraphRoundTrip(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{Name: "s1", EntityTypeDefs: petTypes()}}

	res, err := Build(stores, ModeTypes, DefaultOptions())
	require.NoError(t, err)

	g := res.Graph
	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, ModeTypes, res.Mode)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 2, g.EdgeCount())

	extends := g.EdgesByKind(graph.EdgeExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "Dog", extends[0].Source)
	assert.Equal(t, "Animal", extends[0].Target)
	assert.Equal(t, 10, extends[0].Weight)
	assert.False(t, extends[0].UnresolvedTarget)

	refs := g.EdgesByKind(graph.EdgeReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "Dog", refs[0].Source)
	assert.Equal(t, "Person", refs[0].Target)
	assert.Equal(t, "owner", refs[0].Label)
	assert.True(t, refs[0].IsHard)
	assert.Equal(t, 5, refs[0].Weight)

	assert.Empty(t, g.GetOutgoing("Animal"))
	assert.Empty(t, g.GetOutgoing("Person"))
	assert.Empty(t, res.Diagnostics)
	assert.NotNil(t, res.Diagnostics)
}

func TestBuildTypeGraph_Nodes(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{Name: "s1", EntityTypeDefs: petTypes()}}
	res, err := Build(stores, ModeTypes, DefaultOptions())
	require.NoError(t, err)
	g := res.Graph

	animal := g.GetNode("Animal")
	dog := g.GetNode("Dog")
	person := g.GetNode("Person")
	require.NotNil(t, animal)
	require.NotNil(t, dog)
	require.NotNil(t, person)

	t.Run("Roots", func(t *testing.T) {
		t.Parallel()
		assert.True(t, animal.IsRoot)
		assert.False(t, dog.IsRoot)
		assert.False(t, person.IsRoot)
	})

	t.Run("DomainIndexes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1, animal.ColorIndex)
		assert.Equal(t, 1, dog.ColorIndex)
		assert.Equal(t, 0, person.ColorIndex)
		assert.Equal(t, 2, dog.DomainSize)
	})

	t.Run("LineageSharesColor", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, animal.Color, dog.Color)
		assert.NotEqual(t, animal.Color, person.Color)
	})

	t.Run("GroupAndKind", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "s1", dog.GroupKey)
		assert.Equal(t, graph.NodeType, dog.Kind)
		assert.Equal(t, "Animal", dog.Properties["rootType"])
		assert.Equal(t, "Animal", dog.Properties["parent"])
	})

	t.Run("EdgeColorFollowsSource", func(t *testing.T) {
		t.Parallel()
		edges := g.GetOutgoing("Dog")
		require.NotEmpty(t, edges)
		for _, e := range edges {
			assert.Equal(t, dog.Color+"80", e.DisplayColor)
		}
	})
}

func TestBuildTypeGraph_UnresolvedTargets(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{Name: "s1", EntityTypeDefs: []federation.EntityTypeDef{
		{Name: "Zoo", ExtendsName: "Entity",
			Components: []federation.ComponentRef{
				{TargetTypeName: "Cage", Cardinality: "*"},
				{TargetTypeName: ""},
			},
			ReferenceFields: []federation.ReferenceFieldDef{
				{FieldName: "keeper", TargetTypeName: "Keeper"},
			},
		},
		{Name: "Cage", ExtendsName: "Building"},
	}}}

	res, err := Build(stores, ModeTypes, DefaultOptions())
	require.NoError(t, err)
	g := res.Graph

	comps := g.EdgesByKind(graph.EdgeComponent)
	require.Len(t, comps, 1)
	assert.Equal(t, "Cage", comps[0].Target)
	assert.False(t, comps[0].UnresolvedTarget)
	assert.Equal(t, "*", comps[0].Properties["cardinality"])

	refs := g.EdgesByKind(graph.EdgeReference)
	require.Len(t, refs, 1)
	assert.True(t, refs[0].UnresolvedTarget)
	assert.False(t, refs[0].IsHard)
	assert.Equal(t, 3, refs[0].Weight)

	extends := g.EdgesByKind(graph.EdgeExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "Building", extends[0].Target)
	assert.True(t, extends[0].UnresolvedTarget)

	assert.Equal(t, 1, diagnostics.Count(res.Diagnostics, diagnostics.CodeUnknownComponentTarget))
	assert.Equal(t, 1, diagnostics.Count(res.Diagnostics, diagnostics.CodeUnknownReferenceTarget))
	assert.Equal(t, 1, diagnostics.Count(res.Diagnostics, diagnostics.CodeDanglingExtends))
}

func TestBuild_InstanceScenario(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{
		Name:           "s1",
		EntityTypeDefs: petTypes(),
		EntityInstances: []federation.EntityInstance{
			{ID: "p1", TypeName: "Person", FieldValues: []federation.FieldValue{nameField("Alice")}},
			{ID: "d1", TypeName: "Dog", FieldValues: []federation.FieldValue{ownerChain("Alice")}},
		},
	}}

	res, err := Build(stores, ModeInstances, DefaultOptions())
	require.NoError(t, err)
	g := res.Graph

	assert.Equal(t, 2, g.NodeCount())
	refs := g.EdgesByKind(graph.EdgeReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "d1", refs[0].Source)
	assert.Equal(t, "p1", refs[0].Target)
	assert.True(t, refs[0].IsHard)
	assert.Equal(t, true, refs[0].Properties["keyChain"])
	assert.Empty(t, res.Diagnostics)

	p1 := g.GetNode("p1")
	require.NotNil(t, p1)
	assert.Equal(t, "Alice (Person)", p1.Label)
	assert.True(t, p1.IsRoot)
	assert.Equal(t, graph.NodeInstance, p1.Kind)
	assert.Equal(t, "Dog", g.GetNode("d1").Label)
}

func TestBuildInstanceGraph_NullParents(t *testing.T) {
	t.Parallel()

	for _, parent := range []string{"-1", "0"} {
		t.Run("Parent"+parent, func(t *testing.T) {
			t.Parallel()
			stores := []federation.Store{{
				Name:           "s1",
				EntityTypeDefs: petTypes(),
				EntityInstances: []federation.EntityInstance{
					{ID: "p1", ParentID: parent, TypeName: "Person", FieldValues: []federation.FieldValue{nameField("Alice")}},
					{ID: "d1", ParentID: parent, TypeName: "Dog", FieldValues: []federation.FieldValue{ownerChain("Alice")}},
				},
			}}

			res, err := Build(stores, ModeInstances, DefaultOptions())
			require.NoError(t, err)
			g := res.Graph

			assert.True(t, g.GetNode("p1").IsRoot)
			assert.True(t, g.GetNode("d1").IsRoot)
			assert.Empty(t, g.EdgesByKind(graph.EdgeComponent))
			refs := g.EdgesByKind(graph.EdgeReference)
			require.Len(t, refs, 1)
			assert.Equal(t, "p1", refs[0].Target)
			assert.Empty(t, res.Diagnostics)
			assert.Equal(t, parent, stores[0].EntityInstances[0].ParentID)
		})
	}
}

func TestBuild_CycleScenario(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{Name: "s1", EntityTypeDefs: []federation.EntityTypeDef{
		{Name: "A", ExtendsName: "B"},
		{Name: "B", ExtendsName: "A"},
	}}}

	for _, mode := range []Mode{ModeTypes, ModeInstances} {
		res, err := Build(stores, mode, DefaultOptions())

		require.Error(t, err)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, hierarchy.ErrHierarchyCycle))

		var cycle *hierarchy.CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []string{"A", "B"}, cycle.Types)
	}
}

func TestBuild_MalformedScenario(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{
		Name:           "s1",
		EntityTypeDefs: petTypes(),
		EntityInstances: []federation.EntityInstance{
			{ID: "p1", TypeName: "Person", FieldValues: []federation.FieldValue{nameField("Alice")}},
			{ID: "d1", TypeName: "Dog", FieldValues: []federation.FieldValue{ownerChain("Bob")}},
			{ID: "d2", TypeName: "Dog", FieldValues: []federation.FieldValue{ownerChain("Alice")}},
		},
	}}

	res, err := Build(stores, ModeInstances, DefaultOptions())
	require.NoError(t, err)

	assert.Empty(t, res.Graph.GetOutgoing("d1"))
	refs := res.Graph.GetOutgoing("d2", graph.EdgeReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "p1", refs[0].Target)

	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, diagnostics.CodeUnresolvedReference, d.Code)
	assert.Equal(t, "d1", d.Context.Instance)
	assert.Equal(t, "owner", d.Context.Field)
}

func TestBuildInstanceGraph_ParentsAndStores(t *testing.T) {
	t.Parallel()

	types := []federation.EntityTypeDef{
		{Name: "Zoo", ExtendsName: "Entity"},
		{Name: "Cage", ExtendsName: "Entity"},
	}
	stores := []federation.Store{
		{Name: "s1", EntityTypeDefs: types, EntityInstances: []federation.EntityInstance{
			{ID: "z1", TypeName: "Zoo", HasMarker: true},
		}},
		{Name: "s2", EntityInstances: []federation.EntityInstance{
			{ID: "c1", ParentID: "z1", TypeName: "Cage"},
			{ID: "c2", ParentID: "gone", TypeName: "Cage"},
			{ID: "z1", TypeName: "Zoo"},
			{TypeName: "Cage"},
		}},
	}

	res, err := Build(stores, ModeInstances, DefaultOptions())
	require.NoError(t, err)
	g := res.Graph

	assert.Equal(t, 3, g.NodeCount())

	parents := g.EdgesByKind(graph.EdgeComponent)
	require.Len(t, parents, 1)
	assert.Equal(t, "c1", parents[0].Source)
	assert.Equal(t, "z1", parents[0].Target)
	assert.Equal(t, 5, parents[0].Weight)

	z1 := g.GetNode("z1")
	c1 := g.GetNode("c1")
	assert.True(t, z1.HasMarker)
	assert.Equal(t, "s1", z1.GroupKey)
	assert.Equal(t, "s2", c1.GroupKey)
	assert.Equal(t, 0, z1.ColorIndex)
	assert.Equal(t, 1, c1.ColorIndex)
	assert.Equal(t, 2, c1.DomainSize)
	assert.NotEqual(t, z1.Color, c1.Color)
	assert.False(t, c1.IsRoot)
	assert.Equal(t, "z1", c1.Properties["parentId"])

	assert.Equal(t, 1, diagnostics.Count(res.Diagnostics, diagnostics.CodeUnknownParent))
	assert.Equal(t, 1, diagnostics.Count(res.Diagnostics, diagnostics.CodeDuplicateInstance))

	missing := diagnostics.Count(res.Diagnostics, diagnostics.CodeMissingInstanceID)
	require.Equal(t, 1, missing)
	for _, d := range res.Diagnostics {
		if d.Code == diagnostics.CodeMissingInstanceID {
			assert.Equal(t, diagnostics.SeverityWarning, d.Severity)
			assert.Equal(t, "s2", d.Context.Store)
			assert.Equal(t, "Cage", d.Context.Type)
		}
	}
}

func TestBuildInstanceGraph_LiteralReferences(t *testing.T) {
	t.Parallel()

	literal := func(v string) federation.FieldValue {
		return federation.FieldValue{FieldName: "owner", Values: []federation.Value{federation.LiteralValue(v)}}
	}
	stores := []federation.Store{{
		Name:           "s1",
		EntityTypeDefs: petTypes(),
		EntityInstances: []federation.EntityInstance{
			{ID: "p1", TypeName: "Person"},
			{ID: "d1", TypeName: "Dog", FieldValues: []federation.FieldValue{literal("p1")}},
			{ID: "d2", TypeName: "Dog", FieldValues: []federation.FieldValue{literal("-1")}},
			{ID: "d3", TypeName: "Dog", FieldValues: []federation.FieldValue{literal("p9")}},
		},
	}}

	res, err := Build(stores, ModeInstances, DefaultOptions())
	require.NoError(t, err)

	refs := res.Graph.EdgesByKind(graph.EdgeReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "d1", refs[0].Source)
	assert.Equal(t, "p1", refs[0].Target)
	assert.Equal(t, false, refs[0].Properties["keyChain"])

	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, diagnostics.CodeUnsetReference, res.Diagnostics[0].Code)
	assert.Equal(t, "d2", res.Diagnostics[0].Context.Instance)
	assert.Equal(t, diagnostics.CodeDanglingReference, res.Diagnostics[1].Code)
	assert.Equal(t, diagnostics.SeverityInfo, res.Diagnostics[1].Severity)
	assert.Equal(t, "p9", res.Diagnostics[1].Context.Target)
}

func TestInstanceLabel(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()

	t.Run("Truncates", func(t *testing.T) {
		t.Parallel()
		e := &federation.EntityInstance{TypeName: "Person", FieldValues: []federation.FieldValue{
			nameField("Bartholomew Montgomery the Third"),
		}}
		assert.Equal(t, "Bartholomew Montgome (Person)", instanceLabel(e, opts))
	})

	t.Run("CountsRunes", func(t *testing.T) {
		t.Parallel()
		e := &federation.EntityInstance{TypeName: "City", FieldValues: []federation.FieldValue{
			nameField("Zürich"),
		}}
		assert.Equal(t, "Zür (City)", instanceLabel(e, Options{LabelMaxLength: 3}.withDefaults()))
	})

	t.Run("FallsBackToType", func(t *testing.T) {
		t.Parallel()
		e := &federation.EntityInstance{TypeName: "Person"}
		assert.Equal(t, "Person", instanceLabel(e, opts))
	})

	t.Run("AlternativeNameField", func(t *testing.T) {
		t.Parallel()
		e := &federation.EntityInstance{TypeName: "Person", FieldValues: []federation.FieldValue{
			{FieldName: "title", Values: []federation.Value{federation.LiteralValue("Dr")}},
		}}
		o := opts
		o.NameFields = []string{"name", "title"}
		assert.Equal(t, "Dr (Person)", instanceLabel(e, o))
	})
}

func TestOptions_WithDefaults(t *testing.T) {
	t.Parallel()

	o := Options{}.withDefaults()

	assert.Equal(t, "Entity", o.Sentinel)
	assert.Equal(t, []string{"RootChild"}, o.RootAliases)
	assert.Equal(t, 20, o.LabelMaxLength)
	assert.Equal(t, "-1", o.NullReference)
	assert.Equal(t, DefaultWeights(), o.Weights)
	assert.InDelta(t, 0.5, o.EdgeAlpha, 1e-9)

	custom := Options{RootAliases: []string{}, Weights: Weights{Extends: 1}}.withDefaults()
	assert.Empty(t, custom.RootAliases)
	assert.Equal(t, 1, custom.Weights.Extends)
}

func TestResult_Document(t *testing.T) {
	t.Parallel()

	stores := []federation.Store{{Name: "s1", EntityTypeDefs: petTypes()}}
	res, err := Build(stores, ModeTypes, DefaultOptions())
	require.NoError(t, err)

	t.Run("AllEdges", func(t *testing.T) {
		t.Parallel()
		doc := res.Document()
		assert.Equal(t, res.BuildID, doc.BuildID)
		assert.Equal(t, ModeTypes, doc.Mode)
		assert.Len(t, doc.Nodes, 3)
		assert.Len(t, doc.Edges, 2)
		assert.NotNil(t, doc.Diagnostics)
	})

	t.Run("Filtered", func(t *testing.T) {
		t.Parallel()
		doc := res.Document(graph.ClassReferenceSoft)
		assert.Len(t, doc.Nodes, 3)
		assert.NotNil(t, doc.Edges)
		assert.Empty(t, doc.Edges)
	})
}
