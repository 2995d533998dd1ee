package pregel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, in Snapshot) (Result, error) {
	return Inactive(), nil
}

func TestNodeRegistry_Declare(t *testing.T) {
	channels := NewChannelRegistry()
	require.NoError(t, channels.Declare("a", LastValue(), 0))
	require.NoError(t, channels.Declare("b", LastValue(), 0))
	nodes := NewNodeRegistry(channels)

	require.NoError(t, nodes.Declare(NewFuncNode("x", []string{"a"}, map[string]string{"out": "b"}, noop)))
	require.NoError(t, nodes.Declare(NewFuncNode("y", nil, nil, noop)))

	assert.Equal(t, []string{"x", "y"}, nodes.Names())
	assert.Equal(t, 2, nodes.Len())
}

func TestNodeRegistry_DuplicateNode(t *testing.T) {
	channels := NewChannelRegistry()
	nodes := NewNodeRegistry(channels)
	require.NoError(t, nodes.Declare(NewFuncNode("x", nil, nil, noop)))

	err := nodes.Declare(NewFuncNode("x", nil, nil, noop))

	var dup *DuplicateNodeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "x", dup.Node)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestNodeRegistry_UnknownSubscription(t *testing.T) {
	channels := NewChannelRegistry()
	require.NoError(t, channels.Declare("a", LastValue(), 0))
	nodes := NewNodeRegistry(channels)

	err := nodes.Declare(NewFuncNode("x", []string{"a", "missing"}, nil, noop))

	var unknown *UnknownChannelError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "x", unknown.Node)
	assert.Equal(t, "missing", unknown.Channel)
	assert.Equal(t, 0, nodes.Len(), "rejected node must not be registered")
}

func TestNodeRegistry_UnknownWriteTarget(t *testing.T) {
	channels := NewChannelRegistry()
	require.NoError(t, channels.Declare("a", LastValue(), 0))
	nodes := NewNodeRegistry(channels)

	err := nodes.Declare(NewFuncNode("x", []string{"a"}, map[string]string{"out": "nowhere"}, noop))

	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.True(t, IsConfigError(err))
}

func TestNodeRegistry_InvalidNodes(t *testing.T) {
	nodes := NewNodeRegistry(NewChannelRegistry())

	assert.ErrorIs(t, nodes.Declare(nil), ErrNilNode)
	assert.ErrorIs(t, nodes.Declare(NewFuncNode("", nil, nil, noop)), ErrInvalidInput)
}

func TestFuncNode_CopiesDeclarations(t *testing.T) {
	subs := []string{"a"}
	writes := map[string]string{"out": "b"}
	n := NewFuncNode("x", subs, writes, noop)

	subs[0] = "changed"
	writes["out"] = "changed"

	assert.Equal(t, []string{"a"}, n.Inputs())
	assert.Equal(t, map[string]string{"out": "b"}, n.Outputs())
}

func TestFuncNode_NilFunction(t *testing.T) {
	_, err := NewFuncNode("x", nil, nil, nil).Compute(context.Background(), Snapshot{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResult_ActiveAndInactive(t *testing.T) {
	inactive := Inactive()
	assert.False(t, inactive.IsActive())
	assert.Nil(t, inactive.Outputs())

	empty := Active(nil)
	assert.True(t, empty.IsActive(), "an empty output mapping is still active")
	assert.Empty(t, empty.Outputs())

	active := Active(map[string]any{"out": 1})
	assert.True(t, active.IsActive())
	assert.Equal(t, 1, active.Outputs()["out"])
}

func TestSnapshot_Int(t *testing.T) {
	s := Snapshot{"i": 3, "f": 4.0, "frac": 4.5, "s": "x", "i64": int64(9)}

	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"i", 3, true},
		{"f", 4, true},
		{"i64", 9, true},
		{"frac", 0, false},
		{"s", 0, false},
		{"missing", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.Int(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
