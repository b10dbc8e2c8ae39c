package payload

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sammck-go/chanbridge/pkg/endpoint"
)

func newPort(t *testing.T) *endpoint.Port {
	a, b := endpoint.NewPair(nil)
	t.Cleanup(func() { a.Close() })
	return b
}

func TestChannelsAtDepth(t *testing.T) {
	p := newPort(t)
	v := map[string]any{
		"a": map[string]any{
			"b": []any{"zero", 1.0, map[string]any{"c": p, "d": "sibling"}},
		},
		"e": "text",
	}
	paths, err := FindChannels(v)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, Path{"a", "b", "2", "c"}, paths[0])
	assert.Equal(t, "a.b[2].c", paths[0].String())

	got, err := Get(v, paths[0])
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestNoFalsePositives(t *testing.T) {
	v := map[string]any{
		"s":    "a string is a leaf",
		"n":    3.5,
		"null": nil,
		"list": []any{"x", []any{}, map[string]any{"deep": []any{true, false}}},
		"m":    map[string]string{"typed": "maps are opaque"},
	}
	paths, err := FindChannels(v)
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)

	paths, err = FindChannels(nil)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestChannelsOrderAndRestart(t *testing.T) {
	p1, p2, p3 := newPort(t), newPort(t), newPort(t)
	v := map[string]any{
		"z": p3,
		"a": []any{p1, "x", p2},
		"m": map[string]any{"k": p1},
	}
	want := []Path{{"a", "0"}, {"a", "2"}, {"m", "k"}, {"z"}}
	for i := 0; i < 2; i++ {
		var got []Path
		for path := range Channels(v) {
			got = append(got, path)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("pass %d: Channels() mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestChannelsEarlyBreak(t *testing.T) {
	v := []any{newPort(t), newPort(t), newPort(t)}
	n := 0
	for range Channels(v) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestRootPortAndSharedSubgraph(t *testing.T) {
	p := newPort(t)
	paths, err := FindChannels(p)
	require.NoError(t, err)
	assert.Equal(t, []Path{{}}, paths)

	shared := map[string]any{"ch": p}
	paths, err = FindChannels([]any{shared, shared})
	require.NoError(t, err)
	assert.Equal(t, []Path{{"0", "ch"}, {"1", "ch"}}, paths)
}

func TestCyclicPayload(t *testing.T) {
	p := newPort(t)
	m := map[string]any{"ch": p}
	m["self"] = m
	paths, err := FindChannels(m)
	assert.ErrorIs(t, err, ErrCyclicPayload)
	assert.Equal(t, []Path{{"ch"}}, paths)

	s := []any{nil, p}
	s[0] = s
	n := 0
	for range Channels(s) {
		n++
	}
	assert.Equal(t, 1, n)
}

func TestReplaceAt(t *testing.T) {
	v := map[string]any{"a": []any{"x", map[string]any{"c": "id"}}}

	old, err := ReplaceAt(v, Path{"a", "1", "c"}, 42)
	require.NoError(t, err)
	assert.Equal(t, "id", old)

	old, err = ReplaceAt(v, Path{"a", "0"}, "y")
	require.NoError(t, err)
	assert.Equal(t, "x", old)

	old, err = ReplaceAt(v, Path{"new"}, true)
	require.NoError(t, err)
	assert.Nil(t, old)

	want := map[string]any{
		"a":   []any{"y", map[string]any{"c": 42}},
		"new": true,
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("ReplaceAt() result mismatch (-want +got):\n%s", diff)
	}
}

func TestBrokenPaths(t *testing.T) {
	v := map[string]any{"a": []any{"x"}, "s": "text"}
	for _, path := range []Path{
		{},
		{"missing", "k"},
		{"a", "1"},
		{"a", "-1"},
		{"a", "01"},
		{"a", "k"},
		{"s", "0"},
		{"a", "0", "deeper"},
	} {
		_, err := ReplaceAt(v, path, "new")
		assert.ErrorIs(t, err, ErrBrokenPath, "path %q", []string(path))
	}
	_, err := Get(v, Path{"missing"})
	assert.ErrorIs(t, err, ErrBrokenPath)
	assert.Equal(t, []any{"x"}, v["a"])
}
