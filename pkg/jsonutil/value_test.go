package jsonutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/pkg/jsonutil"
)

func TestValue_Lookup(t *testing.T) {
	v := jsonutil.MustFromAny(map[string]any{
		"selection": map[string]any{"strategy_id": "mean_rev@1.2"},
		"risk_state": "GREEN",
	})
	got, ok := v.Lookup("selection.strategy_id")
	require.True(t, ok)
	s, _ := got.AsString()
	assert.Equal(t, "mean_rev@1.2", s)

	_, ok = v.Lookup("selection.missing")
	assert.False(t, ok)
	_, ok = v.Lookup("risk_state.deeper")
	assert.False(t, ok)
}

func TestValue_WithIsCopyOnWrite(t *testing.T) {
	orig := jsonutil.MustFromAny(map[string]any{"a": 1})
	updated := orig.With("b", jsonutil.Int(2))

	assert.Equal(t, `{"a":1}`, orig.String())
	assert.Equal(t, `{"a":1,"b":2}`, updated.String())
	assert.Equal(t, `{"b":2}`, updated.Without("a").String())
	assert.Equal(t, `{"a":1}`, orig.Without("zzz").String())
}

func TestValue_SetPath(t *testing.T) {
	orig := jsonutil.MustFromAny(map[string]any{"strategy": map[string]any{"name": "x"}})

	updated, err := orig.SetPath("selection.strategy_id", jsonutil.String("x@1"))
	require.NoError(t, err)
	assert.Equal(t, `{"selection":{"strategy_id":"x@1"},"strategy":{"name":"x"}}`, updated.String())
	assert.Equal(t, `{"strategy":{"name":"x"}}`, orig.String())

	_, err = orig.SetPath("strategy.name.deeper", jsonutil.Null())
	assert.Error(t, err)
}

func TestValue_WithoutPath(t *testing.T) {
	v := jsonutil.MustFromAny(map[string]any{"a": map[string]any{"b": 1, "c": 2}, "d": 3})
	assert.Equal(t, `{"a":{"c":2},"d":3}`, v.WithoutPath("a.b").String())
	assert.Equal(t, `{"a":{"b":1,"c":2}}`, v.WithoutPath("d").String())
	assert.Equal(t, v.String(), v.WithoutPath("x.y").String())
}

func TestValue_Equal(t *testing.T) {
	a := jsonutil.MustFromAny(map[string]any{"x": []any{1, "two"}, "y": 1.0})
	b := jsonutil.MustFromAny(map[string]any{"y": 1, "x": []any{1, "two"}})
	c := jsonutil.MustFromAny(map[string]any{"y": 1, "x": []any{"two", 1}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, jsonutil.Null().Equal(jsonutil.Bool(false)))
}

func TestValue_Accessors(t *testing.T) {
	n := jsonutil.Int(42)
	i, ok := n.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	f, err := jsonutil.Float(2.5)
	require.NoError(t, err)
	fv, ok := f.Float64()
	assert.True(t, ok)
	assert.Equal(t, 2.5, fv)
	_, ok = f.Int64()
	assert.False(t, ok)

	arr := jsonutil.Array(jsonutil.Int(1), jsonutil.String("x"))
	assert.Equal(t, 2, arr.Len())
	item, ok := arr.Index(1)
	require.True(t, ok)
	s, _ := item.AsString()
	assert.Equal(t, "x", s)
	_, ok = arr.Index(5)
	assert.False(t, ok)

	assert.True(t, jsonutil.Null().IsNull())
	assert.Equal(t, "object", jsonutil.KindObject.String())
}
