package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record map[string]any

func (r record) Get(name string) (any, bool) {
	for k, v := range r {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func TestMemberChain(t *testing.T) {
	names, ok := MemberChain(Path("Parent.Status"))
	require.True(t, ok)
	assert.Equal(t, []string{"Parent", "Status"}, names)

	_, ok = MemberChain(Identity())
	assert.False(t, ok, "identity has no members")

	_, ok = MemberChain(Member{Target: Const(1), Name: "X"})
	assert.False(t, ok, "chain must be rooted at the parameter")
}

func TestEval(t *testing.T) {
	parent := record{"Status": "active"}
	child := record{
		"Id":       int64(7),
		"Parent":   parent,
		"Siblings": []record{{"Name": "a"}, {"Name": "b"}},
	}

	t.Run("identity", func(t *testing.T) {
		v, err := Eval(Identity(), child)
		require.NoError(t, err)
		assert.Equal(t, child, v)
	})

	t.Run("nested member", func(t *testing.T) {
		v, err := Eval(Path("parent.status"), child)
		require.NoError(t, err)
		assert.Equal(t, "active", v)
	})

	t.Run("collection member maps elements", func(t *testing.T) {
		v, err := Eval(Path("Siblings.Name"), child)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, v)
	})

	t.Run("member of missing navigation is nil", func(t *testing.T) {
		v, err := Eval(Path("Other.Status"), child)
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("object shape", func(t *testing.T) {
		v, err := Eval(Fields("Id", "Parent.Status"), child)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"Id": int64(7), "Status": "active"}, v)
	})

	t.Run("conditional and equality", func(t *testing.T) {
		e := If(Eq(Path("Id"), Const(7)), Const("seven"), Const("other"))
		v, err := Eval(e, child)
		require.NoError(t, err)
		assert.Equal(t, "seven", v)
	})

	t.Run("logical operators short circuit", func(t *testing.T) {
		e := Binary{Op: OpOr, Left: Const(true), Right: Path("Id")}
		v, err := Eval(e, child)
		require.NoError(t, err)
		assert.Equal(t, true, v)

		_, err = Eval(Binary{Op: OpAnd, Left: Const(true), Right: Path("Id")}, child)
		require.Error(t, err)
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(int(3), int64(3)))
	assert.True(t, Equal(float64(3), int32(3)))
	assert.True(t, Equal([]byte("x"), "x"))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, 0))
	assert.False(t, Equal("a", "b"))
}

func TestString(t *testing.T) {
	assert.Equal(t, "e.Parent.Status", String(Path("Parent.Status")))
	assert.Equal(t, "{Id: e.Id}", String(Fields("Id")))
}
