package vfs

import (
	"testing"

	"github.com/ValentinKolb/kvfs/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	_, ok := reg.Default()
	assert.False(t, ok)
	_, err := reg.Find("")
	assert.True(t, IsCode(err, CodeNotFound))

	kv1 := newTestVFS(t, Options{})
	kv2, err := NewKVVFS("kv2", lstore.NewLocalStore(), Options{Workers: 1})
	require.NoError(t, err)
	defer kv2.Close()

	// the first registration becomes the default
	require.NoError(t, reg.Register("kv1", kv1, false))
	def, ok := reg.Default()
	require.True(t, ok)
	assert.Same(t, kv1, def)

	require.NoError(t, reg.Register("kv2", kv2, false))
	def, _ = reg.Default()
	assert.Same(t, kv1, def)

	err = reg.Register("kv2", kv2, true)
	assert.True(t, IsCode(err, CodeExists), "got %v", err)

	assert.True(t, IsCode(reg.Register("", kv2, false), CodeInvalid))
	assert.True(t, IsCode(reg.Register("nil", nil, false), CodeInvalid))

	found, err := reg.Find("kv2")
	require.NoError(t, err)
	assert.Same(t, kv2, found)

	_, err = reg.Find("kv3")
	assert.True(t, IsCode(err, CodeNotFound))

	assert.Equal(t, []string{"kv1", "kv2"}, reg.Names())

	require.NoError(t, reg.Unregister("kv1"))
	_, ok = reg.Default()
	assert.False(t, ok, "unregistering the default leaves no default")
	assert.True(t, IsCode(reg.Unregister("kv1"), CodeNotFound))

	require.NoError(t, reg.Register("kv1", kv1, true))
	def, _ = reg.Default()
	assert.Same(t, kv1, def)
}

func TestErrorFormatting(t *testing.T) {
	err := newError(CodeNotFound, "open", "users.db", nil)
	assert.Equal(t, `vfs open "users.db" (code NotFound)`, err.Error())
	assert.ErrorIs(t, err, &Error{Code: CodeNotFound})
	assert.NotErrorIs(t, err, &Error{Code: CodeExists})
}
