// Package dbtest包含所有键值存储后端共用的测试。
package dbtest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/radiation-octopus/octopus-triestore/typedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDatabaseSuite对New返回的存储运行全部测试。
func TestDatabaseSuite(t *testing.T, New func() typedb.KeyValueStore) {
	t.Run("KeyValueOperations", func(t *testing.T) {
		db := New()
		defer db.Close()

		key, value := []byte("foo"), []byte("bar")
		ok, err := db.IsHas(key)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = db.Get(key)
		assert.True(t, errors.Is(err, typedb.ErrNotFound), "missing key: %v", err)

		require.NoError(t, db.Put(key, value))
		got, err := db.Get(key)
		require.NoError(t, err)
		assert.Equal(t, value, got)

		// 返回值与存储互不影响
		got[0] = 'x'
		got, _ = db.Get(key)
		assert.Equal(t, value, got)

		require.NoError(t, db.Delete(key))
		ok, err = db.IsHas(key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Batch", func(t *testing.T) {
		db := New()
		defer db.Close()

		require.NoError(t, db.Put([]byte("stale"), []byte{1}))
		b := db.NewBatchWithSize(4)
		require.NoError(t, b.Put([]byte("1"), []byte{1}))
		require.NoError(t, b.Put([]byte("2"), []byte{2}))
		require.NoError(t, b.Delete([]byte("stale")))
		assert.NotZero(t, b.ValueSize())

		// 写入之前不可见
		ok, _ := db.IsHas([]byte("1"))
		assert.False(t, ok)

		require.NoError(t, b.Write())
		for _, k := range []string{"1", "2"} {
			ok, err := db.IsHas([]byte(k))
			require.NoError(t, err)
			assert.True(t, ok, "key %s", k)
		}
		ok, _ = db.IsHas([]byte("stale"))
		assert.False(t, ok)

		// 重放到另一个批处理
		replay := db.NewBatch()
		require.NoError(t, b.Replay(replay))
		assert.Equal(t, b.ValueSize(), replay.ValueSize())

		b.Reset()
		assert.Zero(t, b.ValueSize())
	})

	t.Run("Iterator", func(t *testing.T) {
		db := New()
		defer db.Close()

		for _, k := range []string{"a1", "a3", "a2", "b1", "c"} {
			require.NoError(t, db.Put([]byte(k), []byte("v"+k)))
		}
		tests := []struct {
			prefix, start string
			want          []string
		}{
			{"", "", []string{"a1", "a2", "a3", "b1", "c"}},
			{"a", "", []string{"a1", "a2", "a3"}},
			{"a", "2", []string{"a2", "a3"}},
			{"b", "", []string{"b1"}},
			{"d", "", nil},
		}
		for _, tt := range tests {
			it := db.NewIterator([]byte(tt.prefix), []byte(tt.start))
			var have []string
			for it.Next() {
				have = append(have, string(it.Key()))
				assert.True(t, bytes.Equal(it.Value(), []byte("v"+string(it.Key()))))
			}
			require.NoError(t, it.Error())
			it.Release()
			assert.Equal(t, tt.want, have, "prefix %q start %q", tt.prefix, tt.start)
		}
	})
}
