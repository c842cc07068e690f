package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringdb/ringdb/internal/graph"
	"github.com/ringdb/ringdb/internal/xcrypto"
)

// ristretto applies Set calls through an async buffer, so tests poll briefly
// rather than assume a Set is visible to the very next Get.
const (
	waitFor = 200 * time.Millisecond
	tick    = 5 * time.Millisecond
)

func newTestNode(t *testing.T, data string) *graph.Node {
	t.Helper()
	id, err := xcrypto.NewUid()
	require.NoError(t, err)
	return &graph.Node{ID: id, Entity: "Greetings", JSONData: data}
}

func TestCaches_PutReadGetRead(t *testing.T) {
	c, err := New(64, 64)
	require.NoError(t, err)
	defer c.Close()

	n := newTestNode(t, `{"message":"hi"}`)
	c.PutRead(n)

	require.Eventually(t, func() bool {
		_, ok := c.GetRead(n.ID)
		return ok
	}, waitFor, tick)

	got, ok := c.GetRead(n.ID)
	require.True(t, ok)
	assert.Equal(t, n.ID, got.ID)
}

func TestCaches_PutWriteEvictsRead(t *testing.T) {
	c, err := New(64, 64)
	require.NoError(t, err)
	defer c.Close()

	n := newTestNode(t, `{"message":"first"}`)
	c.PutRead(n)
	require.Eventually(t, func() bool {
		_, ok := c.GetRead(n.ID)
		return ok
	}, waitFor, tick)

	updated := &graph.Node{ID: n.ID, Entity: n.Entity, JSONData: `{"message":"second"}`}
	c.PutWrite(updated)

	require.Eventually(t, func() bool {
		_, ok := c.GetRead(n.ID)
		return !ok
	}, waitFor, tick)

	got, ok := c.GetWrite(n.ID)
	require.True(t, ok)
	assert.Equal(t, `{"message":"second"}`, got.JSONData)
}

func TestCaches_Evict(t *testing.T) {
	c, err := New(64, 64)
	require.NoError(t, err)
	defer c.Close()

	n := newTestNode(t, `{"message":"hi"}`)
	c.PutRead(n)
	c.PutWrite(n)
	require.Eventually(t, func() bool {
		_, okR := c.GetRead(n.ID)
		_, okW := c.GetWrite(n.ID)
		return okW && !okR
	}, waitFor, tick)

	c.Evict(n.ID)

	require.Eventually(t, func() bool {
		_, okR := c.GetRead(n.ID)
		_, okW := c.GetWrite(n.ID)
		return !okR && !okW
	}, waitFor, tick)
}

func TestCaches_GetMissing(t *testing.T) {
	c, err := New(64, 64)
	require.NoError(t, err)
	defer c.Close()

	id, err := xcrypto.NewUid()
	require.NoError(t, err)

	_, ok := c.GetRead(id)
	assert.False(t, ok)
	_, ok = c.GetWrite(id)
	assert.False(t, ok)
}

func TestCostOf(t *testing.T) {
	n := &graph.Node{JSONData: "12345", BinaryData: []byte{1, 2, 3}}
	assert.Equal(t, int64(5+3+fixedNodeOverhead), costOf(n))
}

func TestNewCache_SmallBudgetStillUsable(t *testing.T) {
	c, err := New(1, 1)
	require.NoError(t, err)
	defer c.Close()

	n := newTestNode(t, `{"message":"tiny budget"}`)
	c.PutRead(n)
	require.Eventually(t, func() bool {
		_, ok := c.GetRead(n.ID)
		return ok
	}, waitFor, tick)
}
