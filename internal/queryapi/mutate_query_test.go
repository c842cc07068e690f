package queryapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

const (
	cacheWaitFor = 200 * time.Millisecond
	cacheTick    = 5 * time.Millisecond
)

func TestMutateQueryDelete_RoundTrip(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	ctx := context.Background()

	out, err := h.Mutate(ctx, `Greetings{ message:"Hello World" }`, nil)
	require.NoError(t, err)

	var mutated map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &mutated))
	rows := mutated["Greetings"]
	require.Len(t, rows, 1)
	id, _ := rows[0]["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "Hello World", rows[0]["message"])

	queryOut, err := h.Query(ctx, `Greetings(id=$id){message}`, map[string]any{"id": id})
	require.NoError(t, err)

	var queried map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(queryOut), &queried))
	require.Len(t, queried["Greetings"], 1)
	assert.Equal(t, "Hello World", queried["Greetings"][0]["message"])

	err = h.Delete(ctx, `Greetings(id=$id){message}`, map[string]any{"id": id})
	require.NoError(t, err)

	afterDelete, err := h.Query(ctx, `Greetings(id=$id){message}`, map[string]any{"id": id})
	require.NoError(t, err)
	var afterDeleteResult map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(afterDelete), &afterDeleteResult))
	assert.Empty(t, afterDeleteResult["Greetings"])
}

func TestQuery_UnfilteredScansAllRows(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	ctx := context.Background()

	_, err := h.Mutate(ctx, `Greetings{ message:"one" }`, nil)
	require.NoError(t, err)
	_, err = h.Mutate(ctx, `Greetings{ message:"two" }`, nil)
	require.NoError(t, err)

	out, err := h.Query(ctx, `Greetings{message}`, nil)
	require.NoError(t, err)

	var result map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result["Greetings"], 2)
}

func TestMutate_UnknownEntity(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	_, err := h.Mutate(context.Background(), `Unknown{ message:"hi" }`, nil)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestQuery_UnknownEntity(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	_, err := h.Query(context.Background(), `Unknown{message}`, nil)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestDelete_RequiresIDFilter(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	err := h.Delete(context.Background(), `Greetings{message}`, nil)
	assert.ErrorIs(t, err, ErrParsing)
}

func TestMutationStream_AppliesBatches(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	in, errs := h.MutationStream()

	in <- MutationBatch{Room: h.privateRoom, Entity: "Greetings", Fields: map[string]any{"message": "streamed"}}
	close(in)

	for err := range errs {
		require.NoError(t, err)
	}

	out, err := h.Query(context.Background(), `Greetings{message}`, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "streamed")
}

func TestMutate_CacheIsWarmAfterWrite(t *testing.T) {
	h := newTestHandle(t, "Greetings{message}")
	ctx := context.Background()

	out, err := h.Mutate(ctx, `Greetings{ message:"cached" }`, nil)
	require.NoError(t, err)

	var mutated map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &mutated))
	id := mutated["Greetings"][0]["id"].(string)

	parsed, err := xcrypto.ParseUid(id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := h.caches.GetWrite(parsed)
		return ok
	}, cacheWaitFor, cacheTick)
}
