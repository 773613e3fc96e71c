package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalDriverRecordsCalls(t *testing.T) {
	var buf bytes.Buffer
	driver := NewJournalDriver(&buf)
	ctx := context.Background()

	rows, err := driver.ExecuteQuery(ctx, "MERGE (c:Company {key: $key})", map[string]any{"key": "acme"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, driver.EnsureIndex(ctx, "Company", "key"))
	require.NoError(t, driver.Close())

	dec := json.NewDecoder(&buf)

	var first JournalEntry
	require.NoError(t, dec.Decode(&first))
	assert.Equal(t, "query", first.Kind)
	assert.Contains(t, first.Query, "MERGE")
	assert.Equal(t, "acme", first.Params["key"])

	var second JournalEntry
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "index", second.Kind)
	assert.Equal(t, "Company", second.Label)
	assert.Equal(t, "key", second.Prop)
}

func TestJournalDriverHonoursContext(t *testing.T) {
	var buf bytes.Buffer
	driver := NewJournalDriver(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.ExecuteQuery(ctx, "RETURN 1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}
