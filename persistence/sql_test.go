package persistence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitScript(t *testing.T) {
	stmts := splitScript("CREATE TABLE a (x);\n\nCREATE TABLE b (y);\n;  \n")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE TABLE b")

	assert.Empty(t, splitScript("  ;\n;"))
}

func TestDefaultRangeStatement_Operators(t *testing.T) {
	cases := []struct {
		startInc, endInc bool
		wantStart        string
		wantEnd          string
	}{
		{true, true, ">= ?", "<= ?"},
		{true, false, ">= ?", "< ?"},
		{false, true, "> ?", "<= ?"},
		{false, false, "> ?", "< ?"},
	}
	for _, tc := range cases {
		stmt := defaultRangeStatement(tc.startInc, tc.endInc, false)
		assert.Contains(t, stmt, "CAST(r.value AS INTEGER) "+tc.wantStart)
		assert.Contains(t, stmt, "CAST(r.value AS INTEGER) "+tc.wantEnd)
		assert.NotContains(t, stmt, "e.id > ?")
		assert.True(t, strings.HasSuffix(stmt, "ORDER BY e.id LIMIT ?"))
	}
}

func TestDefaultRangeStatement_PaginationCursor(t *testing.T) {
	stmt := defaultRangeStatement(true, true, true)
	assert.Contains(t, stmt, "e.id > ?")
	// The cursor predicate precedes ORDER BY/LIMIT so the placeholder
	// order matches the argument order.
	assert.Less(t, strings.Index(stmt, "e.id > ?"), strings.Index(stmt, "ORDER BY"))
}

func TestDefaultSQL_EmbedsSchema(t *testing.T) {
	catalog := DefaultSQL()
	for _, table := range []string{"entity", "entity_property", "signal_queue", "delayed_signal_queue", "signal_store"} {
		assert.Contains(t, catalog.CreateSchema, table)
	}
}
