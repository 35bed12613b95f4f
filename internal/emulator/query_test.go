package emulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/docdb-client/pkg/docdb"
)

func andersen() map[string]interface{} {
	return map[string]interface{}{
		"id":         "Andersen-1",
		"lastName":   "Andersen",
		"district":   "WA5",
		"registered": true,
		"children":   2.0,
		"address":    map[string]interface{}{"state": "WA", "city": "Seattle"},
		"value":      "keyword-named",
	}
}

func mustParse(t *testing.T, text string, params ...docdb.QueryParameter) *query {
	t.Helper()

	q, err := parseQuery(&docdb.QuerySpec{Query: text, Parameters: params})
	require.NoError(t, err, text)

	return q
}

func TestQueryMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		match bool
	}{
		{"SELECT * FROM c", true},
		{"SELECT * FROM Family WHERE Family.lastName IN ('Andersen', 'Wakefield', 'Johnson')", true},
		{"SELECT * FROM Family f WHERE f.lastName NOT IN ('Andersen')", false},
		{"SELECT * FROM c WHERE c.lastName = 'Andersen' AND c.registered = true", true},
		{"SELECT * FROM c WHERE c.lastName = 'Smith' OR c.address.city = 'Seattle'", true},
		{"SELECT * FROM c WHERE NOT (c.lastName = 'Smith')", true},
		{"SELECT * FROM c WHERE c.lastName != 'Smith'", true},
		{"SELECT * FROM c WHERE c.lastName <> 'Andersen'", false},
		{"SELECT * FROM c WHERE c.children > 1 AND c.children <= 2", true},
		{"SELECT * FROM c WHERE c.children >= 3", false},
		{"SELECT * FROM c WHERE c.children < -1", false},
		{`SELECT * FROM c WHERE c["address"]["state"] = "WA"`, true},
		{"SELECT * FROM c WHERE c.value = 'keyword-named'", true},
		{"SELECT * FROM c WHERE c.spouse = null", false},
		{"SELECT * FROM c WHERE NOT (c.spouse = 'x')", false},
		{"SELECT * FROM c WHERE c.children = '2'", false},
		{"SELECT * FROM c WHERE c.registered", true},
		{"select * from c where c.lastName = 'Andersen'", true},
	}

	doc := andersen()

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.match, mustParse(t, tt.query).matches(doc))
		})
	}
}

func TestQueryParameters(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "SELECT * FROM c WHERE c.lastName = @lastName AND c.children = @children",
		docdb.QueryParameter{Name: "@lastName", Value: "Andersen"},
		docdb.QueryParameter{Name: "@children", Value: 2})
	assert.True(t, q.matches(andersen()))

	q = mustParse(t, "SELECT * FROM c WHERE c.district IN (@a, @b)",
		docdb.QueryParameter{Name: "@a", Value: "NY23"},
		docdb.QueryParameter{Name: "@b", Value: "WA5"})
	assert.True(t, q.matches(andersen()))
}

func TestQueryProjection(t *testing.T) {
	t.Parallel()

	q := mustParse(t, "SELECT f.id, f.address.city AS city, f.missing FROM Families f")
	assert.Equal(t, map[string]interface{}{"id": "Andersen-1", "city": "Seattle"}, q.project(andersen()))

	doc := andersen()
	assert.Equal(t, doc, mustParse(t, "SELECT * FROM c").project(doc))
}

func TestQueryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		err   error
	}{
		{"SELECT * FROM c WHERE c.lastName = @missing", ErrUnboundParameter},
		{"SELECT TOP 1 * FROM c", ErrUnsupportedClause},
		{"SELECT VALUE c.id FROM c", ErrUnsupportedClause},
		{"SELECT * FROM c ORDER BY c.id", ErrUnsupportedClause},
		{"SELECT c FROM c", ErrUnsupportedClause},
		{"SELECT * FROM c WHERE c.lastName = 'open", ErrQuerySyntax},
		{"SELECT * FROM c WHERE c.a ; 1", ErrQuerySyntax},
		{"SELECT * FROM c WHERE x.lastName = 'a'", ErrQuerySyntax},
		{"SELECT * WHERE c.a = 1", ErrQuerySyntax},
		{"DELETE FROM c", ErrQuerySyntax},
		{"SELECT * FROM c WHERE c.a IN 1", ErrQuerySyntax},
		{"SELECT * FROM c WHERE (c.a = 1", ErrQuerySyntax},
		{"SELECT * FROM c c2 extra", ErrQuerySyntax},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			_, err := parseQuery(&docdb.QuerySpec{Query: tt.query})
			require.ErrorIs(t, err, tt.err)
		})
	}
}
