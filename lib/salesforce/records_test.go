package salesforce

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenRecords(t *testing.T) {
	raw := []map[string]any{
		{
			"attributes": map[string]any{"type": "Opportunity"},
			"Name":       "Generator deal",
			"Amount":     json.Number("1049.50"),
			"IsClosed":   false,
			"Owner": map[string]any{
				"attributes": map[string]any{"type": "User"},
				"Name":       "Sean",
			},
		},
	}

	records := FlattenRecords(raw)
	require.Len(t, records, 1)
	rec := records[0]

	assert.Equal(t, "Generator deal", rec["Name"])
	assert.Equal(t, false, rec["IsClosed"])
	assert.Equal(t, "Sean", rec["Owner.Name"])
	assert.NotContains(t, rec, "attributes")
	assert.NotContains(t, rec, "Owner")

	amount, ok := rec["Amount"].(decimal.Decimal)
	require.True(t, ok, "Amount should be a decimal, got %T", rec["Amount"])
	assert.Equal(t, "1049.5", amount.String())
}

func TestClassify(t *testing.T) {
	nested := classify(map[string]any{"Name": "x"})
	assert.Equal(t, KindNested, nested.Kind)

	scalar := classify("plain")
	assert.Equal(t, KindScalar, scalar.Kind)
	assert.Equal(t, "plain", scalar.Scalar)

	null := classify(nil)
	assert.Equal(t, KindScalar, null.Kind)
	assert.Nil(t, null.Scalar)
}

func TestNormalizeScalarBadNumber(t *testing.T) {
	// json.Number never holds garbage in practice, but a bad value has to
	// degrade to its string form instead of vanishing.
	assert.Equal(t, "1e", normalizeScalar(json.Number("1e")))
}
