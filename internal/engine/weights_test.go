package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   WeightTable
		wantErr bool
	}{
		{
			name:  "valid",
			table: testTable(),
		},
		{
			name: "base below min",
			table: WeightTable{
				{Factor: "injury_severity", BaseWeight: 0.1, MinWeight: 0.5, MaxWeight: 1.5},
			},
			wantErr: true,
		},
		{
			name: "base above max",
			table: WeightTable{
				{Factor: "injury_severity", BaseWeight: 2.0, MinWeight: 0.5, MaxWeight: 1.5},
			},
			wantErr: true,
		},
		{
			name: "empty factor name",
			table: WeightTable{
				{Factor: "", BaseWeight: 1.0, MinWeight: 0.5, MaxWeight: 1.5},
			},
			wantErr: true,
		},
		{
			name: "degenerate but legal single-point range",
			table: WeightTable{
				{Factor: "injury_severity", BaseWeight: 1.0, MinWeight: 1.0, MaxWeight: 1.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWeightEntry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWeightVectorWithIsCopyOnWrite(t *testing.T) {
	original := WeightVector{"injury_severity": 1.0}
	modified := original.With("injury_severity", 1.2)

	assert.Equal(t, 1.0, original["injury_severity"])
	assert.Equal(t, 1.2, modified["injury_severity"])
}

func TestWeightTableClamp(t *testing.T) {
	table := testTable()

	assert.Equal(t, 1.5, table.Clamp("injury_severity", 3.0))
	assert.Equal(t, 0.5, table.Clamp("injury_severity", 0.0))
	assert.Equal(t, 1.0, table.Clamp("injury_severity", 1.0))
	// Unknown factors pass through untouched.
	assert.Equal(t, 7.0, table.Clamp("unknown", 7.0))
}

func TestBaseVectorMatchesTableOrder(t *testing.T) {
	table := testTable()
	v := table.BaseVector()

	require.Len(t, v, len(table))
	for _, e := range table {
		assert.Equal(t, e.BaseWeight, v[e.Factor])
	}
}
