package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
)

func TestMemoryStoreInsertAndList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, documents.FamilyUtilityReceipt, receiptFields())
		require.NoError(t, err)
	}

	rows, err := store.List(ctx, documents.FamilyUtilityReceipt, 2, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].ID)
	assert.Equal(t, int64(2), rows[1].ID)

	rows, err = store.List(ctx, documents.FamilyUtilityReceipt, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)
}

func TestMemoryStoreRejectsUnknownColumn(t *testing.T) {
	store := NewMemoryStore()
	fields := append(receiptFields(), extraction.Entry{Name: "Meter_Number", Value: "X1"})

	_, err := store.Insert(context.Background(), documents.FamilyUtilityReceipt, fields)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Meter_Number", perr.Column)

	rows, err := store.List(context.Background(), documents.FamilyUtilityReceipt, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPersistFlattensComposite(t *testing.T) {
	store := NewMemoryStore()
	front := extraction.Record{Schema: "national_id_front", Entries: []extraction.Entry{
		{Name: "Document_Type", Value: "national_id_front"},
		{Name: "Full_Name", Value: "Mona Adel"},
	}}
	back := extraction.Record{Schema: "national_id_back", Entries: []extraction.Entry{
		{Name: "Document_Type", Value: "national_id_back"},
		{Name: "Gender", Value: "Female"},
	}}

	id, err := Persist(context.Background(), store, documents.NationalIDBack, extraction.CompositeRecord{Front: front, Back: back})
	require.NoError(t, err)

	rows, err := store.List(context.Background(), documents.FamilyNationalID, 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, []extraction.Entry{
		{Name: "Document_Type", Value: "national_id_front"},
		{Name: "Full_Name", Value: "Mona Adel"},
		{Name: "Gender", Value: "Female"},
	}, rows[0].Fields)
}
