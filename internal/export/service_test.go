package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
	"loan-intake/internal/records"
)

func receipt(customer string, amount int64) []extraction.Entry {
	return []extraction.Entry{
		{Name: "Amount_Billed", Value: amount},
		{Name: "Bill_Issue_Date", Value: "2024-01-01"},
		{Name: "Customer_Name", Value: customer},
		{Name: "Document_Type", Value: "utility_receipt"},
		{Name: "Service_Provider", Value: "NileElectric"},
	}
}

func TestXLSXWritesHeaderAndRowsAcrossPages(t *testing.T) {
	store := records.NewMemoryStore()
	ctx := context.Background()
	for i, name := range []string{"A. Hassan", "B. Farid", "C. Nour"} {
		_, err := store.Insert(ctx, documents.FamilyUtilityReceipt, receipt(name, int64(100*(i+1))))
		require.NoError(t, err)
	}

	svc := &Service{Store: store, PageSize: 2}
	data, err := svc.XLSX(ctx, documents.FamilyUtilityReceipt)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"utility_receipt"}, f.GetSheetList())
	rows, err := f.GetRows("utility_receipt")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"id", "created_at", "Amount_Billed", "Bill_Issue_Date", "Customer_Name", "Document_Type", "Service_Provider"}, rows[0])
	assert.Equal(t, "3", rows[1][0])
	assert.Equal(t, "300", rows[1][2])
	assert.Equal(t, "C. Nour", rows[1][4])
	assert.Equal(t, "1", rows[3][0])
}

func TestXLSXNationalIDUsesMergedColumns(t *testing.T) {
	svc := NewService(records.NewMemoryStore())
	data, err := svc.XLSX(context.Background(), documents.FamilyNationalID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("national_id")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{
		"id", "created_at", "Document_Type", "Full_Name", "Address", "National_ID", "Date_of_Birth",
		"Issue_Date", "Gender", "Expiry_Date",
	}, rows[0])
}

func TestXLSXUnknownFamily(t *testing.T) {
	svc := NewService(records.NewMemoryStore())
	_, err := svc.XLSX(context.Background(), documents.Family("payslip"))
	assert.True(t, errors.Is(err, records.ErrUnknownFamily))
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, time.March, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "hr_letter-20260304-050607.xlsx", FileName(documents.FamilyHRLetter, now))
}
