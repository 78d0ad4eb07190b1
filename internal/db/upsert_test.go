package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "rooms",
		Columns:      []string{"business_id", "biz_item_id"},
		ConflictKeys: []string{"business_id", "biz_item_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "rooms",
		ConflictKeys: []string{"business_id"},
	}, [][]any{{"b1", "r1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:   "rooms",
		Columns: []string{"business_id", "biz_item_id"},
	}, [][]any{{"b1", "r1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_TempTableCopyConflict(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_rooms"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_rooms"}, []string{"business_id", "biz_item_id", "name"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "rooms" .+ ON CONFLICT \("business_id", "biz_item_id"\) DO UPDATE SET "name" = EXCLUDED\."name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "rooms",
		Columns:      []string{"business_id", "biz_item_id", "name"},
		ConflictKeys: []string{"business_id", "biz_item_id"},
	}, [][]any{
		{"b1", "r1", "A룸"},
		{"b1", "r2", "B룸"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"rooms", `"rooms"`},
		{"booking.rooms", `"booking"."rooms"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"business_id", "biz_item_id", "name"})
	assert.Equal(t, `"business_id", "biz_item_id", "name"`, result)
}
