package excel_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncer/src/excel"
	"syncer/src/schemas"
)

var peopleObject = schemas.ObjectType{
	Name:      "people",
	SheetName: "People",
	Fields:    []string{"name", "emails", "jobTitle"},
}

var companiesObject = schemas.ObjectType{
	Name:      "companies",
	SheetName: "Companies",
	Fields:    []string{"name", "domainName"},
}

func newHandler(t *testing.T) *excel.ExcelHandler {
	t.Helper()
	return excel.NewExcelHandler(filepath.Join(t.TempDir(), "crm.xlsx"))
}

func TestExcelHandlerReadAll(t *testing.T) {
	t.Run("MissingWorkbookReadsAsEmpty", func(t *testing.T) {
		records, err := newHandler(t).ReadAll(peopleObject)

		require.NoError(t, err)
		assert.Nil(t, records)
	})

	t.Run("MissingSheetReadsAsEmpty", func(t *testing.T) {
		handler := newHandler(t)
		require.NoError(t, handler.WriteAll(peopleObject, nil))

		records, err := handler.ReadAll(companiesObject)

		require.NoError(t, err)
		assert.Nil(t, records)
	})
}

func TestExcelHandlerRoundTrip(t *testing.T) {
	handler := newHandler(t)

	written := []schemas.Record{
		{
			"id":        "p1",
			"updatedAt": "2024-05-01T10:00:00Z",
			"name":      map[string]interface{}{"firstName": "Ada", "lastName": "Lovelace"},
			"emails":    map[string]interface{}{"primaryEmail": "ada@example.com"},
			"jobTitle":  "Engineer",
		},
		{
			"id":        "p2",
			"updatedAt": "2024-05-01T11:00:00Z",
			"name":      map[string]interface{}{"firstName": "Grace", "lastName": "Hopper"},
			"jobTitle":  "Admiral",
		},
	}
	require.NoError(t, handler.WriteAll(peopleObject, written))

	records, err := handler.ReadAll(peopleObject)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "p1", records[0].ID())
	assert.Equal(t, "2024-05-01T10:00:00Z", records[0].UpdatedAtString())
	assert.Equal(t, "Ada Lovelace", records[0]["name"])
	assert.Equal(t, "ada@example.com", records[0]["emails"])
	assert.Equal(t, 2, records[0].RowRef())

	assert.Equal(t, "p2", records[1].ID())
	assert.Equal(t, "", records[1]["emails"])
	assert.Equal(t, 3, records[1].RowRef())
}

func TestExcelHandlerUpsert(t *testing.T) {
	t.Run("UpdatesMatchedRowsAndAppendsNewOnes", func(t *testing.T) {
		handler := newHandler(t)
		require.NoError(t, handler.WriteAll(peopleObject, []schemas.Record{
			{"id": "p1", "updatedAt": "2024-05-01T10:00:00Z", "jobTitle": "Engineer"},
		}))

		require.NoError(t, handler.Upsert(peopleObject, []schemas.Record{
			{"id": "p1", "updatedAt": "2024-05-01T12:00:00Z", "jobTitle": "CTO"},
			{"id": "p2", "updatedAt": "2024-05-01T12:00:00Z", "jobTitle": "Designer"},
		}))

		records, err := handler.ReadAll(peopleObject)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "CTO", records[0]["jobTitle"])
		assert.Equal(t, "p2", records[1].ID())
	})

	t.Run("WritesBackInPlaceUsingTheRowAnchor", func(t *testing.T) {
		handler := newHandler(t)
		require.NoError(t, handler.WriteAll(peopleObject, []schemas.Record{
			{"name": "Ada Lovelace"},
		}))

		rows, err := handler.ReadAll(peopleObject)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, "", rows[0].ID())

		created := schemas.Record{
			"id":                "gen-1",
			"updatedAt":         "2024-05-01T12:00:00Z",
			"name":              "Ada Lovelace",
			schemas.FieldRowRef: rows[0].RowRef(),
		}
		require.NoError(t, handler.Upsert(peopleObject, []schemas.Record{created}))

		rows, err = handler.ReadAll(peopleObject)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "gen-1", rows[0].ID())
	})

	t.Run("CreatesTheWorkbookOnFirstUpsert", func(t *testing.T) {
		handler := newHandler(t)

		require.NoError(t, handler.Upsert(peopleObject, []schemas.Record{
			{"id": "p1", "updatedAt": "2024-05-01T10:00:00Z", "jobTitle": "Engineer"},
		}))

		records, err := handler.ReadAll(peopleObject)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "p1", records[0].ID())
	})
}
