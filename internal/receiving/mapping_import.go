package receiving

import (
	"fmt"
	"io"
	"strings"

	"coffee-backend/internal/database"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/xuri/excelize/v2"
)

var mappingColumns = []string{"product line", "processing type", "producer", "type", "reference number"}

// RowError describes a spreadsheet row that could not be imported.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ParseReferenceSheet reads reference mappings from the first sheet of an
// XLSX workbook. The first row must name the columns; their order is free.
func ParseReferenceSheet(r io.Reader) ([]models.ReferenceMapping, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "could not read workbook: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "could not read sheet: "+err.Error())
	}
	if len(rows) == 0 {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "sheet is empty")
	}

	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range mappingColumns {
		if _, ok := idx[col]; !ok {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("missing column %q", col))
		}
	}
	cell := func(row []string, col string) string {
		if i := idx[col]; i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var out []models.ReferenceMapping
	var rowErrs []RowError
	pos := map[string]int{}
	for n, row := range rows[1:] {
		req := ReferenceMappingRequest{
			ProductLine:     cell(row, "product line"),
			ProcessingType:  cell(row, "processing type"),
			Producer:        cell(row, "producer"),
			Type:            cell(row, "type"),
			ReferenceNumber: cell(row, "reference number"),
		}
		if req == (ReferenceMappingRequest{}) {
			continue
		}
		m, err := req.toModel()
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: n + 2, Error: err.Error()})
			continue
		}
		// a key repeated in the sheet keeps its last reference number
		key := strings.ToLower(strings.Join([]string{m.ProductLine, m.ProcessingType, string(m.Producer), string(m.Type)}, "|"))
		if i, ok := pos[key]; ok {
			out[i] = m
			continue
		}
		pos[key] = len(out)
		out = append(out, m)
	}
	return out, rowErrs, nil
}

// POST /api/reference-mappings/import
func ImportReferenceMappingsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return err
		}
		defer file.Close()

		mappings, rowErrs, err := ParseReferenceSheet(file)
		if err != nil {
			return err
		}
		if err := UpsertReferenceMappings(database.DB, mappings); err != nil {
			return err
		}

		log.Infof("imported %d reference mappings from %s (%d rows rejected)", len(mappings), fileHeader.Filename, len(rowErrs))
		return c.JSON(fiber.Map{
			"message":  "Reference mappings imported",
			"imported": len(mappings),
			"errors":   rowErrs,
		})
	}
}
