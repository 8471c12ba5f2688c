// Package report serializes import outcomes back to files: the per-row
// error report a user downloads to fix their source file, and the ledger
// export (CSV or workbook) whose shape the parser accepts on re-import.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/spendlog/spendlog/internal/importer"
)

// WriteErrorsCSV emits "row,message" pairs in the order given, which is
// row-number order as produced by the importer. Pure formatting: no
// validation, no reordering.
func WriteErrorsCSV(w io.Writer, errs []importer.ImportError) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"row", "message"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range errs {
		if err := cw.Write([]string{strconv.Itoa(e.Row), e.Message}); err != nil {
			return fmt.Errorf("write row %d: %w", e.Row, err)
		}
	}

	return cw.Error()
}
