// Package fetcher loads comment id lists from local files and fetches
// comment records from regulations.gov.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// idHeaders are the column names recognized as the comment id column, in
// priority order. Bulk exports from regulations.gov use "Document ID".
var idHeaders = []string{"document id", "comment id", "commentid", "id"}

// LoadCommentIDs reads a comment id list from path. The format follows the
// extension: .csv (id column located by header, first column otherwise),
// .xlsx (same rule, first sheet), anything else one id per line. Order is
// preserved and blank entries are dropped.
func LoadCommentIDs(ctx context.Context, path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSVIDs(ctx, path)
	case ".xlsx":
		return loadXLSXIDs(path)
	default:
		return loadLineIDs(path)
	}
}

func loadCSVIDs(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open id list %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read csv header %s", path)
	}

	col, headerIsData := idColumn(header)

	var ids []string
	if headerIsData {
		ids = appendID(ids, header[col])
	}
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: read csv row %s", path)
		}
		if col < len(row) {
			ids = appendID(ids, row[col])
		}
	}

	zap.L().Info("fetcher: loaded comment ids",
		zap.String("path", path),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

func loadXLSXIDs(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("fetcher: xlsx %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(sheet.Rows[0].Cells))
	for j, cell := range sheet.Rows[0].Cells {
		header[j] = cell.String()
	}
	col, headerIsData := idColumn(header)

	var ids []string
	if headerIsData {
		ids = appendID(ids, header[col])
	}
	for _, row := range sheet.Rows[1:] {
		if col < len(row.Cells) {
			ids = appendID(ids, row.Cells[col].String())
		}
	}

	zap.L().Info("fetcher: loaded comment ids",
		zap.String("path", path),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

func loadLineIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read id list %s", path)
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		ids = appendID(ids, line)
	}
	return ids, nil
}

// idColumn locates the id column in a header row. When no recognized header
// is present the first column is used and the header row itself is treated
// as data (a headerless single-column export).
func idColumn(header []string) (col int, headerIsData bool) {
	for _, want := range idHeaders {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i, false
			}
		}
	}
	return 0, true
}

func appendID(ids []string, raw string) []string {
	if id := strings.TrimSpace(raw); id != "" {
		return append(ids, id)
	}
	return ids
}
