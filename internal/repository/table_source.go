package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
)

const utf8BOM = "\ufeff"

// CSVSource reads comma-separated input files.
type CSVSource struct{}

func (CSVSource) Supports(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func (CSVSource) Read(ctx context.Context, path string) (*models.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return &models.RawTable{Source: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	out := &models.RawTable{Source: path, Header: cleanHeader(header)}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if blankRecord(rec) {
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

// XLSXSource reads the first non-empty sheet of a workbook, or the named sheet.
type XLSXSource struct {
	Sheet string
}

func (XLSXSource) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".xlsx" || ext == ".xlsm"
}

func (s XLSXSource) Read(ctx context.Context, path string) (*models.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if s.Sheet != "" {
		sheets = []string{s.Sheet}
	}
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
		}
		if len(rows) == 0 {
			continue
		}
		out := &models.RawTable{Source: path, Header: cleanHeader(rows[0])}
		for _, rec := range rows[1:] {
			if !blankRecord(rec) {
				out.Records = append(out.Records, rec)
			}
		}
		return out, nil
	}
	return &models.RawTable{Source: path}, nil
}

// MultiSource dispatches on file extension.
type MultiSource struct {
	sources []domrepo.TableSource
}

func NewMultiSource(sources ...domrepo.TableSource) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) Supports(path string) bool {
	for _, s := range m.sources {
		if s.Supports(path) {
			return true
		}
	}
	return false
}

func (m *MultiSource) Read(ctx context.Context, path string) (*models.RawTable, error) {
	for _, s := range m.sources {
		if s.Supports(path) {
			return s.Read(ctx, path)
		}
	}
	return nil, fmt.Errorf("no reader for %s", path)
}

func cleanHeader(h []string) []string {
	out := make([]string, len(h))
	for i, c := range h {
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func blankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var (
	_ domrepo.TableSource = CSVSource{}
	_ domrepo.TableSource = XLSXSource{}
	_ domrepo.TableSource = (*MultiSource)(nil)
)
