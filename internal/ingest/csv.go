package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// LoadCSV reads a delimited review table from disk.
func (l *Loader) LoadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	table, err := l.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return table, nil
}

// ReadCSV reads a delimited review table: first row is the header, every
// following row is one raw review record. Quoting is lazy and variable
// field counts are tolerated, matching what spreadsheet exports produce.
func (l *Loader) ReadCSV(r io.Reader) (*Table, error) {
	header, rows, err := readDelimited(r)
	if err != nil {
		return nil, err
	}

	records, err := l.recordsFromRows(header, rows)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Int("rows", len(records)).Msg("loaded review rows")

	return &Table{Records: records}, nil
}

// LoadMembersCSV reads a delimited member directory from disk.
func (l *Loader) LoadMembersCSV(path string) ([]domain.Member, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	members, err := l.ReadMembersCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return members, nil
}

// ReadMembersCSV reads a delimited member directory.
func (l *Loader) ReadMembersCSV(r io.Reader) ([]domain.Member, error) {
	header, rows, err := readDelimited(r)
	if err != nil {
		return nil, err
	}

	members, err := l.membersFromRows(header, rows)
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Int("rows", len(members)).Msg("loaded member rows")

	return members, nil
}

func readDelimited(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errs.ErrMissingHeader
		}

		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	return header, rows, nil
}
