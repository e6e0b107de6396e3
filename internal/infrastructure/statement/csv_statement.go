package statement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

func (p *Parser) parseCSV(ctx context.Context, data []byte) (*Result, error) {
	csvParser, err := NewCSVParser(bytes.NewReader(data), p.csvOptions...)
	if err != nil {
		return nil, err
	}
	if err := csvParser.ParseHeader(); err != nil {
		return nil, err
	}
	if missing := csvParser.ValidateHeaders(RequiredColumns); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	result := &Result{Format: FormatCSV, Errors: NewErrorCollection(p.maxErrors)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := csvParser.ReadRow()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.TotalRows++
			result.Errors.Add(RowError{
				Row:     csvParser.CurrentRow(),
				Code:    ErrCodeImportMalformedRow,
				Message: err.Error(),
			})
			continue
		}
		if row.IsEmpty() {
			continue
		}

		result.TotalRows++
		if line, ok := p.csvLine(row, result.Errors); ok {
			result.Lines = append(result.Lines, line)
		}
	}
	return result, nil
}

func (p *Parser) csvLine(row *Row, errs *ErrorCollection) (Line, bool) {
	ok := true
	line := Line{
		Row:         row.LineNumber,
		Reference:   row.Get(ColumnReference),
		Description: row.Get(ColumnDescription),
	}

	if raw := row.Get(ColumnDate); raw == "" {
		errs.AddRequiredError(row.LineNumber, ColumnDate)
		ok = false
	} else if date, parsed := p.parseDate(raw); parsed {
		line.Date = date
	} else {
		errs.AddFormatError(row.LineNumber, ColumnDate, "date ("+strings.Join(p.dateLayouts, ", ")+")", raw)
		ok = false
	}

	if raw := row.Get(ColumnAmount); raw == "" {
		errs.AddRequiredError(row.LineNumber, ColumnAmount)
		ok = false
	} else if amount, err := parseAmount(raw); err != nil {
		errs.AddFormatError(row.LineNumber, ColumnAmount, "decimal", raw)
		ok = false
	} else if amount.IsZero() {
		errs.AddFormatError(row.LineNumber, ColumnAmount, "non-zero decimal", raw)
		ok = false
	} else {
		line.Amount = amount
	}

	return line, ok
}
