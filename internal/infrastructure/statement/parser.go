// Package statement parses bank statement files (CSV and OFX) into statement
// lines ready to be stored as bank transactions.
package statement

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Format identifies a statement file format
type Format string

const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

// CSV columns
const (
	ColumnDate        = "date"
	ColumnAmount      = "amount"
	ColumnReference   = "reference"
	ColumnDescription = "description"
)

// RequiredColumns must appear in a CSV header
var RequiredColumns = []string{ColumnDate, ColumnAmount}

const (
	defaultMaxFileSize = 10 << 20
	defaultMaxErrors   = 100
)

var defaultDateLayouts = []string{time.DateOnly, "2006/01/02", "02.01.2006", "20060102"}

// Line is one parsed statement line
type Line struct {
	Row         int
	Date        time.Time
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// Result is the outcome of parsing one file
type Result struct {
	Format    Format
	TotalRows int
	Lines     []Line
	Errors    *ErrorCollection
}

// Parser turns statement files into lines
type Parser struct {
	maxFileSize int64
	maxErrors   int
	dateLayouts []string
	csvOptions  []ParserOption
}

// Option configures a Parser
type Option func(*Parser)

func WithMaxFileSize(size int64) Option {
	return func(p *Parser) {
		if size > 0 {
			p.maxFileSize = size
		}
	}
}

func WithMaxErrors(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxErrors = n
		}
	}
}

// WithDateLayouts replaces the accepted CSV date layouts, tried in order
func WithDateLayouts(layouts ...string) Option {
	return func(p *Parser) {
		if len(layouts) > 0 {
			p.dateLayouts = layouts
		}
	}
}

// WithCSVOptions passes options through to the CSV reader
func WithCSVOptions(opts ...ParserOption) Option {
	return func(p *Parser) {
		p.csvOptions = append(p.csvOptions, opts...)
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxFileSize: defaultMaxFileSize,
		maxErrors:   defaultMaxErrors,
		dateLayouts: defaultDateLayouts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxFileSize returns the largest accepted file in bytes
func (p *Parser) MaxFileSize() int64 {
	return p.maxFileSize
}

// DetectFormat picks the format from the file extension, falling back to
// sniffing the content for an OFX header.
func DetectFormat(filename string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	}
	head := bytes.ToUpper(bytes.TrimSpace(data[:min(len(data), 512)]))
	if bytes.HasPrefix(head, []byte("OFXHEADER")) || bytes.Contains(head, []byte("<OFX>")) {
		return FormatOFX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
}

// Parse reads data in the given format. Row level problems are collected in
// Result.Errors; file level problems are returned as errors.
func (p *Parser) Parse(ctx context.Context, format Format, data []byte) (*Result, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, ErrFileTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	switch format {
	case FormatCSV:
		return p.parseCSV(ctx, data)
	case FormatOFX:
		return p.parseOFX(ctx, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (p *Parser) parseDate(value string) (time.Time, bool) {
	for _, layout := range p.dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount accepts thousands separators and accounting style negatives
func parseAmount(value string) (decimal.Decimal, error) {
	v := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	v = strings.ReplaceAll(v, " ", "")
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}
