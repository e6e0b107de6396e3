package statement

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Supported CSV charsets
const (
	CharsetUTF8        = "utf-8"
	CharsetWindows1252 = "windows-1252"
	CharsetISO88591    = "iso-8859-1"
)

// CSVParser reads a delimited statement file with a header row
type CSVParser struct {
	delimiter  rune
	lazyQuotes bool
	charset    string
	headerMap  map[string]int
	headers    []string
	currentRow int
	reader     *csv.Reader
}

// ParserOption configures a CSVParser
type ParserOption func(*CSVParser)

func WithDelimiter(d rune) ParserOption {
	return func(p *CSVParser) {
		p.delimiter = d
	}
}

func WithLazyQuotes(lazy bool) ParserOption {
	return func(p *CSVParser) {
		p.lazyQuotes = lazy
	}
}

// WithCharset decodes the input from a legacy single-byte charset
func WithCharset(charset string) ParserOption {
	return func(p *CSVParser) {
		p.charset = strings.ToLower(strings.TrimSpace(charset))
	}
}

// NewCSVParser prepares r for reading. A UTF-8 byte order mark is skipped.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	parser := &CSVParser{
		delimiter:  ',',
		lazyQuotes: true,
		charset:    CharsetUTF8,
		headerMap:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(parser)
	}

	bufReader := bufio.NewReader(r)
	head, err := bufReader.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = bufReader.Discard(3)
	}

	var src io.Reader = bufReader
	switch parser.charset {
	case "", CharsetUTF8, "utf8":
		if err := validateUTF8(bufReader); err != nil {
			return nil, err
		}
	default:
		enc, err := lookupCharset(parser.charset)
		if err != nil {
			return nil, err
		}
		if err := ensureNotEmpty(bufReader); err != nil {
			return nil, err
		}
		src = transform.NewReader(bufReader, enc.NewDecoder())
	}

	parser.reader = csv.NewReader(src)
	parser.reader.Comma = parser.delimiter
	parser.reader.LazyQuotes = parser.lazyQuotes
	parser.reader.TrimLeadingSpace = true
	parser.reader.FieldsPerRecord = -1

	return parser, nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	switch name {
	case CharsetWindows1252, "cp1252":
		return charmap.Windows1252, nil
	case CharsetISO88591, "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCharset, name)
	}
}

func ensureNotEmpty(r *bufio.Reader) error {
	if _, err := r.Peek(1); err != nil {
		if err == io.EOF {
			return ErrEmptyFile
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

func validateUTF8(r *bufio.Reader) error {
	const checkSize = 4096
	content, err := r.Peek(checkSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return fmt.Errorf("failed to read file for encoding validation: %w", err)
	}
	if len(content) == 0 {
		return ErrEmptyFile
	}
	// A multi-byte rune may straddle the peek window.
	if len(content) == checkSize {
		for i := len(content) - 1; i >= 0 && i >= len(content)-utf8.UTFMax; i-- {
			if utf8.RuneStart(content[i]) {
				if !utf8.FullRune(content[i:]) {
					content = content[:i]
				}
				break
			}
		}
	}
	if !utf8.Valid(content) {
		return ErrInvalidEncoding
	}
	return nil
}

// ParseHeader reads the header row. Header names are matched case-insensitively.
func (p *CSVParser) ParseHeader() error {
	record, err := p.reader.Read()
	if err == io.EOF {
		return ErrMissingHeader
	}
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	p.headers = make([]string, len(record))
	for i, h := range record {
		header := strings.ToLower(strings.TrimSpace(h))
		p.headers[i] = header
		p.headerMap[header] = i
	}
	if len(p.headers) == 0 {
		return ErrMissingHeader
	}
	p.currentRow = 1
	return nil
}

func (p *CSVParser) Headers() []string {
	return p.headers
}

func (p *CSVParser) HasHeader(name string) bool {
	_, ok := p.headerMap[name]
	return ok
}

// ValidateHeaders returns the required headers that are missing
func (p *CSVParser) ValidateHeaders(required []string) []string {
	var missing []string
	for _, h := range required {
		if !p.HasHeader(h) {
			missing = append(missing, h)
		}
	}
	return missing
}

// Row is one CSV record keyed by header
type Row struct {
	LineNumber int
	Data       map[string]string
}

func (r *Row) Get(header string) string {
	return r.Data[header]
}

func (r *Row) IsEmpty() bool {
	for _, v := range r.Data {
		if v != "" {
			return false
		}
	}
	return true
}

// ReadRow returns the next record or io.EOF
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	p.currentRow++
	if err != nil {
		return nil, fmt.Errorf("error reading row %d: %w", p.currentRow, err)
	}

	row := &Row{
		LineNumber: p.currentRow,
		Data:       make(map[string]string, len(p.headers)),
	}
	for i, header := range p.headers {
		if i < len(record) {
			row.Data[header] = strings.TrimSpace(record[i])
		} else {
			row.Data[header] = ""
		}
	}
	return row, nil
}

func (p *CSVParser) CurrentRow() int {
	return p.currentRow
}
