package statement

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// normalizeOFX repairs formatting slips banks commonly ship in SGML exports
func normalizeOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagPattern.ReplaceAllString(content, "$1>")
}

func (p *Parser) parseOFX(ctx context.Context, data []byte) (*Result, error) {
	resp, err := ofxgo.ParseResponse(strings.NewReader(normalizeOFX(string(data))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	result := &Result{Format: FormatOFX, Errors: NewErrorCollection(p.maxErrors)}
	var lists []*ofxgo.TransactionList
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			lists = append(lists, stmt.BankTranList)
		}
	}

	for _, list := range lists {
		for _, tx := range list.Transactions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.TotalRows++
			row := result.TotalRows

			amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
			if err != nil || amount.IsZero() {
				result.Errors.AddFormatError(row, "TRNAMT", "non-zero decimal", tx.TrnAmt.String())
				continue
			}
			if tx.DtPosted.IsZero() {
				result.Errors.AddRequiredError(row, "DTPOSTED")
				continue
			}

			result.Lines = append(result.Lines, Line{
				Row:         row,
				Date:        tx.DtPosted.UTC(),
				Amount:      amount,
				Reference:   ofxReference(tx),
				Description: ofxDescription(tx),
			})
		}
	}
	return result, nil
}

func ofxReference(tx ofxgo.Transaction) string {
	switch {
	case tx.CheckNum != "":
		return string(tx.CheckNum)
	case tx.RefNum != "":
		return string(tx.RefNum)
	default:
		return string(tx.FiTID)
	}
}

func ofxDescription(tx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(tx.Name))
	if name == "" && tx.Payee != nil {
		name = strings.TrimSpace(string(tx.Payee.Name))
	}
	memo := strings.TrimSpace(string(tx.Memo))
	switch {
	case name == "":
		return memo
	case memo == "" || memo == name:
		return name
	default:
		return name + " - " + memo
	}
}
