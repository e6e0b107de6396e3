package numbering

import "time"

// Number is a document number issued or previewed for a scope
type Number struct {
	Value      int64
	Formatted  string
	Scope      ScopeKey
	FiscalYear *int
}

// Generator turns numbering configs and counter state into document numbers.
// It holds no state; persistence of the counter is the repository's job.
type Generator struct {
	clock func() time.Time
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithClock overrides the time source used when no issuance date is given
func WithClock(clock func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.clock = clock
	}
}

// NewGenerator creates a Generator
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IssueDate returns at, or the current time when at is zero
func (g *Generator) IssueDate(at time.Time) time.Time {
	if at.IsZero() {
		return g.clock()
	}
	return at
}

// Params builds the reservation params for a document issued at at
func (g *Generator) Params(cfg *NumberingConfig, at time.Time) ReserveParams {
	return ReserveParams{
		StartValue: cfg.StartValue,
		FiscalYear: cfg.FiscalYearFor(at),
	}
}

// Preview renders the number the next reservation would receive.
// seq may be nil when the scope has not been used yet.
func (g *Generator) Preview(cfg *NumberingConfig, key ScopeKey, seq *Sequence, at time.Time) Number {
	params := g.Params(cfg, at)
	value := seq.Peek(params)
	return Number{
		Value:      value,
		Formatted:  cfg.Format(value, at),
		Scope:      key,
		FiscalYear: params.FiscalYear,
	}
}

// Issue renders a value already reserved in storage
func (g *Generator) Issue(cfg *NumberingConfig, key ScopeKey, value int64, at time.Time) Number {
	return Number{
		Value:      value,
		Formatted:  cfg.Format(value, at),
		Scope:      key,
		FiscalYear: cfg.FiscalYearFor(at),
	}
}
