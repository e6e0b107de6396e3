package numbering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retries of a reservation hitting write conflicts
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the default reservation retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Service issues document numbers and manages numbering configs
type Service struct {
	configRepo     numbering.ConfigRepository
	sequenceRepo   numbering.SequenceRepository
	generator      *numbering.Generator
	retry          RetryPolicy
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        *telemetry.DomainMetrics
	now            func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithRetryPolicy overrides the reservation retry policy
func WithRetryPolicy(p RetryPolicy) ServiceOption {
	return func(s *Service) {
		if p.MaxAttempts > 0 {
			s.retry = p
		}
	}
}

// WithIdempotencyStore enables Idempotency-Key handling for reservations
func WithIdempotencyStore(store shared.IdempotencyStore, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithMetrics records reservation metrics
func WithMetrics(m *telemetry.DomainMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source for default issue dates
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = clock
	}
}

// NewService creates a new numbering Service
func NewService(
	configRepo numbering.ConfigRepository,
	sequenceRepo numbering.SequenceRepository,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		configRepo:     configRepo,
		sequenceRepo:   sequenceRepo,
		retry:          DefaultRetryPolicy(),
		idempotencyTTL: shared.DefaultIdempotencyConfig().TTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.generator = numbering.NewGenerator(numbering.WithClock(s.now))
	return s
}

// loadConfig returns the stored config, or the default one when the company
// never configured the document type
func (s *Service) loadConfig(ctx context.Context, tenantID uuid.UUID, docType numbering.DocumentType) (*numbering.NumberingConfig, bool, error) {
	cfg, err := s.configRepo.FindByDocumentType(ctx, tenantID, docType)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load numbering config: %w", err)
	}
	if cfg == nil {
		return numbering.DefaultConfig(tenantID, docType), true, nil
	}
	return cfg, false, nil
}

// GetConfig returns the numbering config of a document type
func (s *Service) GetConfig(ctx context.Context, tenantID uuid.UUID, documentType string) (*ConfigResponse, error) {
	docType, err := numbering.ParseDocumentType(documentType)
	if err != nil {
		return nil, err
	}
	cfg, isDefault, err := s.loadConfig(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	resp := ToConfigResponse(cfg, isDefault, s.now())
	if isDefault {
		resp.ID = uuid.Nil
	}
	return &resp, nil
}

// ListConfigs returns the configs of every document type, defaults included
func (s *Service) ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]ConfigResponse, error) {
	stored, err := s.configRepo.FindAllForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list numbering configs: %w", err)
	}
	byType := make(map[numbering.DocumentType]*numbering.NumberingConfig, len(stored))
	for i := range stored {
		byType[stored[i].DocumentType] = &stored[i]
	}

	now := s.now()
	result := make([]ConfigResponse, 0, len(numbering.AllDocumentTypes()))
	for _, docType := range numbering.AllDocumentTypes() {
		if cfg, ok := byType[docType]; ok {
			result = append(result, ToConfigResponse(cfg, false, now))
			continue
		}
		resp := ToConfigResponse(numbering.DefaultConfig(tenantID, docType), true, now)
		resp.ID = uuid.Nil
		result = append(result, resp)
	}
	return result, nil
}

// UpsertConfig creates or replaces the numbering config of a document type.
// Unknown template placeholders are accepted and reported as warnings.
func (s *Service) UpsertConfig(ctx context.Context, tenantID uuid.UUID, documentType string, req UpsertConfigRequest) (*ConfigResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "numbering", "upsert_config")
	defer span.End()

	docType, err := numbering.ParseDocumentType(documentType)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentType, docType.String(),
	)

	input := numbering.ConfigInput{
		Template:             req.Template,
		Padding:              req.Padding,
		StartValue:           req.StartValue,
		ResetPolicy:          numbering.ResetPolicy(req.ResetPolicy),
		PerClient:            req.PerClient,
		FiscalYearStartMonth: req.FiscalYearStartMonth,
	}

	existing, err := s.configRepo.FindByDocumentType(ctx, tenantID, docType)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load numbering config: %w", err)
	}

	var cfg *numbering.NumberingConfig
	if existing == nil {
		cfg, err = numbering.NewNumberingConfig(tenantID, docType, input)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := s.configRepo.Save(ctx, cfg); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	} else {
		if req.Version != nil && *req.Version != existing.Version {
			telemetry.RecordError(span, shared.ErrConcurrencyConflict)
			return nil, shared.ErrConcurrencyConflict
		}
		cfg = existing
		if err := cfg.Update(input); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err := s.configRepo.SaveWithLock(ctx, cfg); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	resp := ToConfigResponse(cfg, false, s.now())
	if len(resp.Warnings) > 0 {
		logger.FromContext(ctx).Warn("Numbering template contains unknown placeholders",
			zap.String("document_type", docType.String()),
			zap.Strings("warnings", resp.Warnings),
		)
	}
	telemetry.SetOK(span)
	return &resp, nil
}

// resolve loads the config and scope of a number request
func (s *Service) resolve(ctx context.Context, tenantID uuid.UUID, req NumberRequest) (*numbering.NumberingConfig, numbering.ScopeKey, time.Time, error) {
	docType, err := numbering.ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, numbering.ScopeKey{}, time.Time{}, err
	}
	cfg, _, err := s.loadConfig(ctx, tenantID, docType)
	if err != nil {
		return nil, numbering.ScopeKey{}, time.Time{}, err
	}
	key, err := cfg.ScopeFor(req.ClientID)
	if err != nil {
		return nil, numbering.ScopeKey{}, time.Time{}, err
	}
	var at time.Time
	if req.IssueDate != nil {
		at = *req.IssueDate
	}
	return cfg, key, s.generator.IssueDate(at), nil
}

// PreviewNext renders the number the next reservation would receive without
// creating or advancing the counter
func (s *Service) PreviewNext(ctx context.Context, tenantID uuid.UUID, req NumberRequest) (*NumberResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "numbering", "preview_next")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentType, req.DocumentType,
	)

	cfg, key, at, err := s.resolve(ctx, tenantID, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	seq, err := s.sequenceRepo.FindByScope(ctx, key)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load sequence: %w", err)
	}

	number := s.generator.Preview(cfg, key, seq, at)
	telemetry.SetAttributes(span, telemetry.SpanAttrNumber, number.Formatted)
	telemetry.SetOK(span)
	return toNumberResponse(number, at), nil
}

// ReserveNext atomically takes the next number of the scope. Write
// conflicts are retried with exponential backoff; when the attempts are
// exhausted ErrCounterConflict is returned and no number is consumed.
func (s *Service) ReserveNext(ctx context.Context, tenantID uuid.UUID, req ReserveRequest) (*NumberResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "numbering", "reserve_next")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrDocumentType, req.DocumentType,
	)

	if s.idempotency == nil || req.IdempotencyKey == "" {
		resp, err := s.reserve(ctx, tenantID, req.NumberRequest)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		telemetry.SetOK(span)
		return resp, nil
	}

	storeKey := idempotencyKey(tenantID, req)
	scope := requestScope(req.NumberRequest)
	if resp, found, err := s.loadReplay(ctx, storeKey, scope); err != nil || found {
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.metrics.RecordReservation(ctx, tenantID.String(), req.DocumentType, telemetry.OutcomeReplay, 0)
		telemetry.AddEvent(span, "idempotent_replay")
		return resp, nil
	}

	claimed, err := s.idempotency.Claim(ctx, storeKey, s.idempotencyTTL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if !claimed {
		// Lost the race: the winner may have completed in the meantime
		resp, found, err := s.loadReplay(ctx, storeKey, scope)
		if errors.Is(err, shared.ErrIdempotencyKeyReuse) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if err == nil && found {
			s.metrics.RecordReservation(ctx, tenantID.String(), req.DocumentType, telemetry.OutcomeReplay, 0)
			return resp, nil
		}
		telemetry.RecordError(span, shared.ErrDuplicateRequest)
		return nil, shared.ErrDuplicateRequest
	}

	resp, err := s.reserve(ctx, tenantID, req.NumberRequest)
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, storeKey); releaseErr != nil {
			logger.FromContext(ctx).Warn("Failed to release idempotency key",
				zap.String("key", storeKey), zap.Error(releaseErr))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	payload, err := json.Marshal(storedReservation{Scope: scope, Response: *resp})
	if err == nil {
		err = s.idempotency.Complete(ctx, storeKey, payload, s.idempotencyTTL)
	}
	if err != nil {
		// The number is already consumed; a replay will not find it but the
		// caller still gets the reserved number
		logger.FromContext(ctx).Error("Failed to store idempotent reservation",
			zap.String("key", storeKey), zap.String("number", resp.Number), zap.Error(err))
	}
	telemetry.SetOK(span)
	return resp, nil
}

func (s *Service) reserve(ctx context.Context, tenantID uuid.UUID, req NumberRequest) (*NumberResponse, error) {
	start := time.Now()
	cfg, key, at, err := s.resolve(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}

	var value int64
	attempts := 0
	telemetry.WithOperationLabels(ctx, "reserve_number", key.DocumentType.String(), func(c context.Context) {
		err = backoff.Retry(func() error {
			attempts++
			v, reserveErr := s.sequenceRepo.Reserve(c, key, s.generator.Params(cfg, at))
			if reserveErr == nil {
				value = v
				return nil
			}
			if errors.Is(reserveErr, numbering.ErrCounterConflict) {
				s.metrics.RecordCounterConflict(c, tenantID.String(), key.DocumentType.String())
				return reserveErr
			}
			return backoff.Permanent(reserveErr)
		}, s.retry.backOff(c))
	})

	span := telemetry.SpanFromContext(ctx)
	telemetry.SetAttributes(span, telemetry.SpanAttrAttempts, attempts, telemetry.SpanAttrScope, key.String())

	if err != nil {
		outcome := telemetry.OutcomeError
		if errors.Is(err, numbering.ErrCounterConflict) {
			outcome = telemetry.OutcomeConflict
			logger.FromContext(ctx).Warn("Number reservation gave up after repeated conflicts",
				zap.String("scope", key.String()),
				zap.Int("attempts", attempts),
			)
			err = numbering.ErrCounterConflict
		}
		s.metrics.RecordReservation(ctx, tenantID.String(), key.DocumentType.String(), outcome, time.Since(start))
		return nil, err
	}

	number := s.generator.Issue(cfg, key, value, at)
	s.metrics.RecordReservation(ctx, tenantID.String(), key.DocumentType.String(), telemetry.OutcomeSuccess, time.Since(start))
	telemetry.SetAttributes(span, telemetry.SpanAttrNumber, number.Formatted)
	logger.FromContext(ctx).Debug("Reserved document number",
		zap.String("scope", key.String()),
		zap.String("number", number.Formatted),
		zap.Int("attempts", attempts),
	)
	return toNumberResponse(number, at), nil
}

// storedReservation is the idempotency payload of a reservation. Scope
// records the client and issue date the key was first used with.
type storedReservation struct {
	Scope    string         `json:"scope"`
	Response NumberResponse `json:"response"`
}

// requestScope identifies what a reservation was asked for, beyond the
// document type already in the store key
func requestScope(req NumberRequest) string {
	client, date := "", ""
	if req.ClientID != nil {
		client = req.ClientID.String()
	}
	if req.IssueDate != nil {
		date = req.IssueDate.Format(time.DateOnly)
	}
	return client + "|" + date
}

// loadReplay returns the stored reservation for storeKey. A key first used
// with a different client or issue date is ErrIdempotencyKeyReuse.
func (s *Service) loadReplay(ctx context.Context, storeKey, scope string) (*NumberResponse, bool, error) {
	payload, found, err := s.idempotency.Load(ctx, storeKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load idempotency key: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	var stored storedReservation
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, false, fmt.Errorf("failed to decode stored reservation: %w", err)
	}
	if stored.Scope != scope {
		return nil, false, shared.ErrIdempotencyKeyReuse
	}
	resp := stored.Response
	resp.Replayed = true
	return &resp, true, nil
}

// idempotencyKey scopes a client key to the tenant and document type so two
// companies reusing the same key do not collide
func idempotencyKey(tenantID uuid.UUID, req ReserveRequest) string {
	return "numbering:" + tenantID.String() + ":" + req.DocumentType + ":" + req.IdempotencyKey
}

// ResetSequence restarts a scope's counter. Only configs with the manual
// reset policy allow it.
func (s *Service) ResetSequence(ctx context.Context, tenantID uuid.UUID, documentType string, req ResetRequest) (*ResetResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "numbering", "reset_sequence")
	defer span.End()

	cfg, key, at, err := s.resolve(ctx, tenantID, NumberRequest{DocumentType: documentType, ClientID: req.ClientID})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrScope, key.String(),
	)
	if cfg.ResetPolicy != numbering.ResetPolicyManual {
		telemetry.RecordError(span, numbering.ErrResetNotAllowed)
		return nil, numbering.ErrResetNotAllowed
	}

	startValue := cfg.StartValue
	if req.StartValue != nil {
		startValue = *req.StartValue
	}
	if startValue < 1 {
		telemetry.RecordError(span, numbering.ErrInvalidStartValue)
		return nil, numbering.ErrInvalidStartValue
	}

	err = s.sequenceRepo.Reset(ctx, key, startValue)
	if errors.Is(err, numbering.ErrScopeNotFound) {
		// An unused scope already starts at the configured start value
		if startValue != cfg.StartValue {
			err = shared.NewDomainError("VALIDATION_ERROR",
				"This scope has not issued any number yet, change start_value in the numbering config instead")
			telemetry.RecordError(span, err)
			return nil, err
		}
		err = nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.FromContext(ctx).Info("Number sequence reset",
		zap.String("scope", key.String()),
		zap.Int64("next_value", startValue),
	)
	telemetry.SetOK(span)
	return &ResetResponse{
		DocumentType: key.DocumentType.String(),
		ClientID:     key.ClientID,
		NextValue:    startValue,
		NextNumber:   cfg.Format(startValue, at),
	}, nil
}
