package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PredatorDevs/systudents-back-sub001/internal/cache"
	"github.com/PredatorDevs/systudents-back-sub001/internal/domain"
	"github.com/PredatorDevs/systudents-back-sub001/internal/lock"
	"github.com/PredatorDevs/systudents-back-sub001/internal/logging"
	"github.com/PredatorDevs/systudents-back-sub001/internal/store"
	"github.com/PredatorDevs/systudents-back-sub001/internal/xid"
)

const (
	retryBackoffStep = 25 * time.Millisecond
	defaultCacheTTL  = 30 * time.Second
	sessionLockTTL   = 10 * time.Second
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOf(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{UserID: "system", Role: "system"}
	}
	return actor
}

const roleCashier = "cashier"

// cashierFor resolves whose shift an operation books into. Cashier-role
// actors always act as themselves; other roles may name any cashier.
func cashierFor(actor domain.Actor, field string, requested string) (string, error) {
	if actor.Role != roleCashier {
		if requested == "" {
			return actor.CashierID, nil
		}
		return requested, nil
	}
	if actor.CashierID == "" {
		return "", store.Invalid(field, "actor carries no cashier id")
	}
	if requested != "" && requested != actor.CashierID {
		return "", store.Invalid(field, "a cashier may only act for their own shift")
	}
	return actor.CashierID, nil
}

type Options struct {
	Cache  cache.BalanceCache
	Locker lock.Locker
	Logger logrus.FieldLogger
	// OverpaymentTolerance is the amount a payment may exceed the outstanding balance by.
	OverpaymentTolerance decimal.Decimal
	// RetryAttempts is the total number of tries for a unit of work that fails with Busy.
	RetryAttempts int
	CacheTTL      time.Duration
	Clock         func() time.Time
}

// core carries the collaborators shared by every component.
type core struct {
	repo      store.Repository
	cache     cache.BalanceCache
	locker    lock.Locker
	logger    logrus.FieldLogger
	validate  *validator.Validate
	tracer    trace.Tracer
	tolerance decimal.Decimal
	retries   int
	cacheTTL  time.Duration
	clock     func() time.Time
}

// Service is the operation boundary. Each exported method is one external
// operation and maps to exactly one unit of work.
type Service struct {
	*core

	Stock     *StockLedger
	Sessions  *SessionManager
	Documents *DocumentLedger
	Payments  *PaymentAllocator
	Numbers   *NumberValidator
	Voids     *VoidCoordinator
}

func New(repo store.Repository, opts Options) *Service {
	c := &core{
		repo:      repo,
		cache:     opts.Cache,
		locker:    opts.Locker,
		logger:    opts.Logger,
		validate:  newValidator(),
		tracer:    otel.Tracer("github.com/PredatorDevs/systudents-back-sub001/internal/service"),
		tolerance: opts.OverpaymentTolerance,
		retries:   opts.RetryAttempts,
		cacheTTL:  opts.CacheTTL,
		clock:     opts.Clock,
	}
	if c.cache == nil {
		c.cache = cache.NoopBalanceCache{}
	}
	if c.locker == nil {
		c.locker = lock.NewLocal(5 * time.Second)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.tolerance.IsNegative() {
		c.tolerance = decimal.Zero
	}
	if c.retries < 1 {
		c.retries = 1
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = defaultCacheTTL
	}
	if c.clock == nil {
		c.clock = func() time.Time { return time.Now().UTC() }
	}

	stock := &StockLedger{core: c}
	numbers := &NumberValidator{core: c}
	sessions := &SessionManager{core: c}
	return &Service{
		core:      c,
		Stock:     stock,
		Sessions:  sessions,
		Documents: &DocumentLedger{core: c, stock: stock, numbers: numbers},
		Payments:  &PaymentAllocator{core: c},
		Numbers:   numbers,
		Voids:     &VoidCoordinator{core: c, stock: stock},
	}
}

func (c *core) now() time.Time {
	return c.clock().UTC()
}

// inTx runs fn in one unit of work, retrying while the store reports Busy.
func (c *core) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := c.tracer.Start(ctx, op)
	defer span.End()

	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err = c.repo.WithinTx(ctx, func(tx store.Tx) error {
			return fn(ctx, tx)
		})
		if !store.IsRetryable(err) || attempt == c.retries {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"component": "service",
			"op":        op,
			"attempt":   attempt,
		}).Warn("unit of work busy, retrying")

		select {
		case <-ctx.Done():
			return &store.BusyError{Op: op, Cause: ctx.Err()}
		case <-time.After(time.Duration(attempt) * retryBackoffStep):
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		c.reportFailure(op, err)
	}
	return err
}

func (c *core) reportFailure(op string, err error) {
	var busy *store.BusyError
	switch {
	case errors.Is(err, store.ErrInconsistent):
		logging.LogError(c.logger, "service", op, nil, err)
	case errors.As(err, &busy):
		c.logger.WithFields(logrus.Fields{
			"component": "service",
			"op":        op,
			"cause":     fmt.Sprint(busy.Cause),
		}).Warn("unit of work gave up while busy")
	case !store.IsClientError(err):
		logging.LogError(c.logger, "service", op, nil, err)
	}
}

// audit writes the audit row inside the caller's unit of work so it commits or
// rolls back with the change it describes.
func (c *core) audit(ctx context.Context, tx store.Tx, locationID string, action string, entityType string, entityID string, detail string) error {
	actor := actorOf(ctx)
	if err := tx.CreateAuditLog(ctx, domain.AuditLog{
		ID:          xid.New("audit"),
		LocationID:  locationID,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Detail:      detail,
		CreatedAt:   c.now(),
	}); err != nil {
		return fmt.Errorf("write audit log %s %s/%s: %w", action, entityType, entityID, err)
	}
	return nil
}

// invalidate drops cached balances. Cache failures degrade to a stale read
// bounded by the TTL, so they are logged and not returned.
func (c *core) invalidate(ctx context.Context, documentIDs ...string) {
	if err := c.cache.Invalidate(ctx, documentIDs...); err != nil {
		c.logger.WithFields(logrus.Fields{
			"component": "balance_cache",
			"documents": documentIDs,
		}).WithError(err).Warn("invalidate failed")
	}
}

func (c *core) withCashierLock(ctx context.Context, cashierID string, fn func() error) error {
	lease, err := c.locker.Obtain(ctx, "cashier:"+cashierID, sessionLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return &store.BusyError{Op: "lock cashier " + cashierID, Cause: err}
		}
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			c.logger.WithFields(logrus.Fields{"component": "lock", "cashier_id": cashierID}).WithError(err).Warn("release failed")
		}
	}()
	return fn()
}

func (s *Service) OpenSession(ctx context.Context, req domain.SessionOpenRequest) (domain.ShiftCut, error) {
	return s.Sessions.Open(ctx, req)
}

func (s *Service) CloseSession(ctx context.Context, req domain.SessionCloseRequest) (domain.ShiftCut, error) {
	return s.Sessions.Close(ctx, req)
}

func (s *Service) SettleSession(ctx context.Context, req domain.SessionSettleRequest) (domain.ShiftCut, error) {
	return s.Sessions.Settle(ctx, req)
}

func (s *Service) CurrentActiveSession(ctx context.Context, q domain.SessionQuery) (domain.ShiftCut, error) {
	return s.Sessions.CurrentActive(ctx, q)
}

func (s *Service) SessionSummary(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	return s.Sessions.Summary(ctx, sessionID)
}

func (s *Service) CreateSale(ctx context.Context, req domain.DocumentRequest) (domain.DocumentCreated, error) {
	return s.Documents.Create(ctx, domain.DocumentKindSale, req)
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.DocumentRequest) (domain.DocumentCreated, error) {
	return s.Documents.Create(ctx, domain.DocumentKindPurchase, req)
}

func (s *Service) RemoveDocument(ctx context.Context, documentID string) error {
	return s.Documents.Remove(ctx, documentID)
}

func (s *Service) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	return s.Documents.Get(ctx, documentID)
}

func (s *Service) ListPayments(ctx context.Context, documentID string) ([]domain.Payment, error) {
	return s.Documents.Payments(ctx, documentID)
}

func (s *Service) ValidateDocumentNumber(ctx context.Context, req domain.NumberValidationRequest) error {
	return s.Numbers.Validate(ctx, req)
}

func (s *Service) AddPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResult, error) {
	return s.Payments.Add(ctx, req)
}

func (s *Service) AddGeneralPayment(ctx context.Context, req domain.GeneralPaymentRequest) (domain.GeneralPaymentResult, error) {
	return s.Payments.AddGeneral(ctx, req)
}

func (s *Service) PendingAmount(ctx context.Context, documentID string) (decimal.Decimal, error) {
	return s.Payments.Pending(ctx, documentID)
}

func (s *Service) VoidDocument(ctx context.Context, req domain.VoidRequest) (domain.VoidResult, error) {
	return s.Voids.Void(ctx, req)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.AdjustRequest) (decimal.Decimal, error) {
	return s.Stock.Adjust(ctx, req)
}

func (s *Service) CreateStockAdjustment(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustment, error) {
	return s.Stock.CreateAdjustment(ctx, req)
}

func (s *Service) CheckAvailability(ctx context.Context, locationID string, itemID string, qty decimal.Decimal) (domain.Availability, error) {
	return s.Stock.CheckAvailability(ctx, locationID, itemID, qty)
}

func (s *Service) InitializeStock(ctx context.Context, req domain.InitializeStockRequest) (domain.LocationStock, error) {
	return s.Stock.Initialize(ctx, req)
}

func (s *Service) StockHistory(ctx context.Context, locationID string, itemID string) ([]domain.StockMovement, error) {
	return s.Stock.History(ctx, locationID, itemID)
}

func (s *Service) ReconcileStock(ctx context.Context, locationID string, itemID string) (domain.StockReconciliation, error) {
	return s.Stock.Reconcile(ctx, locationID, itemID)
}

func (s *Service) LowStock(ctx context.Context, locationID string) ([]domain.LocationStock, error) {
	return s.Stock.Low(ctx, locationID)
}

func (s *Service) ListAuditLogs(ctx context.Context, entityType string, entityID string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, entityType, entityID, limit)
}
