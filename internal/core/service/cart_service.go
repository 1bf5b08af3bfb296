package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

const instrumentationName = "github.com/rl1809/shop-dashboard/internal/core/service"

var ErrDuplicateRequest = errors.New("duplicate request")

const (
	MessageAddedToCart = "Product added to cart"
	MessagePreordered  = "Product added to cart as a preorder"
)

type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
	QueueSize    int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Millisecond
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	return o
}

// LineItemSnapshot is the result of an add-to-cart.
type LineItemSnapshot struct {
	TransactionID string
	Version       int
	LineItems     []domain.LineItem
	Created       bool
	InStock       bool
	Message       string
}

// TransactionView pairs a transaction with its query-time total.
type TransactionView struct {
	Transaction domain.Transaction
	Total       Total
}

type CartService struct {
	store   port.TransactionStore
	catalog port.ProductCatalog
	cache   port.CacheRepository
	pricing *PricingCalculator
	logger  *zap.Logger
	opts    Options

	locks *keyedMutex

	mu     sync.RWMutex
	closed bool
	events chan domain.TransactionEvent

	tracer    trace.Tracer
	adds      metric.Int64Counter
	conflicts metric.Int64Counter

	now   func() time.Time
	newID func() string
}

// NewCartService wires the cart aggregate. cache may be nil, which disables
// request idempotency.
func NewCartService(store port.TransactionStore, catalog port.ProductCatalog, cache port.CacheRepository, logger *zap.Logger, opts Options) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	meter := otel.Meter(instrumentationName)
	adds, err := meter.Int64Counter("cart.add_item.count", metric.WithDescription("add-to-cart calls by outcome"))
	if err != nil {
		logger.Warn("create add_item counter", zap.Error(err))
		adds = noop.Int64Counter{}
	}
	conflicts, err := meter.Int64Counter("cart.add_item.conflicts", metric.WithDescription("optimistic lock conflicts on add-to-cart"))
	if err != nil {
		logger.Warn("create conflicts counter", zap.Error(err))
		conflicts = noop.Int64Counter{}
	}

	return &CartService{
		store:     store,
		catalog:   catalog,
		cache:     cache,
		pricing:   NewPricingCalculator(catalog),
		logger:    logger,
		opts:      opts,
		locks:     newKeyedMutex(),
		events:    make(chan domain.TransactionEvent, opts.QueueSize),
		tracer:    otel.Tracer(instrumentationName),
		adds:      adds,
		conflicts: conflicts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *CartService) Pricing() *PricingCalculator {
	return s.pricing
}

// AddItem adds one unit of productID to the user's open cart, creating the
// cart when none exists.
func (s *CartService) AddItem(ctx context.Context, userID, productID string) (LineItemSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddItem", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("product_id", productID),
	))
	defer span.End()

	snap, err := s.addItem(ctx, userID, productID, span)
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.adds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return snap, err
}

func (s *CartService) addItem(ctx context.Context, userID, productID string, span trace.Span) (LineItemSnapshot, error) {
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" {
		return LineItemSnapshot{}, domain.NewValidationError("userId", "is required")
	}
	if productID == "" {
		return LineItemSnapshot{}, domain.NewValidationError("productId", "is required")
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return LineItemSnapshot{}, fmt.Errorf("lookup product %s: %w", productID, err)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var (
		tx      domain.Transaction
		created bool
	)
	for attempt := 1; ; attempt++ {
		tx, created, err = s.mergeAndWrite(ctx, userID, productID)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return LineItemSnapshot{}, err
		}

		s.conflicts.Add(ctx, 1)
		if attempt >= s.opts.MaxRetries {
			s.logger.Warn("add item conflicts exhausted retries",
				zap.String("user_id", userID),
				zap.String("product_id", productID),
				zap.Int("attempts", attempt),
			)
			return LineItemSnapshot{}, fmt.Errorf("add item after %d attempts: %w", attempt, err)
		}

		s.logger.Debug("add item conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := s.backoff(ctx, attempt); err != nil {
			return LineItemSnapshot{}, err
		}
	}

	line, _ := domain.FindLineItem(tx.LineItems, productID)
	eventType := domain.EventItemAdded
	if created {
		eventType = domain.EventCartCreated
	}
	s.publish(domain.TransactionEvent{
		ID:            s.newID(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          eventType,
		ProductID:     productID,
		Amount:        line.Amount,
		Status:        tx.Status,
		Version:       tx.Version,
		OccurredAt:    tx.UpdatedAt,
	})

	snap := LineItemSnapshot{
		TransactionID: tx.ID,
		Version:       tx.Version,
		LineItems:     tx.LineItems,
		Created:       created,
		InStock:       product.InStock(),
		Message:       MessageAddedToCart,
	}
	if !snap.InStock {
		snap.Message = MessagePreordered
	}
	return snap, nil
}

// mergeAndWrite is one fetch → merge → conditional write round.
func (s *CartService) mergeAndWrite(ctx context.Context, userID, productID string) (domain.Transaction, bool, error) {
	cart, err := s.store.FetchOpenCart(ctx, userID)
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("fetch open cart: %w", err)
	}

	if cart == nil {
		items := []domain.LineItem{{ProductID: productID, Amount: 1}}
		tx, err := s.store.Create(ctx, domain.NewCart(s.newID(), userID, items, s.now()))
		if err != nil {
			return domain.Transaction{}, false, fmt.Errorf("create cart: %w", err)
		}
		return tx, true, nil
	}

	if !cart.Status.AcceptsLineItems() {
		return domain.Transaction{}, false, fmt.Errorf("transaction %s is %s: %w", cart.ID, cart.Status, domain.ErrInvalidState)
	}

	status := domain.TransactionStatusCart
	tx, err := s.store.Update(ctx, cart.ID, domain.TransactionPatch{
		LineItems:       domain.MergeLineItem(cart.LineItems, productID),
		Status:          &status,
		ExpectedVersion: cart.Version,
	})
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("update cart %s: %w", cart.ID, err)
	}
	return tx, false, nil
}

func (s *CartService) backoff(ctx context.Context, attempt int) error {
	base := s.opts.RetryBackoff * time.Duration(attempt)
	jitter := time.Duration(rand.Int64N(int64(s.opts.RetryBackoff) + 1))

	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AddItemOnce is AddItem guarded by a request id. A repeated id fails with
// ErrDuplicateRequest; the id is released again if the add fails.
func (s *CartService) AddItemOnce(ctx context.Context, requestID, userID, productID string) (LineItemSnapshot, error) {
	if requestID == "" || s.cache == nil {
		return s.AddItem(ctx, userID, productID)
	}

	key := fmt.Sprintf("cart:add:%s:%s", userID, requestID)
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return LineItemSnapshot{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return LineItemSnapshot{}, ErrDuplicateRequest
	}

	snap, err := s.AddItem(ctx, userID, productID)
	if err != nil {
		if rerr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); rerr != nil {
			s.logger.Warn("release idempotency key", zap.String("key", key), zap.Error(rerr))
		}
		return LineItemSnapshot{}, err
	}
	return snap, nil
}

// TransitionStatus is the checkout/admin entry point: it only patches status.
func (s *CartService) TransitionStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) (domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.TransitionStatus", trace.WithAttributes(
		attribute.String("transaction_id", transactionID),
		attribute.String("status", string(status)),
	))
	defer span.End()

	if _, err := domain.ParseTransactionStatus(string(status)); err != nil {
		return domain.Transaction{}, err
	}

	current, err := s.store.FetchByID(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Transaction{}, fmt.Errorf("transition %s to %s: %w", transactionID, status, err)
	}
	if current.Status == status {
		return current, nil
	}

	tx, err := s.store.Update(ctx, transactionID, domain.TransactionPatch{Status: &status})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Transaction{}, fmt.Errorf("transition %s to %s: %w", transactionID, status, err)
	}
	if tx.Version == current.Version {
		return tx, nil
	}

	s.logger.Info("transaction status changed",
		zap.String("transaction_id", tx.ID),
		zap.String("status", string(tx.Status)),
	)
	s.publish(domain.TransactionEvent{
		ID:            s.newID(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          domain.EventStatusChanged,
		Status:        tx.Status,
		Version:       tx.Version,
		OccurredAt:    tx.UpdatedAt,
	})
	return tx, nil
}

func (s *CartService) GetTransaction(ctx context.Context, transactionID string) (TransactionView, error) {
	tx, err := s.store.FetchByID(ctx, transactionID)
	if err != nil {
		return TransactionView{}, fmt.Errorf("fetch transaction %s: %w", transactionID, err)
	}
	return s.view(ctx, tx)
}

func (s *CartService) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]TransactionView, error) {
	txs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	views := make([]TransactionView, 0, len(txs))
	for _, tx := range txs {
		v, err := s.view(ctx, tx)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *CartService) view(ctx context.Context, tx domain.Transaction) (TransactionView, error) {
	total, err := s.pricing.ComputeTotal(ctx, tx)
	if err != nil {
		return TransactionView{}, err
	}
	return TransactionView{Transaction: tx, Total: total}, nil
}

func (s *CartService) publish(event domain.TransactionEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.events <- event:
	default:
		s.logger.Warn("event queue full, dropping event",
			zap.String("transaction_id", event.TransactionID),
			zap.String("type", string(event.Type)),
		)
	}
}

func (s *CartService) GetEventQueue() <-chan domain.TransactionEvent {
	return s.events
}

func (s *CartService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
