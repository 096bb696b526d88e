package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/licensor/internal/account/domain"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	obsmetrics "github.com/smallbiznis/licensor/internal/observability/metrics"
	plandomain "github.com/smallbiznis/licensor/internal/plan/domain"
	"github.com/smallbiznis/licensor/internal/providers/email"
	"github.com/smallbiznis/licensor/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 50
	emailTimeout             = 10 * time.Second
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Cfg         config.Config
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Catalog     plandomain.Catalog
	Email       email.Provider      `optional:"true"`
	Gateway     domain.Gateway      `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	accountRepo accountdomain.Repository
	catalog     plandomain.Catalog
	email       email.Provider
	gateway     domain.Gateway
	obsMetrics  *obsmetrics.Metrics
	appURL      string
}

func New(p Params) domain.Service {
	mailer := p.Email
	if mailer == nil {
		mailer = &email.NoOpProvider{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		catalog:     p.Catalog,
		email:       mailer,
		gateway:     p.Gateway,
		obsMetrics:  p.ObsMetrics,
		appURL:      strings.TrimRight(p.Cfg.AppURL, "/"),
	}
}

// rejection aborts the reconciliation transaction with a logical reason.
type rejection struct{ reason string }

func (r rejection) Error() string { return r.reason }

type activation struct {
	account accountdomain.Account
	txn     domain.PaymentTransaction
	endsAt  time.Time
}

// ApplyPaymentEvent is the single entry point for webhook pushes and status
// polls. The stored transaction is authoritative for plan, cycle and
// account; the event only reports what the provider observed.
func (s *Service) ApplyPaymentEvent(ctx context.Context, event domain.PaymentEvent) (domain.Result, error) {
	sessionID := strings.TrimSpace(event.TransactionID)
	if sessionID == "" {
		return domain.Result{}, domain.ErrInvalidTransaction
	}

	var (
		result    domain.Result
		activated *activation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn, err := s.ensureTransaction(ctx, tx, sessionID, event)
		if err != nil {
			return err
		}
		if event.AccountID != 0 && txn.AccountID != event.AccountID {
			return rejection{domain.ReasonAccountMismatch}
		}

		switch event.Status {
		case domain.PaymentInitiated:
			result = rejected(domain.ReasonPaymentPending)
			return nil
		case domain.PaymentFailed:
			result, err = s.fail(ctx, tx, txn)
			return err
		case domain.PaymentPaid, domain.PaymentCompleted:
		default:
			return rejection{domain.ReasonPaymentPending}
		}

		if txn.PaymentStatus == domain.PaymentCompleted {
			result = domain.Result{Outcome: domain.OutcomeAlreadyApplied}
			return nil
		}
		if !txn.Plan.Paid() {
			return rejection{domain.ReasonInvalidPlan}
		}

		now := s.clock.Now()
		claimed, err := s.repo.ClaimCompletion(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		if !claimed {
			current, err := s.repo.FindTransaction(ctx, tx, sessionID)
			if err != nil {
				return err
			}
			if current != nil && current.PaymentStatus == domain.PaymentCompleted {
				result = domain.Result{Outcome: domain.OutcomeAlreadyApplied}
				return nil
			}
			result = rejected(domain.ReasonTransactionFailed)
			return nil
		}

		account, err := s.accountRepo.FindByID(ctx, tx, txn.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return rejection{domain.ReasonAccountNotFound}
		}

		endsAt := now.AddDate(0, 0, txn.BillingCycle.PeriodDays())
		if _, err := s.accountRepo.ApplySubscription(ctx, tx, account.ID, accountdomain.SubscriptionUpdate{
			Plan:         txn.Plan,
			BillingCycle: txn.BillingCycle,
			Status:       accountdomain.StatusActive,
			EndsAt:       endsAt,
		}, now); err != nil {
			return err
		}

		session := sessionID
		if err := s.repo.InsertNotification(ctx, tx, &domain.PurchaseNotification{
			ID:           s.genID.Generate(),
			SessionID:    &session,
			UserName:     domain.AnonymizeName(account.Name),
			Plan:         txn.Plan,
			BillingCycle: txn.BillingCycle,
			Country:      event.Country,
			IsReal:       true,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		result = domain.Result{Outcome: domain.OutcomeApplied, EndsAt: &endsAt}
		activated = &activation{account: *account, txn: *txn, endsAt: endsAt}
		return nil
	})

	var rej rejection
	if errors.As(err, &rej) {
		result, err = rejected(rej.reason), nil
	}
	if err != nil {
		s.log.Error("payment reconciliation failed",
			zap.String("session_id", sessionID),
			zap.String("source", event.Source),
			zap.Error(err),
		)
		return domain.Result{}, err
	}

	outcome := string(result.Outcome)
	if result.Reason != "" {
		outcome = result.Reason
	}
	s.obsMetrics.RecordPaymentEvent(ctx, event.Source, outcome)
	s.log.Info("payment event reconciled",
		zap.String("session_id", sessionID),
		zap.String("source", event.Source),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", result.Reason),
	)

	if activated != nil {
		s.sendConfirmation(ctx, *activated)
	}
	return result, nil
}

// ensureTransaction returns the stored transaction, creating it from the
// event when the checkout was started outside this service.
func (s *Service) ensureTransaction(ctx context.Context, tx *gorm.DB, sessionID string, event domain.PaymentEvent) (*domain.PaymentTransaction, error) {
	txn, err := s.repo.FindTransaction(ctx, tx, sessionID)
	if err != nil || txn != nil {
		return txn, err
	}

	if !event.Plan.Paid() {
		return nil, rejection{domain.ReasonInvalidPlan}
	}
	if event.AccountID == 0 {
		return nil, rejection{domain.ReasonAccountNotFound}
	}
	cycle := event.BillingCycle
	if cycle == "" {
		cycle = plandomain.BillingCycleMonthly
	}
	currency := strings.ToLower(strings.TrimSpace(event.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.clock.Now()
	if err := s.repo.InsertTransaction(ctx, tx, &domain.PaymentTransaction{
		ID:            s.genID.Generate(),
		SessionID:     sessionID,
		AccountID:     event.AccountID,
		Plan:          event.Plan,
		BillingCycle:  cycle,
		Amount:        event.Amount,
		Currency:      currency,
		PaymentStatus: domain.PaymentInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return nil, err
	}
	return s.repo.FindTransaction(ctx, tx, sessionID)
}

func (s *Service) fail(ctx context.Context, tx *gorm.DB, txn *domain.PaymentTransaction) (domain.Result, error) {
	if txn.PaymentStatus == domain.PaymentCompleted {
		return domain.Result{Outcome: domain.OutcomeAlreadyApplied}, nil
	}
	if _, err := s.repo.MarkFailed(ctx, tx, txn.SessionID, s.clock.Now()); err != nil {
		return domain.Result{}, err
	}
	return rejected(domain.ReasonPaymentFailed), nil
}

func (s *Service) sendConfirmation(ctx context.Context, a activation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emailTimeout)
	defer cancel()

	err := s.email.SendTemplate(ctx, []string{a.account.Email}, email.TemplatePurchaseConfirmation, map[string]any{
		"name":          firstName(a.account.Name),
		"plan":          string(a.txn.Plan),
		"billing_cycle": string(a.txn.BillingCycle),
		"ends_at":       a.endsAt.Format("January 2, 2006"),
		"license_key":   a.account.LicenseKey,
		"dashboard_url": s.appURL + "/dashboard",
	})
	if err != nil {
		s.log.Warn("purchase confirmation email failed",
			zap.Int64("account_id", a.account.ID.Int64()),
			zap.Error(err),
		)
	}
}

// PollCheckout asks the provider about a checkout the caller started and
// funnels a paid result into ApplyPaymentEvent.
func (s *Service) PollCheckout(ctx context.Context, accountID snowflake.ID, sessionID string) (domain.CheckoutStatus, error) {
	if s.gateway == nil {
		return domain.CheckoutStatus{}, domain.ErrPaymentsDisabled
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.CheckoutStatus{}, domain.ErrInvalidTransaction
	}

	txn, err := s.repo.FindTransaction(ctx, s.db, sessionID)
	if err != nil {
		return domain.CheckoutStatus{}, err
	}
	if txn == nil || txn.AccountID != accountID {
		return domain.CheckoutStatus{}, domain.ErrTransactionMissing
	}

	status, event, err := s.gateway.CheckoutStatus(ctx, sessionID)
	if err != nil {
		return domain.CheckoutStatus{}, fmt.Errorf("checkout status: %w", err)
	}
	event.TransactionID = sessionID
	event.Source = domain.SourcePoll
	if event.Status == domain.PaymentPaid || event.Status == domain.PaymentFailed {
		if _, err := s.ApplyPaymentEvent(ctx, event); err != nil {
			return domain.CheckoutStatus{}, err
		}
	}
	return status, nil
}

// ReconcileOpen recovers checkouts whose webhook never arrived. Younger
// transactions are left to the webhook; a provider error on one session does
// not stop the batch.
func (s *Service) ReconcileOpen(ctx context.Context, minAge, maxAge time.Duration, limit int) (int, error) {
	if s.gateway == nil {
		return 0, nil
	}
	now := s.clock.Now()
	txns, err := s.repo.ListOpen(ctx, s.db, now.Add(-maxAge), now.Add(-minAge), limit)
	if err != nil {
		return 0, err
	}

	var (
		applied int
		errs    error
	)
	for _, txn := range txns {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		_, event, err := s.gateway.CheckoutStatus(ctx, txn.SessionID)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("checkout status %s: %w", txn.SessionID, err))
			continue
		}
		if event.Status != domain.PaymentPaid && event.Status != domain.PaymentFailed {
			continue
		}
		event.TransactionID = txn.SessionID
		event.Source = domain.SourceReconcile
		res, err := s.ApplyPaymentEvent(ctx, event)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if res.Outcome == domain.OutcomeApplied {
			applied++
		}
	}
	return applied, errs
}

// CreateCheckout opens a provider checkout at the catalog price and records
// the initiated transaction.
func (s *Service) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if s.gateway == nil {
		return domain.CheckoutSession{}, domain.ErrPaymentsDisabled
	}
	if !req.Plan.Paid() {
		return domain.CheckoutSession{}, plandomain.ErrInvalidPlan
	}
	origin, err := url.Parse(strings.TrimRight(strings.TrimSpace(req.OriginURL), "/"))
	if err != nil || (origin.Scheme != "http" && origin.Scheme != "https") || origin.Host == "" {
		return domain.CheckoutSession{}, domain.ErrInvalidOriginURL
	}
	req.OriginURL = origin.String()

	price, err := s.catalog.Price(req.Plan, req.BillingCycle)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	account, err := s.accountRepo.FindByID(ctx, s.db, req.AccountID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if account == nil {
		return domain.CheckoutSession{}, accountdomain.ErrNotFound
	}

	session, err := s.gateway.CreateCheckout(ctx, req, price.Amount, price.Currency)
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("create checkout: %w", err)
	}

	now := s.clock.Now()
	if err := s.repo.InsertTransaction(ctx, s.db, &domain.PaymentTransaction{
		ID:            s.genID.Generate(),
		SessionID:     session.SessionID,
		AccountID:     account.ID,
		Plan:          req.Plan,
		BillingCycle:  req.BillingCycle,
		Amount:        price.Amount,
		Currency:      price.Currency,
		PaymentStatus: domain.PaymentInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return domain.CheckoutSession{}, err
	}
	return session, nil
}

// Cancel stops renewal. The paid period is kept so access continues until
// subscription_ends_at.
func (s *Service) Cancel(ctx context.Context, accountID snowflake.ID) (domain.CancelResult, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.CancelResult{}, err
	}
	if account == nil {
		return domain.CancelResult{}, accountdomain.ErrNotFound
	}
	if _, err := s.accountRepo.UpdateStatus(ctx, s.db, accountID, accountdomain.StatusCancelled, s.clock.Now()); err != nil {
		return domain.CancelResult{}, err
	}

	res := domain.CancelResult{Success: true, Message: "Subscription cancelled.", EndsAt: account.SubscriptionEndsAt}
	if account.SubscriptionEndsAt != nil {
		res.Message = fmt.Sprintf("Subscription cancelled. You'll have access until %s.",
			account.SubscriptionEndsAt.Format("January 2, 2006"))
	}
	s.log.Info("subscription cancelled", zap.Int64("account_id", accountID.Int64()))
	return res, nil
}

func (s *Service) Subscription(ctx context.Context, accountID snowflake.ID) (domain.SubscriptionView, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.SubscriptionView{}, err
	}
	if account == nil {
		return domain.SubscriptionView{}, accountdomain.ErrNotFound
	}
	return domain.SubscriptionView{
		Plan:             account.Plan,
		Status:           string(account.SubscriptionStatus),
		BillingCycle:     account.BillingCycle,
		CurrentPeriodEnd: account.SubscriptionEndsAt,
	}, nil
}

func (s *Service) RecentNotifications(ctx context.Context, limit int) ([]domain.NotificationView, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	items, err := s.repo.ListNotifications(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	views := make([]domain.NotificationView, 0, len(items))
	for _, n := range items {
		elapsed := now.Sub(n.CreatedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		views = append(views, domain.NotificationView{
			DisplayName:  n.DisplayName(),
			Plan:         n.Plan,
			BillingCycle: n.BillingCycle,
			TimeAgo:      timeAgo(elapsed),
			SecondsAgo:   int64(elapsed / time.Second),
			CreatedAt:    n.CreatedAt,
		})
	}
	return views, nil
}

func rejected(reason string) domain.Result {
	return domain.Result{Outcome: domain.OutcomeRejected, Reason: reason}
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "there"
	}
	return parts[0]
}
