package service

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
	"github.com/unipay/payment-core/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.InitTestLogger()
	os.Exit(m.Run())
}

type statusUpdate struct {
	id     string
	from   models.TransactionStatus
	to     models.TransactionStatus
	fields models.StatusFields
}

type webhookCall struct {
	provider string
	eventID  string
	txID     string
	to       models.TransactionStatus
	fields   models.StatusFields
}

type finalizeCall struct {
	refundID   string
	gatewayRef string
	succeeded  bool
}

type mockStore struct {
	inserted  []*models.PaymentTransaction
	insertErr error

	updates       []statusUpdate
	updateApplied bool

	byID     map[string]*models.PaymentTransaction
	byNumber map[string]*models.PaymentTransaction

	// reservation accounting mirrors the repository: pending and completed
	// refunds both count against the transaction amount
	refunds       []*models.PaymentRefund
	finalized     []finalizeCall
	refundedTotal decimal.Decimal

	webhookCalls     []webhookCall
	webhookApplied   bool
	webhookDuplicate bool
	webhookErr       error
}

func newMockStore() *mockStore {
	return &mockStore{
		updateApplied: true,
		byID:          make(map[string]*models.PaymentTransaction),
		byNumber:      make(map[string]*models.PaymentTransaction),
	}
}

func (s *mockStore) add(tx *models.PaymentTransaction) {
	s.byID[tx.ID] = tx
	s.byNumber[tx.TransactionNumber] = tx
}

func (s *mockStore) InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, tx)
	s.add(tx)
	return nil
}

func (s *mockStore) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	tx, ok := s.byID[id]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *mockStore) GetByTransactionNumber(ctx context.Context, number string) (*models.PaymentTransaction, error) {
	tx, ok := s.byNumber[number]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *mockStore) UpdateTransactionStatus(ctx context.Context, id string, from, to models.TransactionStatus, fields models.StatusFields) (bool, error) {
	if !models.CanTransition(from, to) {
		return false, models.ErrInvalidTransition
	}
	s.updates = append(s.updates, statusUpdate{id: id, from: from, to: to, fields: fields})
	return s.updateApplied, nil
}

func (s *mockStore) ReserveRefund(ctx context.Context, refund *models.PaymentRefund) error {
	tx, ok := s.byID[refund.TransactionID]
	if !ok {
		return models.ErrTransactionNotFound
	}
	if !tx.Status.Refundable() {
		return models.ErrRefundNotAllowed
	}
	reserved := s.refundedTotal
	for _, r := range s.refunds {
		if r.Status != models.RefundFailed {
			reserved = reserved.Add(r.Amount)
		}
	}
	if refund.Amount.Cmp(tx.Amount.Sub(reserved)) > 0 {
		return models.ErrRefundExceedsBalance
	}
	s.refunds = append(s.refunds, refund)
	return nil
}

func (s *mockStore) FinalizeRefund(ctx context.Context, refundID, transactionID, gatewayRef string, succeeded bool) error {
	s.finalized = append(s.finalized, finalizeCall{refundID: refundID, gatewayRef: gatewayRef, succeeded: succeeded})
	for _, r := range s.refunds {
		if r.ID == refundID {
			if succeeded {
				r.Status = models.RefundCompleted
				r.GatewayRef = gatewayRef
			} else {
				r.Status = models.RefundFailed
			}
		}
	}
	return nil
}

func (s *mockStore) RefundedTotal(ctx context.Context, transactionID string) (decimal.Decimal, error) {
	return s.refundedTotal, nil
}

func (s *mockStore) ApplyWebhookTransition(ctx context.Context, provider, eventID, transactionID string, to models.TransactionStatus, fields models.StatusFields) (bool, bool, error) {
	if s.webhookErr != nil {
		return false, false, s.webhookErr
	}
	s.webhookCalls = append(s.webhookCalls, webhookCall{
		provider: provider, eventID: eventID, txID: transactionID,
		to: to, fields: fields,
	})
	return s.webhookApplied, s.webhookDuplicate, nil
}

type fakeResolver struct {
	provider *models.PaymentProvider
	gateway  interfaces.Gateway
	err      error
}

func (r *fakeResolver) Gateway(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error) {
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.provider, r.gateway, nil
}

func (r *fakeResolver) GatewayForWebhook(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error) {
	return r.Gateway(ctx, code)
}

func (r *fakeResolver) Provider(ctx context.Context, code string) (*models.PaymentProvider, error) {
	p, _, err := r.Gateway(ctx, code)
	return p, err
}

func (r *fakeResolver) ActiveProviders(ctx context.Context) ([]*models.PaymentProvider, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.provider == nil {
		return nil, nil
	}
	return []*models.PaymentProvider{r.provider}, nil
}

type stubGateway struct {
	kind models.ProviderKind

	initRes   *interfaces.InitiateResult
	initErr   error
	initCalls int

	refundRes   *interfaces.RefundCallResult
	refundErr   error
	refundCalls int

	notice   *models.WebhookNotice
	parseErr error
}

func (g *stubGateway) Kind() models.ProviderKind { return g.kind }

func (g *stubGateway) Initiate(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.InitiateResult, error) {
	g.initCalls++
	return g.initRes, g.initErr
}

func (g *stubGateway) CheckStatus(ctx context.Context, tx *models.PaymentTransaction) (*interfaces.StatusResult, error) {
	return &interfaces.StatusResult{Status: tx.Status}, nil
}

func (g *stubGateway) Refund(ctx context.Context, tx *models.PaymentTransaction, amount decimal.Decimal, reason string) (*interfaces.RefundCallResult, error) {
	g.refundCalls++
	return g.refundRes, g.refundErr
}

func (g *stubGateway) ParseWebhook(payload []byte, signature string) (*models.WebhookNotice, error) {
	return g.notice, g.parseErr
}

type countingNotifier struct {
	calls   int
	numbers []string
}

func (n *countingNotifier) OnPaymentSettled(ctx context.Context, transactionNumber, orderID string, amount decimal.Decimal) error {
	n.calls++
	n.numbers = append(n.numbers, transactionNumber)
	return nil
}

func activeProvider(code string, kind models.ProviderKind) *models.PaymentProvider {
	return &models.PaymentProvider{
		Code:          code,
		Kind:          kind,
		IsActive:      true,
		MinAmount:     decimal.RequireFromString("10"),
		MaxAmount:     decimal.RequireFromString("100000"),
		FixedFee:      decimal.RequireFromString("2.50"),
		PercentageFee: decimal.RequireFromString("0.0275"),
	}
}
