package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	dompay "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCardPayment(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")

	p := f.pay(t, "o-1", dompay.MethodCard)
	assert.Contains(t, p.ID, "pay_")
	assert.Equal(t, dompay.StatusPending, p.Status)
	assert.Equal(t, int64(2000), p.Amount)
	assert.Equal(t, "usd", p.Currency)
	assert.Contains(t, p.TransactionRef, "pi_")
	assert.Contains(t, p.ClientSecret, p.TransactionRef+"_secret_")

	outcome, err := f.gateway.IntentStatus(context.Background(), p.TransactionRef)
	require.NoError(t, err)
	assert.Equal(t, dompay.OutcomePending, outcome)
}

func TestCreatePaymentReplaysPendingPayment(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")
	first := f.pay(t, "o-1", dompay.MethodCard)

	res, err := f.create.Execute(context.Background(), appPayment.CreatePaymentInput{
		Actor: alice, OrderID: "o-1", Method: dompay.MethodCard, Amount: 2000,
	})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, first.ID, res.Payment.ID)
	assert.Equal(t, first.TransactionRef, res.Payment.TransactionRef)

	_, err = f.create.Execute(context.Background(), appPayment.CreatePaymentInput{
		Actor: alice, OrderID: "o-1", Method: dompay.MethodCashOnDelivery, Amount: 2000,
	})
	assert.Equal(t, apperr.KindIdempotencyConflict, apperr.KindOf(err))
	assert.Equal(t, "PAYMENT_EXISTS", apperr.CodeOf(err))
}

func TestCreateCashOnDeliveryNeverCallsProcessor(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")
	f.gateway.SetUnavailable(errors.New("should not be called"))

	p := f.pay(t, "o-1", dompay.MethodCashOnDelivery)
	assert.Equal(t, dompay.CashRef("o-1"), p.TransactionRef)
	assert.Empty(t, p.ClientSecret)
	assert.Equal(t, dompay.StatusPending, p.Status)
}

func TestCreatePaymentRejections(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")
	cancelled := f.placeOrder(t, "o-2", "alice")
	_, err := f.orders.Transition(context.Background(), cancelled.ID, func(o *domorder.Order) error {
		_, terr := o.TransitionTo(domorder.StatusCancelled)
		return terr
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		cmd  appPayment.CreatePaymentInput
		kind apperr.Kind
		code string
	}{
		{
			name: "anonymous",
			cmd:  appPayment.CreatePaymentInput{OrderID: "o-1", Method: dompay.MethodCard, Amount: 2000},
			kind: apperr.KindAuthorization,
			code: "AUTH_REQUIRED",
		},
		{
			name: "unknown method",
			cmd:  appPayment.CreatePaymentInput{Actor: alice, OrderID: "o-1", Method: "barter", Amount: 2000},
			kind: apperr.KindValidation,
			code: "METHOD_INVALID",
		},
		{
			name: "zero amount",
			cmd:  appPayment.CreatePaymentInput{Actor: alice, OrderID: "o-1", Method: dompay.MethodCard},
			kind: apperr.KindValidation,
			code: "AMOUNT_INVALID",
		},
		{
			name: "amount mismatch",
			cmd:  appPayment.CreatePaymentInput{Actor: alice, OrderID: "o-1", Method: dompay.MethodCard, Amount: 1999},
			kind: apperr.KindValidation,
			code: "AMOUNT_MISMATCH",
		},
		{
			name: "missing order",
			cmd:  appPayment.CreatePaymentInput{Actor: alice, OrderID: "o-404", Method: dompay.MethodCard, Amount: 2000},
			kind: apperr.KindNotFound,
			code: "ORDER_NOT_FOUND",
		},
		{
			name: "someone else's order",
			cmd:  appPayment.CreatePaymentInput{Actor: bob, OrderID: "o-1", Method: dompay.MethodCard, Amount: 2000},
			kind: apperr.KindAuthorization,
			code: "ORDER_FORBIDDEN",
		},
		{
			name: "order not pending",
			cmd:  appPayment.CreatePaymentInput{Actor: alice, OrderID: "o-2", Method: dompay.MethodCard, Amount: 2000},
			kind: apperr.KindValidation,
			code: "ORDER_NOT_PAYABLE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.create.Execute(context.Background(), tt.cmd)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	_, err = f.payments.GetByOrder(context.Background(), "o-1")
	assert.ErrorIs(t, err, dompay.ErrNotFound)
}

func TestGatewayFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")
	f.gateway.SetUnavailable(errors.New("connection refused"))

	_, err := f.create.Execute(context.Background(), appPayment.CreatePaymentInput{
		Actor: alice, OrderID: "o-1", Method: dompay.MethodCard, Amount: 2000,
	})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindGateway, e.Kind)
	assert.True(t, e.Kind.Retryable())
	assert.ErrorIs(t, err, dompay.ErrGateway)

	_, err = f.payments.GetByOrder(context.Background(), "o-1")
	assert.ErrorIs(t, err, dompay.ErrNotFound)

	f.gateway.SetUnavailable(nil)
	p := f.pay(t, "o-1", dompay.MethodCard)
	assert.Equal(t, dompay.StatusPending, p.Status)
}

func TestQueriesHidePaymentsOfOtherUsers(t *testing.T) {
	f := newFixture(t)
	f.placeOrder(t, "o-1", "alice")
	p := f.pay(t, "o-1", dompay.MethodCard)
	ctx := context.Background()

	got, err := f.queries.Get(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.queries.Get(ctx, bob, p.ID)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	got, err = f.queries.GetByOrder(ctx, admin, "o-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.queries.GetByOrder(ctx, bob, "o-1")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	f.placeOrder(t, "o-2", "alice")
	_, err = f.queries.GetByOrder(ctx, alice, "o-2")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
