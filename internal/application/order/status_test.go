package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	appInventory "github.com/Zhima-Mochi/storefront/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/storefront/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = application.Actor{UserID: "ops", Admin: true}

func seedOrder(t *testing.T, repo *memory.OrderRepository, id, user string) *domorder.Order {
	t.Helper()
	o, err := domorder.New(id, user, "", []domorder.Line{{ProductID: "widget", ProductName: "Widget", Quantity: 1, UnitPrice: 1000}}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(context.Background(), o))
	return o
}

func TestUpdateStatus(t *testing.T) {
	repo := memory.NewOrderRepository()
	events := &recorder{}
	uc := appOrder.NewUpdateStatusUseCase(repo, nil, events, nil)
	ctx := context.Background()
	seedOrder(t, repo, "o-1", "alice")

	_, err := uc.Execute(ctx, appOrder.UpdateStatusInput{Actor: alice, OrderID: "o-1", Status: "processing"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	res, err := uc.Execute(ctx, appOrder.UpdateStatusInput{Actor: admin, OrderID: "o-1", Status: "processing"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domorder.StatusProcessing, res.Order.Status)

	changed := events.named("order.status_changed")
	require.Len(t, changed, 1)
	ev := changed[0].(domorder.StatusChangedEvent)
	assert.Equal(t, domorder.StatusPending, ev.From)
	assert.Equal(t, domorder.StatusProcessing, ev.To)
	assert.Equal(t, "admin", ev.Source)

	res, err = uc.Execute(ctx, appOrder.UpdateStatusInput{Actor: admin, OrderID: "o-1", Status: "processing"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Len(t, events.named("order.status_changed"), 1)
}

func TestUpdateStatusRejections(t *testing.T) {
	repo := memory.NewOrderRepository()
	uc := appOrder.NewUpdateStatusUseCase(repo, nil, nil, nil)
	ctx := context.Background()
	seedOrder(t, repo, "o-1", "alice")

	tests := []struct {
		name    string
		orderID string
		status  string
		kind    apperr.Kind
		code    string
	}{
		{name: "unknown status", orderID: "o-1", status: "lost", kind: apperr.KindValidation, code: "STATUS_INVALID"},
		{name: "missing order", orderID: "o-404", status: "processing", kind: apperr.KindNotFound, code: "ORDER_NOT_FOUND"},
		{name: "skips a step", orderID: "o-1", status: "delivered", kind: apperr.KindAuthorization, code: "TRANSITION_FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(ctx, appOrder.UpdateStatusInput{Actor: admin, OrderID: tt.orderID, Status: tt.status})
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}

	o, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPending, o.Status)
}

func TestQueriesEnforceOwnership(t *testing.T) {
	repo := memory.NewOrderRepository()
	q := appOrder.NewQueries(repo, nil)
	ctx := context.Background()
	seedOrder(t, repo, "o-1", "alice")
	time.Sleep(time.Millisecond)
	seedOrder(t, repo, "o-2", "alice")
	seedOrder(t, repo, "o-3", "bob")

	_, err := q.Get(ctx, application.Actor{UserID: "bob"}, "o-1")
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	o, err := q.Get(ctx, admin, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", o.UserID)

	_, err = q.Get(ctx, alice, "o-404")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	mine, err := q.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "o-2", mine[0].ID)

	_, err = q.List(ctx, application.Actor{})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

// stalledBus never accepts an event before the publisher gives up, like a bus
// whose queue is full.
type stalledBus struct{}

func (stalledBus) Publish(ctx context.Context, _ domoutbox.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

// unsavedOrders runs the mutation but fails to store it.
type unsavedOrders struct {
	*memory.OrderRepository
}

func (r unsavedOrders) Transition(ctx context.Context, id string, fn domorder.MutateFunc) (*domorder.Order, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	return nil, errors.New("disk full")
}

func widgetStock(t *testing.T, products *memory.ProductRepository) int {
	t.Helper()
	p, err := products.Get(context.Background(), "widget")
	require.NoError(t, err)
	return p.Stock
}

func cancelOrder(uc *appOrder.UpdateStatusUseCase, orderID string) (*appOrder.UpdateStatusResult, error) {
	return uc.Execute(context.Background(), appOrder.UpdateStatusInput{Actor: admin, OrderID: orderID, Status: "cancelled"})
}

func TestCancelReturnsStockOnce(t *testing.T) {
	repo := memory.NewOrderRepository()
	products := memory.NewProductRepository(catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 2})
	events := &recorder{}
	uc := appOrder.NewUpdateStatusUseCase(repo, appInventory.NewRestockOnCancelUseCase(products, true, nil), events, nil)
	seedOrder(t, repo, "o-1", "alice")

	res, err := cancelOrder(uc, "o-1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domorder.StatusCancelled, res.Order.Status)
	assert.Equal(t, 3, widgetStock(t, products))

	released := events.named("inventory.released")
	require.Len(t, released, 1)
	ev := released[0].(dominv.StockReleasedEvent)
	assert.Equal(t, "o-1", ev.OrderID)
	assert.Equal(t, 1, ev.Quantity)
	assert.Equal(t, dominv.ReleaseReasonOrderCancelled, ev.Reason)

	res, err = cancelOrder(uc, "o-1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 3, widgetStock(t, products))
	assert.Len(t, events.named("inventory.released"), 1)
}

func TestCancelReturnsStockWhileBusIsStalled(t *testing.T) {
	repo := memory.NewOrderRepository()
	products := memory.NewProductRepository(catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 2})
	uc := appOrder.NewUpdateStatusUseCase(repo, appInventory.NewRestockOnCancelUseCase(products, true, nil), stalledBus{}, nil)
	seedOrder(t, repo, "o-1", "alice")

	res, err := cancelOrder(uc, "o-1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 3, widgetStock(t, products))
}

func TestCancelKeepsStockWhenPolicyDisabled(t *testing.T) {
	repo := memory.NewOrderRepository()
	products := memory.NewProductRepository(catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 2})
	events := &recorder{}
	uc := appOrder.NewUpdateStatusUseCase(repo, appInventory.NewRestockOnCancelUseCase(products, false, nil), events, nil)
	seedOrder(t, repo, "o-1", "alice")

	_, err := cancelOrder(uc, "o-1")
	require.NoError(t, err)
	assert.Equal(t, 2, widgetStock(t, products))
	assert.Empty(t, events.named("inventory.released"))
}

func TestCancelAbortsWhenStockCannotReturn(t *testing.T) {
	repo := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	uc := appOrder.NewUpdateStatusUseCase(repo, appInventory.NewRestockOnCancelUseCase(products, true, nil), nil, nil)
	seedOrder(t, repo, "o-1", "alice")

	_, err := cancelOrder(uc, "o-1")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, "RESTOCK_FAILED", apperr.CodeOf(err))
	assert.ErrorIs(t, err, dominv.ErrNotFound)

	o, err := repo.Get(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPending, o.Status)
}

func TestCancelTakesStockBackWhenSaveFails(t *testing.T) {
	repo := memory.NewOrderRepository()
	products := memory.NewProductRepository(catalog.Product{ID: "widget", Name: "Widget", UnitPrice: 1000, Stock: 2})
	uc := appOrder.NewUpdateStatusUseCase(unsavedOrders{repo}, appInventory.NewRestockOnCancelUseCase(products, true, nil), nil, nil)
	seedOrder(t, repo, "o-1", "alice")

	_, err := cancelOrder(uc, "o-1")
	assert.Equal(t, "ORDER_UPDATE_FAILED", apperr.CodeOf(err))
	assert.Equal(t, 2, widgetStock(t, products))
}
