package order_test

import (
	"testing"

	"github.com/Zhima-Mochi/storefront/internal/domain/order"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New("o-1", "u-1", "", []order.Line{
		{ProductID: "p-1", ProductName: "Widget", Quantity: 2, UnitPrice: 999},
		{ProductID: "p-2", ProductName: "Gadget", Quantity: 1, UnitPrice: 2},
	}, nil)
	require.NoError(t, err)
	return o
}

func TestNewComputesTotal(t *testing.T) {
	o := newOrder(t)
	assert.Equal(t, int64(2000), o.TotalPrice())
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Len(t, o.Lines(), 2)
}

func TestNewRejectsBadLines(t *testing.T) {
	_, err := order.New("o", "u", "", nil, nil)
	assert.ErrorIs(t, err, order.ErrNoLines)

	_, err = order.New("o", "u", "", []order.Line{{ProductID: "p", Quantity: 0, UnitPrice: 1}}, nil)
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = order.New("o", "u", "", []order.Line{{ProductID: "p", Quantity: 1, UnitPrice: -1}}, nil)
	assert.ErrorIs(t, err, order.ErrInvalidPrice)
}

func TestLinesAreCopies(t *testing.T) {
	o := newOrder(t)
	lines := o.Lines()
	lines[0].UnitPrice = 1

	assert.Equal(t, int64(999), o.Lines()[0].UnitPrice)
	assert.Equal(t, int64(2000), o.TotalPrice())

	c := o.Clone()
	c.Status = order.StatusCancelled
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, s)

	_, err = order.ParseStatus("lost")
	assert.ErrorIs(t, err, order.ErrUnknownStatus)
}

func TestPaymentCoupling(t *testing.T) {
	tests := []struct {
		name    string
		from    order.Status
		failed  bool
		want    order.Status
		changed bool
		wantErr error
	}{
		{name: "pending completes", from: order.StatusPending, want: order.StatusProcessing, changed: true},
		{name: "processing completes again", from: order.StatusProcessing, want: order.StatusProcessing},
		{name: "shipped ignores completion", from: order.StatusShipped, want: order.StatusShipped},
		{name: "cancelled refuses completion", from: order.StatusCancelled, wantErr: order.ErrInvalidStateTransition},
		{name: "pending fails", from: order.StatusPending, failed: true, want: order.StatusCancelled, changed: true},
		{name: "cancelled fails again", from: order.StatusCancelled, failed: true, want: order.StatusCancelled},
		{name: "delivered refuses failure", from: order.StatusDelivered, failed: true, wantErr: order.ErrInvalidStateTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrder(t)
			o.Status = tt.from

			var changed bool
			var err error
			if tt.failed {
				changed, err = o.ApplyPaymentFailed()
			} else {
				changed, err = o.ApplyPaymentCompleted()
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, o.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, o.Status)
		})
	}
}

func TestAdminTransitions(t *testing.T) {
	allowed := map[order.Status][]order.Status{
		order.StatusPending:    {order.StatusProcessing, order.StatusCancelled},
		order.StatusProcessing: {order.StatusShipped, order.StatusCancelled},
		order.StatusShipped:    {order.StatusDelivered},
		order.StatusDelivered:  {order.StatusCompleted},
		order.StatusCompleted:  {},
		order.StatusCancelled:  {},
	}
	all := []order.Status{
		order.StatusPending, order.StatusProcessing, order.StatusShipped,
		order.StatusDelivered, order.StatusCompleted, order.StatusCancelled,
	}

	for from, targets := range allowed {
		for _, to := range all {
			o := newOrder(t)
			o.Status = from
			changed, err := o.TransitionTo(to)

			switch {
			case to == from:
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.False(t, changed)
			case contains(targets, to):
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, changed)
				assert.Equal(t, to, o.Status)
			default:
				assert.ErrorIs(t, err, order.ErrInvalidStateTransition, "%s -> %s", from, to)
				assert.Equal(t, from, o.Status)
			}
		}
	}
}

func contains(ss []order.Status, s order.Status) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
