package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/bookwatch/internal/domain"
)

func TestNotifierDeliversInRegistrationOrder(t *testing.T) {
	n := NewNotifier(testLogger())

	var order []string
	n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "a") })
	n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "b") })
	n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "c") })

	n.Publish(map[string]domain.MarketSnapshot{})

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestNotifierUnsubscribeStopsDelivery(t *testing.T) {
	n := NewNotifier(testLogger())

	calls := 0
	token := n.Subscribe(func(map[string]domain.MarketSnapshot) { calls++ })

	n.Publish(map[string]domain.MarketSnapshot{})
	require.Equal(t, 1, calls)

	n.Unsubscribe(token)
	n.Publish(map[string]domain.MarketSnapshot{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, n.Len())
}

func TestNotifierUnsubscribeUnknownTokenNoop(t *testing.T) {
	n := NewNotifier(testLogger())
	n.Subscribe(func(map[string]domain.MarketSnapshot) {})

	n.Unsubscribe("no-such-token")
	n.Unsubscribe("")

	assert.Equal(t, 1, n.Len())
}

func TestNotifierUnsubscribePreservesRemainingOrder(t *testing.T) {
	n := NewNotifier(testLogger())

	var order []string
	n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "a") })
	middle := n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "b") })
	n.Subscribe(func(map[string]domain.MarketSnapshot) { order = append(order, "c") })

	n.Unsubscribe(middle)
	n.Publish(map[string]domain.MarketSnapshot{})

	assert.Equal(t, []string{"a", "c"}, order)
}

func TestNotifierHandlerMayUnsubscribeDuringDelivery(t *testing.T) {
	n := NewNotifier(testLogger())

	var token string
	calls := 0
	token = n.Subscribe(func(map[string]domain.MarketSnapshot) {
		calls++
		n.Unsubscribe(token)
	})

	n.Publish(map[string]domain.MarketSnapshot{})
	n.Publish(map[string]domain.MarketSnapshot{})

	assert.Equal(t, 1, calls)
}

func TestNotifierHandlerReceivesFullSet(t *testing.T) {
	n := NewNotifier(testLogger())

	var got map[string]domain.MarketSnapshot
	n.Subscribe(func(set map[string]domain.MarketSnapshot) { got = set })

	set := map[string]domain.MarketSnapshot{
		"BTC-USD": {Instrument: "BTC-USD", MidPrice: 100.01},
		"ETH-USD": {Instrument: "ETH-USD", MidPrice: 2500.5},
	}
	n.Publish(set)

	require.Len(t, got, 2)
	assert.Equal(t, set, got)
}
