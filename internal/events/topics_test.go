package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/events"
)

func TestTopicsApplyPrefix(t *testing.T) {
	require.Equal(t, []string{"order.created", "voucher.redeemed"}, events.Topics(""))
	require.Equal(t, []string{"shop.order.created", "shop.voucher.redeemed"}, events.Topics("shop."))
}

func TestEnsureTopicsWithoutBrokers(t *testing.T) {
	require.Error(t, events.EnsureTopics(context.Background(), nil, 1, 1, events.Topics("")...))
}
