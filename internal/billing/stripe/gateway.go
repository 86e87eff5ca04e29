// Package stripe adapts the billing gateway to the Stripe API.
package stripe

import (
	"context"
	"strings"

	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

type Gateway struct {
	api *client.API
}

// New wires a Stripe client with the account secret key.
func New(secretKey string) *Gateway {
	api := &client.API{}
	api.Init(strings.TrimSpace(secretKey), nil)
	return &Gateway{api: api}
}

func (g *Gateway) GetSubscription(ctx context.Context, subscriptionID string) (*billingdomain.Subscription, error) {
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}

	out := &billingdomain.Subscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			out.Items = append(out.Items, billingdomain.SubscriptionItem{
				ID:      item.ID,
				PriceID: item.Price.ID,
			})
		}
	}
	return out, nil
}

func (g *Gateway) CreateUsageRecord(ctx context.Context, subscriptionItemID string, record billingdomain.UsageRecord) error {
	params := &stripeapi.UsageRecordParams{
		SubscriptionItem: stripeapi.String(subscriptionItemID),
		Quantity:         stripeapi.Int64(record.Quantity),
		Timestamp:        stripeapi.Int64(record.Timestamp),
		Action:           stripeapi.String(record.Action),
	}
	params.Context = ctx
	if key := strings.TrimSpace(record.IdempotencyKey); key != "" {
		params.IdempotencyKey = stripeapi.String(key)
	}

	_, err := g.api.UsageRecords.New(params)
	return err
}
