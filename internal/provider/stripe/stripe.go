// Package stripe implements provider.Provider on top of the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/Domenick1991/eventflow/internal/provider"
	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const minimumAmountCents = 50

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	// Backends overrides the API endpoints, nil means the Stripe defaults.
	Backends *stripeapi.Backends
}

type Provider struct {
	api           *client.API
	webhookSecret string
	currency      string
}

// New returns a provider; with an empty secret key every API call fails with
// provider.ErrNotConfigured.
func New(cfg Config) *Provider {
	p := &Provider{webhookSecret: cfg.WebhookSecret, currency: strings.ToLower(cfg.Currency)}
	if p.currency == "" {
		p.currency = string(stripeapi.CurrencyUSD)
	}
	if cfg.SecretKey != "" {
		p.api = client.New(cfg.SecretKey, cfg.Backends)
	}
	return p
}

func (p *Provider) Configured() bool {
	return p.api != nil
}

func (p *Provider) MinimumAmount() int64 {
	return minimumAmountCents
}

func (p *Provider) CreateIntent(ctx context.Context, req provider.IntentRequest) (*provider.Intent, error) {
	if p.api == nil {
		return nil, provider.ErrNotConfigured
	}
	params := &stripeapi.PaymentIntentParams{
		Amount:      stripeapi.Int64(req.AmountCents),
		Currency:    stripeapi.String(p.currency),
		Description: stripeapi.String(req.Description),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripeapi.Bool(true),
			AllowRedirects: stripeapi.String("never"),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata.Map() {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify("create payment intent", err)
	}
	return toIntent(pi), nil
}

func (p *Provider) GetIntent(ctx context.Context, id string) (*provider.Intent, error) {
	if p.api == nil {
		return nil, provider.ErrNotConfigured
	}
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, classify("retrieve payment intent", err)
	}
	return toIntent(pi), nil
}

func (p *Provider) ParseWebhook(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, provider.ErrNotConfigured
	}
	// Events are rendered in the endpoint's pinned API version, which may lag the SDK.
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidSignature, err)
	}

	out := &provider.WebhookEvent{ID: event.ID, Type: provider.WebhookEventType(event.Type)}
	if event.Data == nil || !strings.HasPrefix(string(event.Type), "payment_intent.") {
		return out, nil
	}
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", domain.ErrPaymentVerification, err)
	}
	out.Intent = toIntent(&pi)
	return out, nil
}

func toIntent(pi *stripeapi.PaymentIntent) *provider.Intent {
	return &provider.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       provider.IntentStatus(pi.Status),
		Metadata:     provider.MetadataFromMap(pi.Metadata),
	}
}

// classify maps request errors rejected by Stripe to a verification failure and
// everything else (network, timeouts, auth, 5xx) to a retryable unavailability.
func classify(op string, err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripeapi.ErrorTypeInvalidRequest && stripeErr.HTTPStatusCode < 500 {
		return fmt.Errorf("%w: %s: %s", domain.ErrPaymentVerification, op, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUnavailable, op, err)
}

var _ provider.Provider = (*Provider)(nil)
