// Package registry loads provider configuration and builds one gateway
// adapter per rail via a kind-to-constructor map, selected once at load time.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unipay/payment-core/internal/gateway"
	"github.com/unipay/payment-core/internal/interfaces"
	"github.com/unipay/payment-core/internal/models"
)

const cacheTTL = 5 * time.Minute

type constructor func(p *models.PaymentProvider, rdb *redis.Client) (interfaces.Gateway, error)

var constructors = map[models.ProviderKind]constructor{
	models.KindCardWallet: func(p *models.PaymentProvider, _ *redis.Client) (interfaces.Gateway, error) {
		return gateway.NewCardWalletAdapter(p)
	},
	models.KindReferenceCode: func(p *models.PaymentProvider, _ *redis.Client) (interfaces.Gateway, error) {
		return gateway.NewReferenceCodeAdapter(p)
	},
	models.KindBankTransfer: func(p *models.PaymentProvider, rdb *redis.Client) (interfaces.Gateway, error) {
		return gateway.NewBankTransferAdapter(p, rdb)
	},
	models.KindCashOnDelivery: func(p *models.PaymentProvider, _ *redis.Client) (interfaces.Gateway, error) {
		return gateway.NewCashOnDeliveryAdapter(p)
	},
}

type entry struct {
	provider *models.PaymentProvider
	gateway  interfaces.Gateway
	loadedAt time.Time
}

// Registry caches provider rows together with their constructed adapters.
// Credentials are validated at load time so each adapter receives a
// strongly-typed config.
type Registry struct {
	store interfaces.ProviderStore
	rdb   *redis.Client

	mu    sync.RWMutex
	cache map[string]entry
}

func New(store interfaces.ProviderStore, rdb *redis.Client) *Registry {
	return &Registry{
		store: store,
		rdb:   rdb,
		cache: make(map[string]entry),
	}
}

// Gateway resolves an active provider and its adapter. Unknown or inactive
// codes fail with models.ErrUnknownProvider.
func (r *Registry) Gateway(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error) {
	e, err := r.resolve(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if !e.provider.IsActive {
		return nil, nil, models.ErrUnknownProvider
	}
	return e.provider, e.gateway, nil
}

// GatewayForWebhook resolves an adapter without the IsActive check: a rail
// disabled for new payments still delivers callbacks for in-flight ones.
func (r *Registry) GatewayForWebhook(ctx context.Context, code string) (*models.PaymentProvider, interfaces.Gateway, error) {
	e, err := r.resolve(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	return e.provider, e.gateway, nil
}

// Provider resolves the configuration row alone, for fee quotes.
func (r *Registry) Provider(ctx context.Context, code string) (*models.PaymentProvider, error) {
	p, _, err := r.Gateway(ctx, code)
	return p, err
}

// ActiveProviders lists the rails currently open for new payments. Reads
// through to the store so a freshly activated rail shows up immediately.
func (r *Registry) ActiveProviders(ctx context.Context) ([]*models.PaymentProvider, error) {
	return r.store.ListActiveProviders(ctx)
}

func (r *Registry) resolve(ctx context.Context, code string) (entry, error) {
	r.mu.RLock()
	e, ok := r.cache[code]
	r.mu.RUnlock()
	if ok && time.Since(e.loadedAt) < cacheTTL {
		return e, nil
	}

	p, err := r.store.GetProvider(ctx, code)
	if err != nil {
		return entry{}, err
	}
	if p == nil {
		return entry{}, models.ErrUnknownProvider
	}

	build, ok := constructors[p.Kind]
	if !ok {
		return entry{}, fmt.Errorf("provider %s: no adapter for kind %q", code, p.Kind)
	}
	gw, err := build(p, r.rdb)
	if err != nil {
		return entry{}, err
	}

	e = entry{provider: p, gateway: gw, loadedAt: time.Now()}
	r.mu.Lock()
	r.cache[code] = e
	r.mu.Unlock()
	return e, nil
}
