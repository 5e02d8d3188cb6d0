package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"golang.org/x/sync/singleflight"

	"go-storefront/cache"
	"go-storefront/clock"
	"go-storefront/models"
)

// pendingSessionCanceler is the part of the session manager the cart store needs.
type pendingSessionCanceler interface {
	CancelPendingSessions(ctx context.Context, cartID string, keepAmount *int64) error
}

// CartService holds the mutable pre-purchase state of a customer's cart.
type CartService struct {
	carts         CartRepository
	catalog       CatalogRepository
	sessions      pendingSessionCanceler
	cache         cache.CartCache
	clock         clock.Clock
	defaultRegion string
	sfg           singleflight.Group
}

func NewCartService(carts CartRepository, catalog CatalogRepository, sessions pendingSessionCanceler, cartCache cache.CartCache, clk clock.Clock, defaultRegion string) *CartService {
	return &CartService{
		carts:         carts,
		catalog:       catalog,
		sessions:      sessions,
		cache:         cartCache,
		clock:         clk,
		defaultRegion: defaultRegion,
	}
}

type GetOrCreateCartInput struct {
	CustomerID string
	RegionID   string
	CartID     string
}

// GetOrCreateCart returns the caller's active cart, moving it to the requested
// region when it differs. A customer never gets a second active cart.
func (s *CartService) GetOrCreateCart(ctx context.Context, in GetOrCreateCartInput) (*models.Cart, error) {
	regionID := in.RegionID
	if regionID == "" {
		regionID = s.defaultRegion
	}
	region, err := s.catalog.GetRegion(ctx, regionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrRegionNotFound.Withf("region %q not found", regionID)
		}
		return nil, err
	}

	var cart *models.Cart
	if in.CartID != "" {
		cart, err = s.carts.GetCart(ctx, in.CartID)
		if errors.Is(err, models.ErrNotFound) || (err == nil && cart.CustomerID != in.CustomerID) {
			return nil, models.ErrCartNotFound
		}
		if err != nil {
			return nil, err
		}
		if cart.Retired() {
			return nil, models.ErrCartCompleted
		}
	} else {
		cart, err = s.activeOrNewCart(ctx, in.CustomerID, region)
		if err != nil {
			return nil, err
		}
	}

	if cart.RegionID == region.ID {
		return cart, nil
	}
	return s.mutate(ctx, cart.ID, func(c *models.Cart) error {
		s.moveToRegion(ctx, c, region)
		return nil
	}, s.cancelStaleSessions)
}

func (s *CartService) activeOrNewCart(ctx context.Context, customerID string, region *models.Region) (*models.Cart, error) {
	cart, err := s.carts.GetActiveCartByCustomer(ctx, customerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	cart = &models.Cart{
		ID:           newID("cart"),
		CustomerID:   customerID,
		RegionID:     region.ID,
		CurrencyCode: region.CurrencyCode,
		Items:        []models.LineItem{},
		Promotions:   []models.AppliedPromotion{},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.carts.InsertCart(ctx, cart); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			// A concurrent request created the cart first.
			return s.carts.GetActiveCartByCustomer(ctx, customerID)
		}
		return nil, err
	}
	return cart, nil
}

// moveToRegion re-prices the cart for region. Items without a price in the new
// currency are dropped; region-scoped shipping and promotions are cleared.
func (s *CartService) moveToRegion(ctx context.Context, cart *models.Cart, region *models.Region) {
	cart.RegionID = region.ID
	cart.CurrencyCode = region.CurrencyCode

	items := make([]models.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		variant, err := s.catalog.GetVariant(ctx, item.VariantID)
		if err != nil {
			log.Printf("cart region change dropped item cart=%s variant=%s err=%v", cart.ID, item.VariantID, err)
			continue
		}
		price, ok := variant.Prices[strings.ToLower(region.CurrencyCode)]
		if !ok {
			log.Printf("cart region change dropped item cart=%s variant=%s currency=%s", cart.ID, item.VariantID, region.CurrencyCode)
			continue
		}
		item.UnitPrice = price
		items = append(items, item)
	}
	cart.Items = items
	cart.ShippingMethod = nil

	promotions := cart.Promotions[:0]
	for _, p := range cart.Promotions {
		promo, err := s.catalog.GetPromotion(ctx, p.Code)
		if err == nil && promo.ActiveAt(s.clock.Now(), region.ID) {
			promotions = append(promotions, p)
		}
	}
	cart.Promotions = promotions
}

// GetCart reads through the cache. Concurrent misses for the same cart share one load.
func (s *CartService) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, id)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err)
		}

		cart, err = s.carts.GetCart(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, models.ErrCartNotFound
			}
			return nil, err
		}
		if err := s.cache.Set(ctx, cart); err != nil {
			log.Printf("cache set error: %v", err)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Cart), nil
}

func (s *CartService) AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	return s.mutate(ctx, cartID, func(cart *models.Cart) error {
		variant, err := s.catalog.GetVariant(ctx, variantID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrVariantNotFound.Withf("variant %q not found", variantID)
			}
			return err
		}
		price, ok := variant.Prices[strings.ToLower(cart.CurrencyCode)]
		if !ok {
			return models.ErrVariantNotFound.Withf("variant %q has no price in %s", variantID, strings.ToUpper(cart.CurrencyCode))
		}

		for i := range cart.Items {
			if cart.Items[i].VariantID == variantID {
				cart.Items[i].Quantity += quantity
				cart.Items[i].UnitPrice = price
				return nil
			}
		}
		cart.Items = append(cart.Items, models.LineItem{
			VariantID: variantID,
			Title:     variant.Title,
			Quantity:  quantity,
			UnitPrice: price,
		})
		return nil
	}, s.cancelStaleSessions)
}

func (s *CartService) RemoveLineItem(ctx context.Context, cartID, variantID string) (*models.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *models.Cart) error {
		for i := range cart.Items {
			if cart.Items[i].VariantID == variantID {
				cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
				return nil
			}
		}
		return models.ErrVariantNotFound.Withf("variant %q is not in the cart", variantID)
	}, s.cancelStaleSessions)
}

type SetAddressesInput struct {
	CartID         string
	Shipping       models.Address
	Billing        *models.Address
	SameAsShipping bool
	Email          string
}

// SetAddresses stores the shipping and billing addresses and the contact e-mail.
// Every pending payment session of the cart is canceled afterwards, so callers
// must re-derive the payment step.
func (s *CartService) SetAddresses(ctx context.Context, in SetAddressesInput) (*models.Cart, error) {
	if field := in.Shipping.MissingField(); field != "" {
		return nil, models.ErrAddressInvalid.Withf("shipping address field %q is required", field)
	}
	billing := in.Shipping
	if !in.SameAsShipping && in.Billing != nil {
		if field := in.Billing.MissingField(); field != "" {
			return nil, models.ErrAddressInvalid.Withf("billing address field %q is required", field)
		}
		billing = *in.Billing
	}

	return s.mutate(ctx, in.CartID, func(cart *models.Cart) error {
		email := strings.TrimSpace(in.Email)
		if email == "" {
			email = cart.Email
		}
		if email == "" {
			return models.ErrEmailInvalid.Withf("email is required")
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return models.ErrEmailInvalid.Withf("email %q is invalid", email)
		}

		region, err := s.catalog.GetRegion(ctx, cart.RegionID)
		if err != nil {
			return fmt.Errorf("load cart region: %w", err)
		}
		if !servesCountry(region, in.Shipping.CountryCode) {
			return models.ErrAddressInvalid.Withf("region %s does not ship to %q", region.ID, in.Shipping.CountryCode)
		}

		shipping := in.Shipping
		cart.ShippingAddress = &shipping
		cart.BillingAddress = &billing
		cart.Email = email
		return nil
	}, func(ctx context.Context, cart *models.Cart) error {
		return s.sessions.CancelPendingSessions(ctx, cart.ID, nil)
	})
}

// SetShippingMethod attaches a shipping option valid for the cart's region.
func (s *CartService) SetShippingMethod(ctx context.Context, cartID, optionID string) (*models.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *models.Cart) error {
		if len(cart.Items) == 0 {
			return models.ErrShippingOptionInvalid.Withf("cart has no items to ship")
		}
		option, err := s.catalog.GetShippingOption(ctx, optionID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrShippingOptionInvalid.Withf("shipping option %q not found", optionID)
			}
			return err
		}
		if option.RegionID != cart.RegionID {
			return models.ErrShippingOptionInvalid.Withf("shipping option %q is not available in region %s", optionID, cart.RegionID)
		}
		cart.ShippingMethod = &models.ShippingMethod{OptionID: option.ID, Name: option.Name, Amount: option.Amount}
		return nil
	}, s.cancelStaleSessions)
}

// ClearShippingMethod detaches the shipping method. Other checkout steps keep their state.
func (s *CartService) ClearShippingMethod(ctx context.Context, cartID string) (*models.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *models.Cart) error {
		cart.ShippingMethod = nil
		return nil
	}, s.cancelStaleSessions)
}

// ApplyPromotions replaces the applied promotion codes. One invalid code rejects
// the whole set and leaves the cart untouched.
func (s *CartService) ApplyPromotions(ctx context.Context, cartID string, codes []string) (*models.Cart, error) {
	return s.mutate(ctx, cartID, func(cart *models.Cart) error {
		now := s.clock.Now()
		seen := make(map[string]bool, len(codes))
		applied := make([]models.AppliedPromotion, 0, len(codes))

		for _, raw := range codes {
			code := strings.ToUpper(strings.TrimSpace(raw))
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true

			promo, err := s.catalog.GetPromotion(ctx, code)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return models.ErrPromotionInvalid.Withf("promotion %q is invalid or expired", code)
				}
				return err
			}
			if !promo.ActiveAt(now, cart.RegionID) {
				return models.ErrPromotionInvalid.Withf("promotion %q is invalid or expired", code)
			}
			applied = append(applied, models.AppliedPromotion{Code: promo.Code, Type: promo.Type, Value: promo.Value})
		}

		cart.Promotions = applied
		return nil
	}, s.cancelStaleSessions)
}

// linkCollection records the payment collection id on the cart.
func (s *CartService) linkCollection(ctx context.Context, cartID, collectionID string) error {
	_, err := s.mutate(ctx, cartID, func(cart *models.Cart) error {
		cart.PaymentCollectionID = collectionID
		return nil
	}, nil)
	return err
}

// mutate loads the active cart, applies change and saves it. change must not
// touch the cart before it has validated its input. after runs once the cart is
// saved; its failure is logged and the saved cart is still returned, since pending
// sessions left behind are never reused for a total they do not cover.
func (s *CartService) mutate(ctx context.Context, cartID string, change func(*models.Cart) error, after func(context.Context, *models.Cart) error) (*models.Cart, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrCartNotFound
		}
		return nil, err
	}
	if cart.Retired() {
		return nil, models.ErrCartCompleted
	}

	if err := change(cart); err != nil {
		return nil, err
	}
	cart.UpdatedAt = s.clock.Now()

	if err := s.carts.SaveCart(ctx, cart); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrCartCompleted
		}
		return nil, err
	}
	s.refreshCache(ctx, cart)

	if after != nil {
		if err := after(ctx, cart); err != nil {
			log.Printf("cart saved but payment sessions were not updated cart=%s, manual follow-up required: %v", cart.ID, err)
		}
	}
	return cart, nil
}

// cancelStaleSessions cancels pending sessions whose amount no longer matches the cart total.
func (s *CartService) cancelStaleSessions(ctx context.Context, cart *models.Cart) error {
	total := cart.Totals().Total
	return s.sessions.CancelPendingSessions(ctx, cart.ID, &total)
}

// refreshCache writes a just-saved cart through to the cache. Loads that read the
// previous version cannot overwrite it afterwards.
func (s *CartService) refreshCache(ctx context.Context, cart *models.Cart) {
	if err := s.cache.Set(ctx, cart); err != nil {
		log.Printf("cache set error cart=%s: %v", cart.ID, err)
		s.invalidateCache(ctx, cart.ID)
	}
}

func (s *CartService) invalidateCache(ctx context.Context, cartID string) {
	if err := s.cache.Delete(ctx, cartID); err != nil {
		log.Printf("cache delete error cart=%s: %v", cartID, err)
	}
}

func servesCountry(region *models.Region, countryCode string) bool {
	if len(region.Countries) == 0 {
		return true
	}
	for _, c := range region.Countries {
		if strings.EqualFold(c, countryCode) {
			return true
		}
	}
	return false
}
