package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/storefront/pkg/httpclient"
)

// ShippingZone groups cities that share shipping rates.
type ShippingZone struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Cities []string `json:"cities,omitempty"`
}

// ShippingMethod is a carrier service offered in a zone.
type ShippingMethod struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Carrier               string `json:"carrier,omitempty"`
	FreeShippingThreshold *int64 `json:"free_shipping_threshold,omitempty"`
}

// CostRequest is the input of a rate calculation.
type CostRequest struct {
	MethodID  string `json:"method_id"`
	ZoneID    string `json:"zone_id,omitempty"`
	Subtotal  int64  `json:"subtotal"`
	Weight    int64  `json:"weight"`
	ItemCount int    `json:"item_count"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// ShippingClient talks to the shipping rates service through a circuit
// breaker.
type ShippingClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
}

// NewShippingClient creates a shipping client for baseURL.
func NewShippingClient(cb *httpclient.CircuitBreakerClient, baseURL string) *ShippingClient {
	return &ShippingClient{http: cb, baseURL: strings.TrimRight(baseURL, "/")}
}

// FindZone returns the zone serving city.
func (c *ShippingClient) FindZone(ctx context.Context, city string) (*ShippingZone, error) {
	var out envelope[ShippingZone]
	u := c.baseURL + "/api/v1/zones/lookup?city=" + url.QueryEscape(city)
	if err := c.http.DoJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("find shipping zone: %w", err)
	}
	return &out.Data, nil
}

// ListMethods returns the methods offered in zoneID.
func (c *ShippingClient) ListMethods(ctx context.Context, zoneID string) ([]ShippingMethod, error) {
	var out envelope[[]ShippingMethod]
	u := c.baseURL + "/api/v1/zones/" + url.PathEscape(zoneID) + "/methods"
	if err := c.http.DoJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("list shipping methods: %w", err)
	}
	return out.Data, nil
}

// CalculateCost returns the shipping cost in minor units.
func (c *ShippingClient) CalculateCost(ctx context.Context, req CostRequest) (int64, error) {
	var out envelope[struct {
		Cost int64 `json:"cost"`
	}]
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/rates", req, &out); err != nil {
		return 0, fmt.Errorf("calculate shipping cost: %w", err)
	}
	return out.Data.Cost, nil
}

// EstimatedDelivery returns a human readable delivery window such as "2-3 days".
func (c *ShippingClient) EstimatedDelivery(ctx context.Context, methodID, zoneID string) (string, error) {
	var out envelope[struct {
		Estimate string `json:"estimate"`
	}]
	u := c.baseURL + "/api/v1/methods/" + url.PathEscape(methodID) + "/estimate"
	if zoneID != "" {
		u += "?zone=" + url.QueryEscape(zoneID)
	}
	if err := c.http.DoJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return "", fmt.Errorf("estimate delivery: %w", err)
	}
	return out.Data.Estimate, nil
}
