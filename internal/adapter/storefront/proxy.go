// Package storefront translates catalog operations into agent commands.
// Every operation is one awaited command; a reply that never arrives or
// cannot be read yields a pending outcome built from the inputs alone.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/bridge"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// ErrAgentRejected is returned when the agent answered with an explicit error.
var ErrAgentRejected = errors.New("agent rejected command")

// Sender is the dispatch half of the agent bridge.
type Sender interface {
	Send(ctx context.Context, cmdType domain.CommandType, payload any, awaitReply bool) (*bridge.Reply, error)
}

// Proxy is the storefront facade over the bridge.
type Proxy struct {
	sender Sender
	logger *slog.Logger
}

// NewProxy creates a proxy over sender.
func NewProxy(sender Sender, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{sender: sender, logger: logger.With("component", "storefront")}
}

// ListingInput describes a listing to create.
type ListingInput struct {
	ProductID       string   `json:"product_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Handle          string   `json:"handle"`
	Category        string   `json:"product_type,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	PriceAUD        float64  `json:"price"`
	ComparePriceAUD float64  `json:"compare_at_price,omitempty"`
	Status          string   `json:"status"`
	Quantity        int      `json:"inventory_quantity"`
	SupplierURL     string   `json:"supplier_url,omitempty"`
}

// ListingUpdate carries the fields to change on an existing listing.
type ListingUpdate struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// ListingResult is the storefront's view of a listing.
type ListingResult struct {
	ListingID string  `json:"listing_id,omitempty"`
	VariantID string  `json:"variant_id,omitempty"`
	Handle    string  `json:"handle,omitempty"`
	Status    string  `json:"status,omitempty"`
	PriceAUD  float64 `json:"price_aud,omitempty"`
}

// DeleteResult reports a listing removal.
type DeleteResult struct {
	ListingID string `json:"listing_id"`
	Deleted   bool   `json:"deleted"`
}

// PriceResult reports a variant's price after an update.
type PriceResult struct {
	ListingID       string  `json:"listing_id"`
	VariantID       string  `json:"variant_id,omitempty"`
	PriceAUD        float64 `json:"price_aud"`
	ComparePriceAUD float64 `json:"compare_price_aud,omitempty"`
}

// FulfillmentInput describes a shipment for an order.
type FulfillmentInput struct {
	OrderID         string `json:"order_id"`
	TrackingNumber  string `json:"tracking_number"`
	TrackingCompany string `json:"tracking_company,omitempty"`
	TrackingURL     string `json:"tracking_url,omitempty"`
	NotifyCustomer  bool   `json:"notify_customer"`
}

// FulfillmentResult is the recorded fulfillment.
type FulfillmentResult struct {
	FulfillmentID  string `json:"fulfillment_id,omitempty"`
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Status         string `json:"status,omitempty"`
}

// InventoryResult reports the stock level the storefront holds.
type InventoryResult struct {
	ListingID string `json:"listing_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

// CreateListing creates a storefront listing.
func (p *Proxy) CreateListing(ctx context.Context, in ListingInput) (domain.Outcome[ListingResult], error) {
	placeholder := ListingResult{Handle: in.Handle, Status: in.Status, PriceAUD: in.PriceAUD}
	body, err := p.call(ctx, domain.CommandCreateListing, in, "listing", "product")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	res, ok := parseListing(body)
	if !ok {
		p.malformed(domain.CommandCreateListing)
		return domain.Pending(placeholder), nil
	}
	if res.Handle == "" {
		res.Handle = in.Handle
	}
	if res.PriceAUD == 0 {
		res.PriceAUD = in.PriceAUD
	}
	return domain.Confirmed(res), nil
}

// UpdateListing changes listing fields.
func (p *Proxy) UpdateListing(ctx context.Context, listingID string, update ListingUpdate) (domain.Outcome[ListingResult], error) {
	placeholder := ListingResult{ListingID: listingID, Status: update.Status}
	payload := struct {
		ListingID string `json:"listing_id"`
		ListingUpdate
	}{listingID, update}
	body, err := p.call(ctx, domain.CommandUpdateListing, payload, "listing", "product")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	res, ok := parseListing(body)
	if !ok {
		p.malformed(domain.CommandUpdateListing)
		return domain.Pending(placeholder), nil
	}
	return domain.Confirmed(res), nil
}

// GetListing fetches a listing.
func (p *Proxy) GetListing(ctx context.Context, listingID string) (domain.Outcome[ListingResult], error) {
	return p.getListing(ctx, map[string]string{"listing_id": listingID}, ListingResult{ListingID: listingID})
}

// FindListing looks a listing up by handle. It is how a listing created
// while the agent was unreachable gets its storefront ids later. The agent
// reports an unknown handle as an error, surfaced as ErrAgentRejected.
func (p *Proxy) FindListing(ctx context.Context, handle string) (domain.Outcome[ListingResult], error) {
	return p.getListing(ctx, map[string]string{"handle": handle}, ListingResult{Handle: handle})
}

func (p *Proxy) getListing(ctx context.Context, payload map[string]string, placeholder ListingResult) (domain.Outcome[ListingResult], error) {
	body, err := p.call(ctx, domain.CommandGetListing, payload, "listing", "product")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	res, ok := parseListing(body)
	if !ok {
		p.malformed(domain.CommandGetListing)
		return domain.Pending(placeholder), nil
	}
	return domain.Confirmed(res), nil
}

// DeleteListing removes a listing.
func (p *Proxy) DeleteListing(ctx context.Context, listingID string) (domain.Outcome[DeleteResult], error) {
	placeholder := DeleteResult{ListingID: listingID}
	body, err := p.call(ctx, domain.CommandDeleteListing, map[string]string{"listing_id": listingID})
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	var reply struct {
		Deleted *bool `json:"deleted"`
		Success *bool `json:"success"`
	}
	if json.Unmarshal(body, &reply) != nil || (reply.Deleted == nil && reply.Success == nil) {
		p.malformed(domain.CommandDeleteListing)
		return domain.Pending(placeholder), nil
	}
	deleted := reply.Deleted
	if deleted == nil {
		deleted = reply.Success
	}
	return domain.Confirmed(DeleteResult{ListingID: listingID, Deleted: *deleted}), nil
}

// UpdatePrice sets a variant's selling and compare-at price.
func (p *Proxy) UpdatePrice(ctx context.Context, listingID, variantID string, price, comparePrice float64) (domain.Outcome[PriceResult], error) {
	placeholder := PriceResult{ListingID: listingID, VariantID: variantID, PriceAUD: price, ComparePriceAUD: comparePrice}
	payload := map[string]any{
		"listing_id":       listingID,
		"variant_id":       variantID,
		"price":            price,
		"compare_at_price": comparePrice,
	}
	body, err := p.call(ctx, domain.CommandUpdatePrice, payload, "variant")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	fields, ok := decodeObject(body)
	if !ok {
		p.malformed(domain.CommandUpdatePrice)
		return domain.Pending(placeholder), nil
	}
	res := PriceResult{ListingID: listingID, VariantID: variantID, ComparePriceAUD: comparePrice}
	if id := idString(fields["id"]); id != "" {
		res.VariantID = id
	}
	got, ok := number(fields["price"])
	if !ok {
		p.malformed(domain.CommandUpdatePrice)
		return domain.Pending(placeholder), nil
	}
	res.PriceAUD = got
	if cmp, ok := number(fields["compare_at_price"]); ok {
		res.ComparePriceAUD = cmp
	}
	return domain.Confirmed(res), nil
}

// CreateFulfillment records a shipment against an order.
func (p *Proxy) CreateFulfillment(ctx context.Context, in FulfillmentInput) (domain.Outcome[FulfillmentResult], error) {
	placeholder := FulfillmentResult{OrderID: in.OrderID, TrackingNumber: in.TrackingNumber}
	body, err := p.call(ctx, domain.CommandCreateFulfillment, in, "fulfillment")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	fields, ok := decodeObject(body)
	id := idString(fields["id"])
	if !ok || id == "" {
		p.malformed(domain.CommandCreateFulfillment)
		return domain.Pending(placeholder), nil
	}
	res := FulfillmentResult{FulfillmentID: id, OrderID: in.OrderID, TrackingNumber: in.TrackingNumber}
	if s, ok := fields["status"].(string); ok {
		res.Status = s
	}
	return domain.Confirmed(res), nil
}

// SetInventory sets the available quantity of a listing.
func (p *Proxy) SetInventory(ctx context.Context, listingID, variantID string, quantity int) (domain.Outcome[InventoryResult], error) {
	placeholder := InventoryResult{ListingID: listingID, VariantID: variantID, Quantity: quantity}
	payload := map[string]any{"listing_id": listingID, "variant_id": variantID, "quantity": quantity}
	body, err := p.call(ctx, domain.CommandSetInventory, payload, "inventory_level", "inventory")
	if err != nil || body == nil {
		return domain.Pending(placeholder), err
	}
	fields, ok := decodeObject(body)
	if !ok {
		p.malformed(domain.CommandSetInventory)
		return domain.Pending(placeholder), nil
	}
	qty, ok := number(fields["available"])
	if !ok {
		qty, ok = number(fields["quantity"])
	}
	if !ok {
		p.malformed(domain.CommandSetInventory)
		return domain.Pending(placeholder), nil
	}
	return domain.Confirmed(InventoryResult{ListingID: listingID, VariantID: variantID, Quantity: int(qty)}), nil
}

// ListingCount returns the number of storefront listings.
func (p *Proxy) ListingCount(ctx context.Context) (domain.Outcome[int], error) {
	body, err := p.call(ctx, domain.CommandGetListingCount, struct{}{})
	if err != nil || body == nil {
		return domain.Pending(0), err
	}
	fields, ok := decodeObject(body)
	count, isNum := number(fields["count"])
	if !ok || !isNum {
		p.malformed(domain.CommandGetListingCount)
		return domain.Pending(0), nil
	}
	return domain.Confirmed(int(count)), nil
}

// call sends one awaited command and returns the reply body with the first
// matching wrapper key peeled off. A nil body means no usable reply.
func (p *Proxy) call(ctx context.Context, cmdType domain.CommandType, payload any, wrappers ...string) (json.RawMessage, error) {
	reply, err := p.sender.Send(ctx, cmdType, payload, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdType, err)
	}
	if reply == nil {
		p.logger.Warn("no reply from agent, using placeholder", "type", string(cmdType))
		return nil, nil
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("%s: %w: %s", cmdType, ErrAgentRejected, reply.Error)
	}
	body := bytes.TrimSpace(reply.Result)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		p.logger.Warn("empty reply from agent, using placeholder", "type", string(cmdType))
		return nil, nil
	}

	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) == nil {
		if msg, ok := envelope["error"]; ok {
			var text string
			if json.Unmarshal(msg, &text) == nil && text != "" {
				return nil, fmt.Errorf("%s: %w: %s", cmdType, ErrAgentRejected, text)
			}
		}
		for _, key := range wrappers {
			if inner, ok := envelope[key]; ok {
				return inner, nil
			}
		}
	}
	return body, nil
}

func (p *Proxy) malformed(cmdType domain.CommandType) {
	p.logger.Warn("malformed reply from agent, using placeholder", "type", string(cmdType))
}

func parseListing(body json.RawMessage) (ListingResult, bool) {
	fields, ok := decodeObject(body)
	if !ok {
		return ListingResult{}, false
	}
	id := idString(fields["id"])
	if id == "" {
		id = idString(fields["listing_id"])
	}
	if id == "" {
		return ListingResult{}, false
	}
	res := ListingResult{ListingID: id}
	res.VariantID = idString(fields["variant_id"])
	if variants, ok := fields["variants"].([]any); ok && len(variants) > 0 {
		if first, ok := variants[0].(map[string]any); ok {
			if res.VariantID == "" {
				res.VariantID = idString(first["id"])
			}
			if price, ok := number(first["price"]); ok {
				res.PriceAUD = price
			}
		}
	}
	if s, ok := fields["handle"].(string); ok {
		res.Handle = s
	}
	if s, ok := fields["status"].(string); ok {
		res.Status = s
	}
	if price, ok := number(fields["price"]); ok {
		res.PriceAUD = price
	}
	return res, true
}

func decodeObject(body json.RawMessage) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// idString accepts storefront ids sent either as strings or as numbers.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
