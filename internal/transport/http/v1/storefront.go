package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/storefront"
)

// storefrontTimeout bounds one operator call; the bridge reply timeout
// usually fires first.
const storefrontTimeout = 90 * time.Second

// ListingCount returns the number of storefront listings.
// GET /v1/storefront/count
func (h *Handler) ListingCount(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storefrontTimeout)
	defer cancel()
	out, err := h.storefront.ListingCount(ctx)
	return h.outcome(c, "get_listing_count", out, err)
}

// GetListing fetches one listing.
// GET /v1/storefront/listings/:listing_id
func (h *Handler) GetListing(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storefrontTimeout)
	defer cancel()
	out, err := h.storefront.GetListing(ctx, c.Param("listing_id"))
	return h.outcome(c, "get_listing", out, err)
}

// UpdateListing changes listing fields, for example to archive it.
// PATCH /v1/storefront/listings/:listing_id
func (h *Handler) UpdateListing(c echo.Context) error {
	var update storefront.ListingUpdate
	if err := c.Bind(&update); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if update.Title == "" && update.Description == "" && update.Status == "" && len(update.Tags) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no fields to update"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storefrontTimeout)
	defer cancel()
	out, err := h.storefront.UpdateListing(ctx, c.Param("listing_id"), update)
	return h.outcome(c, "update_listing", out, err)
}

// DeleteListing removes a listing.
// DELETE /v1/storefront/listings/:listing_id
func (h *Handler) DeleteListing(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storefrontTimeout)
	defer cancel()
	out, err := h.storefront.DeleteListing(ctx, c.Param("listing_id"))
	return h.outcome(c, "delete_listing", out, err)
}

// CreateFulfillment records a shipment for an order.
// POST /v1/storefront/fulfillments
func (h *Handler) CreateFulfillment(c echo.Context) error {
	var in storefront.FulfillmentInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if in.OrderID == "" || in.TrackingNumber == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "order_id and tracking_number are required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), storefrontTimeout)
	defer cancel()
	out, err := h.storefront.CreateFulfillment(ctx, in)
	return h.outcome(c, "create_fulfillment", out, err)
}

// outcome writes 200 for a confirmed value and 202 for a pending
// placeholder. Agent rejections and delivery failures are 502.
func (h *Handler) outcome(c echo.Context, op string, out any, err error) error {
	if err != nil {
		if !errors.Is(err, storefront.ErrAgentRejected) {
			h.logger.Warn("storefront command failed", "op", op, "error", err)
		}
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	status := http.StatusOK
	if p, ok := out.(interface{ IsPending() bool }); ok && p.IsPending() {
		status = http.StatusAccepted
	}
	return c.JSON(status, out)
}
