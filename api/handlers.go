package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"dealtracker/models"
	"dealtracker/services"
	"dealtracker/utils"

	"github.com/gofiber/fiber/v2"
)

const ownerHeader = "X-User-ID"

// Handler exposes the pipeline over HTTP. Authentication happens upstream; the
// authenticated user arrives in the X-User-ID header.
type Handler struct {
	Deals    *services.DealSynchronizer
	Insights *services.InsightService
	Tracking *services.TrackingEngine
	MaxDeals int
	Logger   *utils.Logger
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func owner(c *fiber.Ctx) (string, error) {
	id := strings.TrimSpace(c.Get(ownerHeader))
	if id == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing "+ownerHeader)
	}
	return id, nil
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", c.Params("id"), models.ErrInvalidInput)
	}
	return int64(id), nil
}

// POST /api/deals/refresh
func (h *Handler) RefreshDeals(c *fiber.Ctx) error {
	sum, err := h.Deals.Refresh(c.UserContext(), h.MaxDeals)
	if err != nil {
		return err
	}
	return ok(c, sum)
}

// GET /api/deals
func (h *Handler) ListDeals(c *fiber.Ctx) error {
	f := models.DealFilter{
		Category:    c.Query("category"),
		MinDiscount: c.QueryInt("min_discount", 0),
		MaxPrice:    c.QueryFloat("max_price", 0),
		SortBy:      c.Query("sort_by", "fetched_at"),
		SortOrder:   c.Query("sort_order", "desc"),
		Limit:       c.QueryInt("limit", 20),
		Offset:      c.QueryInt("offset", 0),
	}
	deals, total, err := h.Insights.Deals(c.UserContext(), f)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{
		"deals": deals,
		"pagination": fiber.Map{
			"total":    total,
			"limit":    f.Limit,
			"offset":   f.Offset,
			"has_more": f.Offset+len(deals) < total,
		},
	})
}

// GET /api/deals/:id
func (h *Handler) GetDeal(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	deal, err := h.Insights.Deal(c.UserContext(), id)
	if err != nil {
		return err
	}
	return ok(c, deal)
}

// GET /api/deals/stats
func (h *Handler) DealStats(c *fiber.Ctx) error {
	st, err := h.Insights.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, st)
}

// GET /api/deals/categories
func (h *Handler) Categories(c *fiber.Ctx) error {
	cats, err := h.Insights.Categories(c.UserContext())
	if err != nil {
		return err
	}
	return ok(c, cats)
}

type trackBody struct {
	ProductURL  string   `json:"product_url"`
	Keyword     string   `json:"keyword"`
	TargetPrice *float64 `json:"target_price"`
}

// POST /api/tracking
func (h *Handler) Track(c *fiber.Ctx) error {
	who, err := owner(c)
	if err != nil {
		return err
	}
	var body trackBody
	if err := c.BodyParser(&body); err != nil {
		return fmt.Errorf("bad body: %v: %w", err, models.ErrInvalidInput)
	}
	p, err := h.Tracking.Track(c.UserContext(), services.TrackRequest{
		Owner:       who,
		ProductURL:  body.ProductURL,
		Keyword:     body.Keyword,
		TargetPrice: body.TargetPrice,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": p})
}

type trackedView struct {
	models.TrackedProduct
	TargetReached bool `json:"target_reached"`
}

// GET /api/tracking
func (h *Handler) ListTracked(c *fiber.Ctx) error {
	who, err := owner(c)
	if err != nil {
		return err
	}
	opts := models.TrackedListOptions{
		SortBy:    c.Query("sort_by", "created_at"),
		SortOrder: c.Query("sort_order", "desc"),
		Limit:     c.QueryInt("limit", 20),
		Offset:    c.QueryInt("offset", 0),
	}
	list, total, err := h.Tracking.List(c.UserContext(), who, opts)
	if err != nil {
		return err
	}
	views := make([]trackedView, 0, len(list))
	for i := range list {
		views = append(views, trackedView{TrackedProduct: list[i], TargetReached: list[i].TargetReached()})
	}
	return ok(c, fiber.Map{"products": views, "total": total})
}

type updateBody struct {
	TargetPrice json.RawMessage `json:"target_price"`
	Active      *bool           `json:"is_active"`
}

// PATCH /api/tracking/:id; "target_price": null clears the target
func (h *Handler) UpdateTracked(c *fiber.Ctx) error {
	who, err := owner(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var body updateBody
	if err := c.BodyParser(&body); err != nil {
		return fmt.Errorf("bad body: %v: %w", err, models.ErrInvalidInput)
	}

	u := services.TrackUpdate{Active: body.Active}
	switch raw := strings.TrimSpace(string(body.TargetPrice)); raw {
	case "":
	case "null":
		u.ClearTarget = true
	default:
		var v float64
		if err := json.Unmarshal(body.TargetPrice, &v); err != nil {
			return fmt.Errorf("target_price must be a number: %w", models.ErrInvalidInput)
		}
		u.TargetPrice = &v
	}

	p, err := h.Tracking.Update(c.UserContext(), who, id, u)
	if err != nil {
		return err
	}
	return ok(c, p)
}

// DELETE /api/tracking/:id
func (h *Handler) RemoveTracked(c *fiber.Ctx) error {
	who, err := owner(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.Tracking.Remove(c.UserContext(), who, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Product removed from tracking"})
}

// POST /api/tracking/refresh and POST /api/tracking/:id/refresh
func (h *Handler) RefreshTracked(c *fiber.Ctx) error {
	who, err := owner(c)
	if err != nil {
		return err
	}
	var scope *int64
	if c.Params("id") != "" {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		scope = &id
	}
	sum, err := h.Tracking.Refresh(c.UserContext(), who, scope)
	if err != nil {
		return err
	}
	return ok(c, sum)
}

// GET /api/price-history/:asin
func (h *Handler) PriceHistory(c *fiber.Ctx) error {
	asin := strings.ToUpper(c.Params("asin"))
	if _, valid := services.ExtractASIN("/" + asin); !valid {
		return fmt.Errorf("invalid asin %q: %w", c.Params("asin"), models.ErrInvalidInput)
	}
	days := c.QueryInt("days", 30)
	hist, err := h.Tracking.PriceHistory(c.UserContext(), asin, days)
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"asin": asin, "days": days, "price_history": hist})
}
