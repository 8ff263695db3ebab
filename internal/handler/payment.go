package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"marathon-billing-engine/internal/dto"
	"marathon-billing-engine/internal/middleware"
	"marathon-billing-engine/internal/model"
	"marathon-billing-engine/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func userIDFromContext(c echo.Context) (string, error) {
	userID, _ := c.Get(middleware.UserIDKey).(string)
	if userID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing user")
	}
	return userID, nil
}

func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.paymentService.CreateOrder(ctx, service.CreateOrderInput{
		UserID: userID,
		Product: model.ProductRef{
			Type:     model.ProductType(req.Type),
			TargetID: req.TargetID,
			Name:     req.Name,
			Duration: req.Duration,
		},
		Price:       req.Price,
		Description: req.Description,
	})
	if err != nil {
		var regErr *service.RegistrationError
		if errors.As(err, &regErr) {
			// Gateway error details stay in the ledger, not in the response.
			log.Printf("order registration rejected: %v", regErr)
			return echo.NewHTTPError(http.StatusBadGateway, "payment failed, contact support")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) GetOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()

	orderNumber := c.Param("orderNumber")
	if orderNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order number")
	}

	order, err := h.paymentService.GetOrderStatus(ctx, orderNumber)
	if errors.Is(err, model.ErrOrderNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, orderToResponse(order))
}

// Callback is the fire-and-forget endpoint the gateway invokes. It acks
// with 200 even when the resolved order is already terminal.
func (h *PaymentHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CallbackRequest
	if err := c.Bind(&req); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if req.OrderID == "" && req.OrderNumber == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	err := h.paymentService.HandleCallback(ctx, req.OrderID, req.OrderNumber)
	if errors.Is(err, model.ErrOrderNotFound) {
		log.Printf("callback for unknown order: gateway id %q, number %q", req.OrderID, req.OrderNumber)
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		return err
	}

	return c.NoContent(http.StatusOK)
}

func (h *PaymentHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	err := h.paymentService.Refund(ctx, req.OrderNumber)
	if errors.Is(err, model.ErrOrderNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	if errors.Is(err, model.ErrOrderNotRefundable) {
		return echo.NewHTTPError(http.StatusConflict, "order is not refundable")
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "refunded"})
}

func (h *PaymentHandler) History(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDFromContext(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	orders, total, err := h.paymentService.ListOrders(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return err
	}

	resp := dto.OrderHistoryResponse{
		Orders: make([]*dto.OrderStatusResponse, len(orders)),
		Pagination: dto.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
		},
	}
	for i, order := range orders {
		resp.Orders[i] = orderToResponse(order)
	}
	return c.JSON(http.StatusOK, resp)
}

func orderToResponse(order *model.Order) *dto.OrderStatusResponse {
	return &dto.OrderStatusResponse{
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Amount:      decimal.NewFromInt(order.Amount).Shift(-2), // kopecks -> major units
		Description: order.Description,
		CreatedAt:   order.CreatedAt,
	}
}
