package payment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/jwtx"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/validation"
	"github.com/Viktor-Beniukh/library-service-api/service/fee"
	paymentsvc "github.com/Viktor-Beniukh/library-service-api/service/payment"
)

type Controller struct {
	Svc paymentsvc.Service
	V   *validator.Validate
	Log *slog.Logger
	// Now defaults to time.Now; used for session expiry checks.
	Now func() time.Time
}

func (h *Controller) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch paymentsvc.Code(err) {
	case paymentsvc.ErrPaymentNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
	case paymentsvc.ErrBorrowingNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
	case paymentsvc.ErrAlreadyFinalized:
		return c.JSON(http.StatusConflict, echo.Map{"message": "payment already finalized"})
	case paymentsvc.ErrBorrowingNotReturned:
		return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing must be returned before it is paid"})
	case paymentsvc.ErrProviderFailure:
		h.Log.Warn(op, "err", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "payment provider unavailable"})
	}
	if errors.Is(err, fee.ErrConfiguration) {
		h.Log.Error(op+": fee policy misconfigured", "err", err)
	} else {
		h.Log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}

func sessionID(c echo.Context) (string, bool) {
	sid := c.QueryParam("session_id")
	return sid, sid != ""
}

// GET /v1/payments
func (h *Controller) List(c echo.Context) error {
	rows, err := h.Svc.List(c.Request().Context(), jwtx.Actor(c))
	if err != nil {
		return h.fail(c, "payment list", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/payments/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	p, err := h.Svc.Detail(c.Request().Context(), jwtx.Actor(c), id)
	if err != nil {
		return h.fail(c, "payment detail", err)
	}
	return c.JSON(http.StatusOK, p)
}

// Create payment
// @Summary      Price a returned borrowing
// @Description  Computes the amount owed with the fee policy and records a PENDING payment (FINE when returned late).
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body  CreatePaymentReq  true  "Payment payload"
// @Success      201  {object}  model.Payment
// @Failure      400,404,409,500  {object}  map[string]any
// @Router       /v1/payments [post]
func (h *Controller) Create(c echo.Context) error {
	var req CreatePaymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": validation.Errors(err)})
	}
	p, err := h.Svc.Create(c.Request().Context(), req.BorrowingID)
	if err != nil {
		return h.fail(c, "payment create", err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Open checkout session
// @Summary      Open (or reuse) a hosted checkout session
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  int  true  "Payment ID"
// @Success      200  {object}  map[string]any
// @Failure      404,409,502  {object}  map[string]any
// @Router       /v1/payments/{id}/session [post]
func (h *Controller) Session(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	// Ownership check before anything is sent to the provider.
	if _, err := h.Svc.Detail(c.Request().Context(), jwtx.Actor(c), id); err != nil {
		return h.fail(c, "payment session", err)
	}
	p, err := h.Svc.OpenCheckout(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "payment session", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"payment_id":  p.ID,
		"session_id":  p.SessionID,
		"session_url": p.SessionURL,
		"status":      p.Status,
	})
}

// Success callback
// @Summary      Checkout success redirect
// @Tags         payments
// @Produce      json
// @Param        session_id  query  string  true  "Checkout session ID"
// @Success      200  {object}  map[string]any
// @Failure      400,404,409  {object}  map[string]any
// @Router       /v1/payments/success [get]
func (h *Controller) Success(c echo.Context) error {
	sid, ok := sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "session_id is required"})
	}
	p, err := h.Svc.MarkPaid(c.Request().Context(), sid)
	if err != nil {
		return h.fail(c, "payment success", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Payment successful", "payment": p})
}

// GET /v1/payments/cancelled?session_id=
func (h *Controller) Cancelled(c echo.Context) error {
	sid, ok := sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "session_id is required"})
	}
	p, err := h.Svc.MarkCancelled(c.Request().Context(), sid)
	if err != nil {
		return h.fail(c, "payment cancelled", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Payment can be made later, but the checkout session is only available for 24 hours",
		"payment": p,
	})
}

// GET /v1/payments/expired?session_id=
func (h *Controller) Expired(c echo.Context) error {
	sid, ok := sessionID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "session_id is required"})
	}
	p, err := h.Svc.CheckExpired(c.Request().Context(), sid, h.now())
	if err != nil {
		return h.fail(c, "payment expired", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payment": p})
}
