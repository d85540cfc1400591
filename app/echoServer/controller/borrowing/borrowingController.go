package borrowing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/jwtx"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/validation"
	"github.com/Viktor-Beniukh/library-service-api/model"
	bs "github.com/Viktor-Beniukh/library-service-api/service/borrowing"
)

type Controller struct {
	Svc bs.Service
	V   *validator.Validate
	Log *slog.Logger
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch bs.Code(err) {
	case bs.ErrNoCopiesAvailable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "no copies available"})
	case bs.ErrAlreadyReturned:
		return c.JSON(http.StatusConflict, echo.Map{"message": "borrowing already returned"})
	case bs.ErrBookNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
	case bs.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "borrowing not found"})
	case bs.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	case bs.ErrBadInput:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
	default:
		h.Log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}

// Create borrowing
// @Summary      Borrow a book
// @Description  Takes one copy off the shelf for the caller. Without expected_return_date the configured rental window applies.
// @Tags         borrowings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body  CreateBorrowingReq  true  "Borrowing payload"
// @Success      201  {object}  model.Borrowing
// @Failure      400,404,409,500  {object}  map[string]any
// @Router       /v1/borrowings [post]
func (h *Controller) Create(c echo.Context) error {
	var req CreateBorrowingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  validation.Errors(err),
		})
	}
	actor := jwtx.Actor(c)

	b, err := h.Svc.Create(c.Request().Context(), bs.CreateReq{
		BorrowerID:         actor.UserID,
		BookID:             req.BookID,
		ExpectedReturnDate: req.ExpectedReturnDate,
	})
	if err != nil {
		return h.fail(c, "borrowing create", err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Return borrowing
// @Summary      Return a book
// @Tags         borrowings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  int                 true   "Borrowing ID"
// @Param        payload  body  ReturnBorrowingReq  false  "Return payload"
// @Success      200  {object}  model.Borrowing
// @Failure      400,403,404,409,500  {object}  map[string]any
// @Router       /v1/borrowings/{id}/return [post]
func (h *Controller) Return(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req ReturnBorrowingReq
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	var actual model.Date
	if req.ActualReturnDate != nil {
		actual = *req.ActualReturnDate
	}

	b, err := h.Svc.Return(c.Request().Context(), jwtx.Actor(c), id, actual)
	if err != nil {
		return h.fail(c, "borrowing return", err)
	}
	return c.JSON(http.StatusOK, b)
}

// List borrowings
// @Summary      List borrowings
// @Description  Readers only see their own. Staff may filter by user_id.
// @Tags         borrowings
// @Produce      json
// @Security     BearerAuth
// @Param        user_id    query  int   false  "Borrower ID (staff only)"
// @Param        is_active  query  bool  false  "Only borrowings not yet returned"
// @Success      200  {object}  map[string]any
// @Router       /v1/borrowings [get]
func (h *Controller) List(c echo.Context) error {
	var req bs.ListReq
	if s := c.QueryParam("user_id"); s != "" {
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user_id"})
		}
		req.BorrowerID = &uid
	}
	if s := c.QueryParam("is_active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid is_active"})
		}
		req.ActiveOnly = active
	}

	rows, err := h.Svc.List(c.Request().Context(), jwtx.Actor(c), req)
	if err != nil {
		return h.fail(c, "borrowing list", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// GET /v1/borrowings/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	row, err := h.Svc.Detail(c.Request().Context(), jwtx.Actor(c), id)
	if err != nil {
		return h.fail(c, "borrowing detail", err)
	}
	return c.JSON(http.StatusOK, row)
}
