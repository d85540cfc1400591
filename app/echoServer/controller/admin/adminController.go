package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Viktor-Beniukh/library-service-api/service/overdue"
)

type Controller struct {
	Scanner overdue.Scanner
	Log     *slog.Logger
}

// Scan overdue borrowings
// @Summary      Run the overdue scan now
// @Description  Sends the overdue digest (or the nothing-overdue message) to staff channels and returns it.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      403,500  {object}  map[string]any
// @Router       /v1/admin/overdue/scan [post]
func (h *Controller) ScanOverdue(c echo.Context) error {
	ev, err := h.Scanner.Scan(c.Request().Context(), time.Now())
	if err != nil {
		h.Log.Error("overdue scan", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"kind":    ev.Kind,
		"entries": ev.Entries,
		"text":    ev.Text(),
	})
}
