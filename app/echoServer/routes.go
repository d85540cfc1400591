package echoServer

import (
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/admin"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/auth"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/book"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/borrowing"
	"github.com/Viktor-Beniukh/library-service-api/app/echoServer/controller/payment"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Borrowing *borrowing.Controller
	Payment   *payment.Controller
	Admin     *admin.Controller
	JWTSecret string
	Log       *slog.Logger
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// checkout provider redirects; the session id is the only credential
	pub.GET("/payments/success", c.Payment.Success)
	pub.GET("/payments/cancelled", c.Payment.Cancelled)
	pub.GET("/payments/expired", c.Payment.Expired)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization:Bearer ",
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
		},
	}))
	auth.Use(Claims(c.Log))

	// Books
	auth.GET("/books", c.Book.List)
	auth.GET("/books/:id", c.Book.Detail)

	// Borrowings
	auth.POST("/borrowings", c.Borrowing.Create)
	auth.GET("/borrowings", c.Borrowing.List)
	auth.GET("/borrowings/:id", c.Borrowing.Detail)
	auth.POST("/borrowings/:id/return", c.Borrowing.Return)

	// Payments
	auth.GET("/payments", c.Payment.List)
	auth.GET("/payments/:id", c.Payment.Detail)
	auth.POST("/payments/:id/session", c.Payment.Session)

	// Admin endpoints
	staff := auth.Group("", AdminOnly())
	staff.POST("/books", c.Book.Create)
	staff.PUT("/books/:id", c.Book.UpdateStock)
	staff.DELETE("/books/:id", c.Book.Delete)
	staff.POST("/payments", c.Payment.Create)
	staff.POST("/admin/overdue/scan", c.Admin.ScanOverdue)
}
