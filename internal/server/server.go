package server

import (
	"marathon-billing-engine/internal/handler"
	authmw "marathon-billing-engine/internal/middleware"
	"marathon-billing-engine/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	paymentHandler  *handler.PaymentHandler
	marathonHandler *handler.MarathonHandler
	jwtSecret       string
}

func NewServer(paymentService service.PaymentService, progressionService service.ProgressionService, jwtSecret string) *Server {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		paymentHandler:  handler.NewPaymentHandler(paymentService),
		marathonHandler: handler.NewMarathonHandler(progressionService),
		jwtSecret:       jwtSecret,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	auth := authmw.AuthMiddleware(s.jwtSecret)

	// -------- payment --------
	payment := api.Group("/payment")
	payment.POST("/create", s.paymentHandler.CreateOrder, auth)
	payment.GET("/status/:orderNumber", s.paymentHandler.GetOrderStatus)
	payment.GET("/history", s.paymentHandler.History, auth)
	payment.POST("/refund", s.paymentHandler.Refund, auth, authmw.RequireAdmin())

	// -------- gateway webhooks / callbacks --------
	payment.POST("/callback", s.paymentHandler.Callback)
	payment.POST("/webhook", s.paymentHandler.Callback)

	// -------- marathons / exercises --------
	marathons := api.Group("/marathons", auth)
	marathons.POST("/:id/enroll", s.marathonHandler.Enroll)
	marathons.GET("/:id/progress", s.marathonHandler.GetProgress)
	marathons.POST("/:id/complete-day", s.marathonHandler.CompleteDay)
	marathons.POST("/:id/day/:day/exercises/:exerciseID/complete", s.marathonHandler.CompleteExercise)

	api.GET("/exercises/:id/access", s.marathonHandler.ExerciseAccess, auth)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
