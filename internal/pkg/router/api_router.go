package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    limiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Processor-facing ingress; authenticated by HMAC signature, not API key.
	api.Post("/billing/webhook", controllers.HandlePaystackWebhook)

	api.Post("/user/register", controllers.HandleRegisterUser)

	authed := api.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/user/profile", controllers.HandleGetUserAccount)
	authed.Get("/user/notifications", controllers.HandleListNotifications)
	authed.Post("/user/notifications/:id/read", controllers.HandleMarkNotificationRead)
	authed.Post("/user/notifications/read-all", controllers.HandleMarkAllNotificationsRead)

	authed.Post("/billing/payments/initialize", controllers.HandleInitializePayment)
	authed.Get("/billing/payments/verify/:reference", controllers.HandleVerifyPayment)
	authed.Get("/billing/payments", controllers.HandleListPayments)
	authed.Get("/billing/subscription", controllers.HandleGetSubscription)
	authed.Post("/billing/subscription/cancel", controllers.HandleCancelSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// limiterStorage backs the rate limiter with Redis so limits hold across
// instances. Uses database 1; the cache itself runs on database 0.
func limiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
	})
}
