package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/multigpt/paycore/app/controllers"
	"github.com/multigpt/paycore/internal/pkg/cache"
	"github.com/multigpt/paycore/internal/pkg/database"
	"github.com/multigpt/paycore/internal/pkg/env"
	"github.com/multigpt/paycore/internal/pkg/gateway"
	"github.com/multigpt/paycore/internal/pkg/payment"
	"github.com/multigpt/paycore/internal/pkg/paystore"
	"github.com/multigpt/paycore/internal/pkg/router"
	"github.com/multigpt/paycore/internal/pkg/wallet"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	cache.SetupCache()

	// The region decides the storage backend once, here. Everything below the
	// repository interface is region-agnostic.
	var repo paystore.Repository
	if env.IsChinaRegion() {
		database.SetupMongoDatabase()
		repo = paystore.NewMongoRepository(database.GetMongoDatabase())
	} else {
		database.SetupDatabase()
		repo = paystore.NewGormRepository(database.GetDB())
	}

	gw := gateway.NewFromEnv()
	provisioner := wallet.NewProvisioner(repo)
	handler := payment.NewHandler(repo, provisioner)
	reconciler := payment.NewReconciler(repo, gw)
	payments := controllers.NewPaymentController(handler, reconciler, gw, repo)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook payloads are small; 1 MiB is generous
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, payments)

	return app
}
