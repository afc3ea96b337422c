package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/multigpt/paycore/app/controllers"
)

func InstallRouter(app *fiber.App, payments *controllers.PaymentController) {
	setup(app, NewApiRouter(payments))
}
func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
