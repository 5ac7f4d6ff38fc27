// SPDX-License-Identifier: GPL-3.0-only

package routes

import (
	"towebp-server/commons"
	"towebp-server/handlers"
	"towebp-server/middlewares"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	commons.Logger.Debug("Registering v1 routes")
	api_v1 := e.Group("/v1")
	api_v1.POST("/auth/signup", handlers.SignupHandler)
	api_v1.POST("/auth/login", handlers.LoginHandler)
	api_v1.GET("/plans", handlers.GetPlansHandler)
	api_v1.POST("/conversions", handlers.ConvertHandler, middlewares.VerifyAuthMiddleware())
	api_v1.GET("/conversions/today", handlers.TodayUsageHandler, middlewares.VerifyAuthMiddleware())
	api_v1.DELETE("/conversions/:conversion_id", handlers.DeleteConversionHandler, middlewares.VerifyAuthMiddleware())
	api_v1.GET("/images/:image_id/download", handlers.DownloadImageHandler, middlewares.VerifyAuthMiddleware())

	admin := api_v1.Group("/admin", middlewares.VerifyAuthMiddleware(), middlewares.RequireAdminMiddleware)
	admin.POST("/plans", handlers.CreatePlanHandler)
	admin.PUT("/plans/:plan_id", handlers.UpdatePlanHandler)
	admin.DELETE("/plans/:plan_id", handlers.DeletePlanHandler)
	admin.PUT("/users/:user_id/plan", handlers.ChangeUserPlanHandler)
	commons.Logger.Info("v1 routes registered successfully")
}
