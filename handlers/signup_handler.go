// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"towebp-server/commons"
	"towebp-server/crypto"
	"towebp-server/db"
	"towebp-server/models"
	"towebp-server/passwordcheck"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// SignupHandler godoc
// @Summary      Register a new user
// @Description  Creates a new user account bound to the default plan.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        signupRequest  body  SignupRequest  true  "Signup request payload"
// @Success      201 {object} SignupResponse 	 "Signup successful"
// @Failure      400 {object} echo.HTTPError     "Bad request, missing required fields"
// @Failure      409 {object} echo.HTTPError     "Duplicate user"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/auth/signup [post]
func SignupHandler(c echo.Context) error {
	logger := c.Logger()

	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid signup request payload:", err)
		return echo.ErrBadRequest
	}

	if req.Email == "" {
		logger.Error("Email is required.")
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "email field is required",
		}
	}

	if req.Password == "" {
		logger.Error("Password is required.")
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "password field is required",
		}
	}

	if err := passwordcheck.ValidatePassword(c.Request().Context(), req.Password); err != nil {
		logger.Error("Password validation failed: ", err)
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: fmt.Sprintf("Invalid password: %v", err.Error()),
		}
	}

	count := db.Conn.Where("email = ?", req.Email).First(&models.User{}).RowsAffected
	if count > 0 {
		logger.Errorf("This email is already registered.")
		return &echo.HTTPError{
			Code:    http.StatusConflict,
			Message: models.ErrDuplicateAccount.Error() + ", please try another one.",
		}
	}

	newCrypto := crypto.NewCrypto()
	hash, err := newCrypto.HashPassword(req.Password)
	if err != nil {
		logger.Errorf("Failed to hash password: %v", err)
		return echo.ErrInternalServerError
	}

	// New accounts start on the cheapest plan.
	var defaultPlan models.Plan
	err = db.Conn.Order("price, id").First(&defaultPlan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("No plans exist; run migrations first.")
		return echo.ErrInternalServerError
	}
	if err != nil {
		logger.Errorf("Failed to load default plan: %v", err)
		return echo.ErrInternalServerError
	}

	user := models.User{
		Email:    req.Email,
		Password: hash,
		Role:     models.RoleUser,
		PlanID:   defaultPlan.ID,
	}

	if err := db.Conn.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &echo.HTTPError{
				Code:    http.StatusConflict,
				Message: models.ErrDuplicateAccount.Error() + ", please try another one.",
			}
		}
		logger.Errorf("Failed to create user: %v", err)
		return echo.ErrInternalServerError
	}

	commons.Logger.Infof("User %d signed up on plan %s", user.ID, defaultPlan.Name)
	return c.JSON(http.StatusCreated, SignupResponse{Message: "Signup successful"})
}
