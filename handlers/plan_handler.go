// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"net/http"
	"strconv"
	"towebp-server/events"
	"towebp-server/models"

	"github.com/labstack/echo/v4"
)

// GetPlansHandler godoc
// @Summary      Get available plans
// @Description  Retrieves all available plans with their conversion limits and prices. Served from a time-bounded cache.
// @Tags         plans
// @Accept       json
// @Produce      json
// @Success      200 {object}  GetPlansResponse "Plans retrieved successfully"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/plans [get]
func GetPlansHandler(c echo.Context) error {
	logger := c.Logger()

	plans, err := planCatalog.ListAll(c.Request().Context())
	if err != nil {
		logger.Error("Failed to retrieve plans:", err)
		return &echo.HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Failed to retrieve plans",
		}
	}

	details := make([]PlanDetails, 0, len(plans))
	for _, plan := range plans {
		details = append(details, PlanDetails{
			ID:    plan.ID,
			Name:  plan.Name,
			Limit: plan.Limit,
			Price: plan.Price,
		})
	}

	return c.JSON(http.StatusOK, GetPlansResponse{
		Message: "Plans retrieved successfully",
		Plans:   details,
	})
}

// CreatePlanHandler godoc
// @Summary      Create a plan
// @Description  Creates a new plan. Admin only.
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        planRequest  body  PlanRequest  true  "Plan payload"
// @Success      201 {object}  PlanDetails "Plan created"
// @Failure      400 {object} echo.HTTPError     "Bad request"
// @Failure      403 {object} echo.HTTPError     "Administrator access required"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/admin/plans [post]
func CreatePlanHandler(c echo.Context) error {
	logger := c.Logger()

	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid plan request payload:", err)
		return echo.ErrBadRequest
	}
	if req.Name == "" {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "name field is required",
		}
	}
	if req.Limit < 0 || req.Price < 0 {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "limit and price must not be negative",
		}
	}

	plan, err := planCatalog.Create(c.Request().Context(), req.Name, req.Limit, req.Price)
	if err != nil {
		logger.Errorf("Failed to create plan: %v", err)
		return echo.ErrInternalServerError
	}

	publisher.Publish(c.Request().Context(), events.PlanCreated, 0, map[string]any{
		"plan_id": plan.ID,
		"name":    plan.Name,
		"limit":   plan.Limit,
		"price":   plan.Price,
	})

	return c.JSON(http.StatusCreated, PlanDetails{ID: plan.ID, Name: plan.Name, Limit: plan.Limit, Price: plan.Price})
}

// UpdatePlanHandler godoc
// @Summary      Update a plan
// @Description  Rewrites a plan's name, limit and price. Admin only. The plan cache is evicted before the response is sent.
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        plan_id  path  int  true  "Plan ID"
// @Param        planRequest  body  PlanRequest  true  "Plan payload"
// @Success      200 {object}  PlanDetails "Plan updated"
// @Failure      400 {object} echo.HTTPError     "Bad request"
// @Failure      403 {object} echo.HTTPError     "Administrator access required"
// @Failure      404 {object} echo.HTTPError     "Plan not found"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/admin/plans/{plan_id} [put]
func UpdatePlanHandler(c echo.Context) error {
	logger := c.Logger()

	planID, err := strconv.ParseUint(c.Param("plan_id"), 10, 32)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "plan_id must be a positive integer",
		}
	}

	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid plan request payload:", err)
		return echo.ErrBadRequest
	}
	if req.Name == "" {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "name field is required",
		}
	}

	plan, err := planCatalog.Update(c.Request().Context(), uint(planID), req.Name, req.Limit, req.Price)
	if err != nil {
		logger.Errorf("Failed to update plan %d: %v", planID, err)
		return echo.ErrInternalServerError
	}
	if plan == nil {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: models.ErrPlanNotFound.Error(),
		}
	}

	publisher.Publish(c.Request().Context(), events.PlanUpdated, 0, map[string]any{
		"plan_id": plan.ID,
		"name":    plan.Name,
		"limit":   plan.Limit,
		"price":   plan.Price,
	})

	return c.JSON(http.StatusOK, PlanDetails{ID: plan.ID, Name: plan.Name, Limit: plan.Limit, Price: plan.Price})
}

// DeletePlanHandler godoc
// @Summary      Delete a plan
// @Description  Removes a plan unless a user still references it. Admin only.
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        plan_id  path  int  true  "Plan ID"
// @Success      200 {object}  DeleteResponse "Plan deleted"
// @Failure      403 {object} echo.HTTPError     "Administrator access required"
// @Failure      404 {object} echo.HTTPError     "Plan not found"
// @Failure      409 {object} echo.HTTPError     "Plan is still referenced by users"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/admin/plans/{plan_id} [delete]
func DeletePlanHandler(c echo.Context) error {
	logger := c.Logger()

	planID, err := strconv.ParseUint(c.Param("plan_id"), 10, 32)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "plan_id must be a positive integer",
		}
	}

	plan, err := planCatalog.GetByID(c.Request().Context(), uint(planID))
	if err != nil {
		logger.Errorf("Failed to load plan %d: %v", planID, err)
		return echo.ErrInternalServerError
	}
	if plan == nil {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: models.ErrPlanNotFound.Error(),
		}
	}

	deleted, err := planCatalog.Delete(c.Request().Context(), uint(planID))
	if err != nil {
		logger.Errorf("Failed to delete plan %d: %v", planID, err)
		return echo.ErrInternalServerError
	}
	if !deleted {
		// The plan exists; the delete was refused because users still
		// reference it.
		return &echo.HTTPError{
			Code:    http.StatusConflict,
			Message: models.ErrConflictingState.Error(),
		}
	}

	publisher.Publish(c.Request().Context(), events.PlanDeleted, 0, map[string]any{
		"plan_id": planID,
	})

	return c.JSON(http.StatusOK, DeleteResponse{Message: "Plan deleted successfully"})
}

// ChangeUserPlanHandler godoc
// @Summary      Change a user's plan
// @Description  Rebinds a user to another plan. Admin only. Historical conversions keep their rows; quota is evaluated against the new plan from now on.
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  path  int  true  "User ID"
// @Param        changePlanRequest  body  ChangePlanRequest  true  "Target plan"
// @Success      200 {object}  ChangePlanResponse "Plan changed"
// @Failure      403 {object} echo.HTTPError     "Administrator access required"
// @Failure      404 {object} echo.HTTPError     "User or plan not found"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/admin/users/{user_id}/plan [put]
func ChangeUserPlanHandler(c echo.Context) error {
	logger := c.Logger()

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "user_id must be a positive integer",
		}
	}

	var req ChangePlanRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Invalid change plan request payload:", err)
		return echo.ErrBadRequest
	}

	user, err := planCatalog.ChangeUserPlan(c.Request().Context(), uint(userID), req.PlanID)
	if err != nil {
		logger.Errorf("Failed to change plan for user %d: %v", userID, err)
		return echo.ErrInternalServerError
	}
	if user == nil {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "User or plan not found",
		}
	}

	publisher.Publish(c.Request().Context(), events.UserPlanChanged, user.ID, map[string]any{
		"plan_id": user.PlanID,
	})

	return c.JSON(http.StatusOK, ChangePlanResponse{
		Message: "Plan changed successfully",
		UserID:  user.ID,
		PlanID:  user.PlanID,
	})
}
