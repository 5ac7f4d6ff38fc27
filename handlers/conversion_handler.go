// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"net/http"
	"strconv"
	"time"
	"towebp-server/middlewares"
	"towebp-server/models"

	"github.com/labstack/echo/v4"
)

// TodayUsageHandler godoc
// @Summary      Get today's conversion usage
// @Description  Retrieves the authenticated user's conversions for the current UTC day, lifetime totals and remaining quota under the current plan.
// @Tags         conversions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object}  TodayUsageResponse "Usage retrieved successfully"
// @Failure      401 {object} echo.HTTPError     "Unauthorized"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/conversions/today [get]
func TodayUsageHandler(c echo.Context) error {
	logger := c.Logger()

	user, err := middlewares.GetAuthenticatedUser(c)
	if err != nil {
		logger.Error("Failed to get authenticated user:", err)
		return &echo.HTTPError{
			Code:    http.StatusUnauthorized,
			Message: "Invalid or expired session token, please login again",
		}
	}

	usage, err := registrar.TodayUsage(c.Request().Context(), user.ID)
	if err != nil {
		logger.Errorf("Failed to compute today's usage: %v", err)
		return echo.ErrInternalServerError
	}

	items := make([]ConversionItem, 0, len(usage.TodayItems))
	for _, conv := range usage.TodayItems {
		items = append(items, ConversionItem{
			ID:             conv.ID,
			OriginalFile:   fileDetails(conv.ImageFrom, false),
			WebPFile:       fileDetails(conv.ImageTo, true),
			ConversionDate: conv.CreatedAt.Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, TodayUsageResponse{
		TodayItems:           items,
		TodayCount:           usage.TodayCount,
		TotalCount:           usage.TotalCount,
		Limit:                usage.Limit,
		RemainingConversions: usage.Remaining,
		LimitReached:         usage.LimitReached,
	})
}

// DeleteConversionHandler godoc
// @Summary      Delete a conversion
// @Description  Deletes a conversion record, its stored content when no other conversion references it, and the underlying bytes.
// @Tags         conversions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        conversion_id  path  int  true  "Conversion ID"
// @Success      200 {object}  DeleteResponse "Conversion deleted"
// @Failure      401 {object} echo.HTTPError     "Unauthorized"
// @Failure      403 {object} echo.HTTPError     "Conversion belongs to another user"
// @Failure      404 {object} echo.HTTPError     "Conversion not found"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/conversions/{conversion_id} [delete]
func DeleteConversionHandler(c echo.Context) error {
	logger := c.Logger()

	user, err := middlewares.GetAuthenticatedUser(c)
	if err != nil {
		logger.Error("Failed to get authenticated user:", err)
		return &echo.HTTPError{
			Code:    http.StatusUnauthorized,
			Message: "Invalid or expired session token, please login again",
		}
	}

	conversionID, err := strconv.ParseUint(c.Param("conversion_id"), 10, 32)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "conversion_id must be a positive integer",
		}
	}

	conversions, err := registrar.UserConversions(c.Request().Context(), user.ID)
	if err != nil {
		logger.Errorf("Failed to list user conversions: %v", err)
		return echo.ErrInternalServerError
	}
	owned := false
	for _, conv := range conversions {
		if conv.ID == uint(conversionID) {
			owned = true
			break
		}
	}
	if !owned && user.Role != models.RoleAdmin {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: models.ErrNotFound.Error(),
		}
	}

	deleted, err := registrar.Delete(c.Request().Context(), uint(conversionID))
	if err != nil {
		logger.Errorf("Failed to delete conversion %d: %v", conversionID, err)
		return echo.ErrInternalServerError
	}
	if !deleted {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: models.ErrNotFound.Error(),
		}
	}

	return c.JSON(http.StatusOK, DeleteResponse{Message: "Conversion deleted successfully"})
}

// DownloadImageHandler godoc
// @Summary      Download a stored image
// @Description  Streams the stored bytes of an image with a content type derived from its format tag.
// @Tags         images
// @Produce      octet-stream
// @Security     BearerAuth
// @Param        image_id  path  int  true  "Image ID"
// @Success      200 {file}  binary "Image bytes"
// @Failure      404 {object} echo.HTTPError     "Image or file not found"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/images/{image_id}/download [get]
func DownloadImageHandler(c echo.Context) error {
	logger := c.Logger()

	imageID, err := strconv.ParseUint(c.Param("image_id"), 10, 32)
	if err != nil {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "image_id must be a positive integer",
		}
	}

	image, err := registrar.ImageByID(c.Request().Context(), uint(imageID))
	if err != nil {
		logger.Errorf("Failed to load image %d: %v", imageID, err)
		return echo.ErrInternalServerError
	}
	if image == nil {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "Image not found",
		}
	}

	if !fileStore.Exists(image.Path) {
		return &echo.HTTPError{
			Code:    http.StatusNotFound,
			Message: "File not found on server",
		}
	}

	return c.File(image.Path)
}
