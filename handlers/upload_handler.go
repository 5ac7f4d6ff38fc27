// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"towebp-server/conversions"
	"towebp-server/middlewares"
	"towebp-server/models"

	"github.com/labstack/echo/v4"
)

const maxUploadSize = 10 * 1024 * 1024 // 10 MiB

var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}

// ConvertHandler godoc
// @Summary      Upload an image and record a WebP conversion
// @Description  Accepts a multipart image upload, deduplicates identical content and records a conversion against the user's plan quota.
// @Tags         conversions
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Image file (.jpg, .jpeg, .png, .gif, .bmp, max 10 MiB)"
// @Success      200 {object}  ConvertResponse "Conversion recorded"
// @Failure      400 {object} echo.HTTPError     "Invalid upload"
// @Failure      401 {object} echo.HTTPError     "Unauthorized"
// @Failure      403 {object} echo.HTTPError     "Conversion limit reached"
// @Failure      500 {object} echo.HTTPError     "Internal server error"
// @Router       /v1/conversions [post]
func ConvertHandler(c echo.Context) error {
	logger := c.Logger()

	user, err := middlewares.GetAuthenticatedUser(c)
	if err != nil {
		logger.Error("Failed to get authenticated user:", err)
		return &echo.HTTPError{
			Code:    http.StatusUnauthorized,
			Message: "Invalid or expired session token, please login again",
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		logger.Error("No file uploaded:", err)
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "file field is required",
		}
	}

	if fileHeader.Size == 0 {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Uploaded file is empty",
		}
	}
	if fileHeader.Size > maxUploadSize {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "File size exceeds the 10 MiB limit",
		}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	allowed := false
	for _, e := range allowedExtensions {
		if ext == e {
			allowed = true
			break
		}
	}
	if !allowed {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "Only JPG, JPEG, PNG, GIF and BMP files are allowed",
		}
	}

	src, err := fileHeader.Open()
	if err != nil {
		logger.Errorf("Failed to open uploaded file: %v", err)
		return echo.ErrInternalServerError
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadSize+1))
	if err != nil {
		logger.Errorf("Failed to read uploaded file: %v", err)
		return echo.ErrInternalServerError
	}
	if int64(len(data)) > maxUploadSize {
		return &echo.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "File size exceeds the 10 MiB limit",
		}
	}

	path, err := fileStore.Save(data, ext)
	if err != nil {
		logger.Errorf("Failed to store uploaded bytes: %v", err)
		return echo.ErrInternalServerError
	}

	result, err := registrar.Convert(c.Request().Context(), user.ID, conversions.Upload{
		Path:         path,
		OriginalName: fileHeader.Filename,
		Size:         int64(len(data)),
		Format:       strings.TrimPrefix(ext, "."),
	})
	if err != nil {
		// The freshly written bytes have no owner; remove them.
		fileStore.Delete(path)
		return convertError(c, err)
	}
	if result.ReusedContent {
		// Identical content was already stored; the new copy is
		// redundant.
		fileStore.Delete(path)
	}

	response := ConvertResponse{
		ConversionID:    result.ConversionID,
		OriginalFile:    fileDetails(result.Original, false),
		WebPFile:        fileDetails(result.WebP, true),
		CompressionRate: result.CompressionRate,
		ConversionDate:  result.ConvertedAt.Format(time.RFC3339),
	}
	return c.JSON(http.StatusOK, response)
}

func fileDetails(image models.Image, withDownload bool) FileDetails {
	details := FileDetails{
		ID:       image.ID,
		FileName: filepath.Base(image.Path),
		Size:     image.Size,
		Format:   image.Format,
	}
	if withDownload {
		details.DownloadURL = fmt.Sprintf("/v1/images/%d/download", image.ID)
	}
	return details
}

func convertError(c echo.Context, err error) error {
	logger := c.Logger()
	switch {
	case errors.Is(err, models.ErrInvalidUser):
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrUserNotFound):
		return &echo.HTTPError{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrLimitReached):
		return &echo.HTTPError{Code: http.StatusForbidden, Message: err.Error()}
	default:
		logger.Errorf("Conversion failed: %v", err)
		return echo.ErrInternalServerError
	}
}
