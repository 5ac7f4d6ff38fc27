// SPDX-License-Identifier: GPL-3.0-only

package handlers

// swagger:model SignupRequest
type SignupRequest struct {
	// User's email address
	// required: true
	Email string `json:"email" example:"user@example.com"`
	// User's password
	// required: true
	Password string `json:"password" example:"MySecretPassword@123"`
}

// swagger:model SignupResponse
type SignupResponse struct {
	// Message indicating successful signup
	Message string `json:"message" example:"Signup successful"`
}

// swagger:model LoginRequest
type LoginRequest struct {
	// User's email address
	Email string `json:"email" example:"user@example.com"`
	// User's password
	Password string `json:"password" example:"MySecretPassword@123"`
}

// swagger:model LoginResponse
type LoginResponse struct {
	// Session token for subsequent authenticated requests, used in the
	// Authorization header as a Bearer token.
	SessionToken string `json:"session_token" example:"sample_session_token"`
	// Message indicating successful login
	Message string `json:"message" example:"Login successful"`
}

// swagger:model FileDetails
type FileDetails struct {
	// Stored image identifier
	ID uint `json:"id" example:"42"`
	// Stored file name
	FileName string `json:"file_name" example:"b7a9c1d0.png"`
	// File size in bytes
	Size int64 `json:"size" example:"20480"`
	// Format tag of the stored bytes
	Format string `json:"format" example:"PNG"`
	// Download URL, present on the result file
	DownloadURL string `json:"download_url,omitempty" example:"/v1/images/42/download"`
}

// swagger:model ConvertResponse
type ConvertResponse struct {
	// Identifier of the recorded conversion
	ConversionID uint `json:"conversion_id" example:"7"`
	// Uploaded file metadata
	OriginalFile FileDetails `json:"original_file"`
	// Nominal WebP artifact metadata
	WebPFile FileDetails `json:"webp_file"`
	// Achieved compression rate (always 0 while transcoding is a placeholder)
	CompressionRate float64 `json:"compression_rate" example:"0"`
	// UTC timestamp of the conversion
	ConversionDate string `json:"conversion_date" example:"2023-10-01T12:00:00Z"`
}

// swagger:model ConversionItem
type ConversionItem struct {
	// Conversion identifier
	ID uint `json:"id" example:"7"`
	// Source image metadata
	OriginalFile FileDetails `json:"original_file"`
	// Result image metadata
	WebPFile FileDetails `json:"webp_file"`
	// UTC timestamp of the conversion
	ConversionDate string `json:"conversion_date" example:"2023-10-01T12:00:00Z"`
}

// swagger:model TodayUsageResponse
type TodayUsageResponse struct {
	// Conversions recorded today (UTC), newest first
	TodayItems []ConversionItem `json:"today_items"`
	// Number of conversions recorded today
	TodayCount int `json:"today_count" example:"3"`
	// Lifetime conversion count
	TotalCount int `json:"total_count" example:"9"`
	// Plan conversion limit
	Limit int `json:"limit" example:"10"`
	// Conversions left under the current plan
	RemainingConversions int `json:"remaining_conversions" example:"1"`
	// Whether the plan limit has been reached
	LimitReached bool `json:"limit_reached" example:"false"`
}

// swagger:model PlanDetails
type PlanDetails struct {
	// Plan identifier
	ID uint `json:"id" example:"1"`
	// Plan name
	Name string `json:"name" example:"Free"`
	// Maximum conversions allowed under the plan
	Limit int `json:"limit" example:"10"`
	// Plan price
	Price int `json:"price" example:"0"`
}

// swagger:model GetPlansResponse
type GetPlansResponse struct {
	// Message indicating successful retrieval
	Message string `json:"message" example:"Plans retrieved successfully"`
	// Available plans in insertion order
	Plans []PlanDetails `json:"plans"`
}

// swagger:model PlanRequest
type PlanRequest struct {
	// Plan name
	// required: true
	Name string `json:"name" example:"Premium"`
	// Maximum conversions allowed under the plan
	// required: true
	Limit int `json:"limit" example:"1000"`
	// Plan price
	Price int `json:"price" example:"29"`
}

// swagger:model ChangePlanRequest
type ChangePlanRequest struct {
	// Identifier of the plan to assign
	// required: true
	PlanID uint `json:"plan_id" example:"2"`
}

// swagger:model ChangePlanResponse
type ChangePlanResponse struct {
	// Message indicating the assignment happened
	Message string `json:"message" example:"Plan changed successfully"`
	// User identifier
	UserID uint `json:"user_id" example:"5"`
	// Newly assigned plan identifier
	PlanID uint `json:"plan_id" example:"2"`
}

// swagger:model DeleteResponse
type DeleteResponse struct {
	// Message indicating the deletion happened
	Message string `json:"message" example:"Deleted successfully"`
}
