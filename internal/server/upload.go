package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playtestlabs/playtest/internal/image"
)

type uploadImagesRequest struct {
	Images          []string       `json:"images"`
	OrderID         string         `json:"orderId"`
	ShippingAddress *image.Address `json:"shippingAddress"`
}

// UploadImages
// POST /api/upload-images
func (s *Server) UploadImages(c *gin.Context) {
	var req uploadImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if len(req.Images) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Images array is required"})
		return
	}
	if req.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Order ID is required"})
		return
	}

	report := s.images.Ingest(c.Request.Context(), req.Images, req.OrderID, req.ShippingAddress)

	if report.UploadedCount == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload any images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"imageUrls":     report.URLs,
		"uploadedCount": report.UploadedCount,
		"totalCount":    report.TotalCount,
	})
}
