package handlers

import (
	"net/http"

	"golang-cart-sync/internal/middleware"
	"golang-cart-sync/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type CartHandler struct {
	cartService CartServiceInterface
	broadcaster RoomBroadcaster
}

func NewCartHandler(cartService CartServiceInterface, broadcaster RoomBroadcaster) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		broadcaster: broadcaster,
	}
}

// RegisterRoutes registers the routes for cart management
func (h *CartHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	cart := router.Group("/cart", authMiddleware.AuthRequired())
	{
		cart.GET("", h.GetCart)
		cart.DELETE("", h.ClearCart)
	}

	admin := router.Group("/admin/carts", authMiddleware.AuthRequired(), authMiddleware.RoleRequired(auth.RoleAdmin))
	{
		admin.GET("/:userId", h.GetUserCart)
		admin.DELETE("/:userId", h.ClearUserCart)
	}
}

// GetCart godoc
// @Summary Get user's cart
// @Tags cart
// @Produce json
// @Success 200 {object} cartsync.CartSnapshot
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found",
		})
		return
	}

	snap, err := h.cartService.GetSnapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get cart",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, snap.OwnedBy(userID))
}

// ClearCart godoc
// @Summary Empty user's cart
// @Description Removes every line and pushes the empty cart to all of the user's connections
// @Tags cart
// @Produce json
// @Success 200 {object} cartsync.CartSnapshot
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /cart [delete]
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Unauthorized",
			Message: "User ID not found",
		})
		return
	}

	snap, err := h.cartService.ClearCart(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to clear cart",
			Message: err.Error(),
		})
		return
	}

	logrus.WithField("user_id", userID).Info("cart cleared")
	h.broadcaster.BroadcastSnapshot(c.Request.Context(), userID, snap)
	c.JSON(http.StatusOK, snap)
}

// GetUserCart godoc
// @Summary Get any user's cart
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} cartsync.CartSnapshot
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/carts/{userId} [get]
func (h *CartHandler) GetUserCart(c *gin.Context) {
	userID := c.Param("userId")

	snap, err := h.cartService.GetSnapshot(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to get cart",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, snap.OwnedBy(userID))
}

// ClearUserCart godoc
// @Summary Empty any user's cart
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} cartsync.CartSnapshot
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/carts/{userId} [delete]
func (h *CartHandler) ClearUserCart(c *gin.Context) {
	userID := c.Param("userId")

	snap, err := h.cartService.ClearCart(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to clear cart",
			Message: err.Error(),
		})
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "admin_id": middleware.GetUserID(c)}).Info("cart cleared by admin")
	h.broadcaster.BroadcastSnapshot(c.Request.Context(), userID, snap)
	c.JSON(http.StatusOK, snap)
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "golang-cart-sync",
	})
}
