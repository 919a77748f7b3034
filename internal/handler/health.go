package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/r3hensler/base-client-server/internal/model"
)

// Health godoc
// @Summary Health check
// @Tags meta
// @Produce json
// @Success 200 {object} model.StatusResponse
// @Router /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.StatusResponse{Status: "ok"})
}

// Root godoc
// @Summary Service banner
// @Tags meta
// @Produce json
// @Success 200 {object} model.RootResponse
// @Router / [get]
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{
		Status:  "ok",
		Message: "auth API server is running",
	})
}
