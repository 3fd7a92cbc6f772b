package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/service"
	"github.com/gin-gonic/gin"
)

type AssetHandler struct {
	service *service.AssetService
}

func NewAssetHandler(service *service.AssetService) *AssetHandler {
	return &AssetHandler{service: service}
}

func (h *AssetHandler) parseFilter(c *gin.Context) catalog.AssetFilter {
	filter := catalog.AssetFilter{Limit: 100}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	filter.AssetType = strings.TrimSpace(c.Query("asset_type"))
	filter.StorageLocation = strings.TrimSpace(c.Query("bucket"))
	return filter
}

func (h *AssetHandler) ListAssets(c *gin.Context) {
	assets, err := h.service.ListAssets(c.Request.Context(), h.parseFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets, "count": len(assets)})
}

func (h *AssetHandler) GetAsset(c *gin.Context) {
	asset, err := h.service.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}
