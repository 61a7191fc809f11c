package handlers

import (
	"net/http"
	"strings"

	"task-tracker/backend/internal/cache"

	"github.com/gin-gonic/gin"
)

// CacheHandler exposes operational controls over the task projection cache.
type CacheHandler struct {
	Cache cache.Cache
}

func NewCacheHandler(cacheInstance cache.Cache) *CacheHandler {
	return &CacheHandler{Cache: cacheInstance}
}

// EvictCacheKey evicts a specific cache key or a trailing-wildcard pattern
// DELETE /api/v1/admin/cache/:key
func (h *CacheHandler) EvictCacheKey(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cache key is required"})
		return
	}

	var err error
	if strings.Contains(key, "*") {
		err = h.Cache.DeletePattern(key)
	} else {
		err = h.Cache.Delete(key)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to evict cache key",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Cache key evicted",
		"key":     key,
	})
}

// GetCacheHealth reports whether the shared cache tier is reachable
// GET /api/v1/admin/cache/health
func (h *CacheHandler) GetCacheHealth(c *gin.Context) {
	if err := h.Cache.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetCacheStats returns per-level cache statistics
// GET /api/v1/admin/cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cache.Stats())
}
