package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/IvanBrykalov/tilewindow/loader/archive"
	"github.com/IvanBrykalov/tilewindow/loader/httploader"
	"github.com/IvanBrykalov/tilewindow/model"
	"github.com/IvanBrykalov/tilewindow/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// Tile serves /tiles/x<X>/z<Z>.json[.gz], the layout httploader.DefaultPath
// requests, so one instance can feed another.
func (h *Handler) Tile(c *gin.Context) {
	l := logger.Nop()
	if v, ok := c.Get("logger"); ok {
		l = v.(logger.Logger)
	}

	x, ok := parseAxis(c.Param("x"), "x")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x should be x<integer>"})
		return
	}
	zParam := c.Param("z")
	gz := strings.HasSuffix(zParam, ".json.gz")
	zParam = strings.TrimSuffix(strings.TrimSuffix(zParam, ".gz"), ".json")
	z, ok := parseAxis(zParam, "z")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "z should be z<integer>.json or z<integer>.json.gz"})
		return
	}

	m, err := h.tiles.LoadTile(c.Request.Context(), x, z)
	if err != nil {
		if errors.Is(err, archive.ErrTileNotFound) || errors.Is(err, httploader.ErrTileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tile not found"})
			return
		}
		l.Error("tile load failed", "x", x, "z", z, "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "tile load failed"})
		return
	}
	defer m.Dispose()

	g, ok := m.(*model.Geometry)
	if !ok {
		l.Error("tile source returned a non-geometry model", "x", x, "z", z)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unsupported tile model"})
		return
	}

	var body bytes.Buffer
	if gz {
		zw := gzip.NewWriter(&body)
		if err := model.Encode(zw, g); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := zw.Close(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/gzip", body.Bytes())
		return
	}
	if err := model.Encode(&body, g); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", body.Bytes())
}

// parseAxis parses "<prefix><integer>".
func parseAxis(s, prefix string) (int, bool) {
	rest, found := strings.CutPrefix(s, prefix)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
