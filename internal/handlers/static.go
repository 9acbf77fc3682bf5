package handlers

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
)

var staticPages = []string{
	"index.html", "create.html", "success.html", "terms.html",
	"privacy.html", "track-order.html", "reviews.html",
}

var staticDirs = []string{"css", "js", "images", "media"}

// RegisterStatic serves the marketing pages and asset directories from dir.
func RegisterStatic(r *gin.Engine, dir string) {
	r.StaticFile("/", filepath.Join(dir, "index.html"))
	for _, page := range staticPages {
		r.StaticFile("/"+page, filepath.Join(dir, page))
	}
	for _, d := range staticDirs {
		r.Static("/"+d, filepath.Join(dir, d))
	}
}
