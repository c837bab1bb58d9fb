package assets

import "github.com/gin-gonic/gin"

// uploadPolicy stops scripts inside uploaded files (SVG in particular) from running
// in the site's origin.
const uploadPolicy = "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; sandbox"

// ServeDisk exposes the disk store's directory under prefix.
func ServeDisk(router gin.IRouter, prefix string, d *DiskStore) {
	router.Group(prefix, func(c *gin.Context) {
		c.Header("Content-Security-Policy", uploadPolicy)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}).Static("/", d.Dir())
}
