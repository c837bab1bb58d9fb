package admin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"garden/assets"
	"garden/logging"
)

const maxImageSize = 10 << 20

type postRef struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

func (a *AdminModule) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
		return
	}
	if fh.Size > maxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is larger than 10MB"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read upload"})
		return
	}
	defer f.Close()

	asset, err := a.assets.Upload(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		if errors.Is(err, assets.ErrUnsupportedType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only jpg, png, gif, webp and svg images are allowed"})
			return
		}
		logging.L.Error().Err(err).Str("file", fh.Filename).Msg("upload image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error uploading image"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":      asset.Key,
		"url":      asset.URL,
		"markdown": asset.Markdown(),
	})
}

func (a *AdminModule) listImages(c *gin.Context) {
	images, err := a.assets.List(c.Request.Context())
	if err != nil {
		logging.L.Error().Err(err).Msg("list images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing images"})
		return
	}
	if images == nil {
		images = []assets.Asset{}
	}
	c.JSON(http.StatusOK, gin.H{"images": images})
}

// deleteImage removes the object even when posts still embed it; referenced_by
// tells the author which posts now have a broken image.
func (a *AdminModule) deleteImage(c *gin.Context) {
	key, err := assets.CleanKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image key"})
		return
	}

	refs := []postRef{}
	posts, err := a.store.PostsReferencing(c.Request.Context(), a.assets.PublicURL(key))
	if err != nil {
		logging.L.Warn().Err(err).Str("key", key).Msg("reference lookup failed")
	}
	for _, p := range posts {
		refs = append(refs, postRef{ID: p.ID, Title: p.Title, Slug: p.Slug})
	}

	if err := a.assets.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
			return
		}
		logging.L.Error().Err(err).Str("key", key).Msg("delete image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error deleting image"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Image deleted", "referenced_by": refs})
}
