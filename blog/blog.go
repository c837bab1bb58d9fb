package blog

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"garden/auth"
	"garden/cache"
	"garden/interaction"
	"garden/logging"
	"garden/models"
	"garden/store"
	"garden/views"
)

const wordsPerMinute = 200

type BlogModule struct {
	store   *store.Store
	views   *ViewCounter
	siteURL string
}

// markdown renderer configured with Goldmark and useful extensions
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,     // tables, strikethrough, task lists, autolinks
		extension.Linkify, // linkify raw URLs
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // posts embed raw <img> tags
	),
)

// PostCard is a feed entry.
type PostCard struct {
	models.Post
	ReadingTime string
}

func NewBlogModule(s *store.Store, counter *ViewCounter, siteURL string) *BlogModule {
	return &BlogModule{
		store:   s,
		views:   counter,
		siteURL: strings.TrimSuffix(siteURL, "/"),
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", b.index)
	router.GET("/about", cache.ETagMiddleware(), b.about)
	router.GET("/blog/:slug", b.post)
	router.GET("/sitemap.xml", cache.ETagMiddleware(), b.sitemap)
}

func subscribeEmail(c *gin.Context) string {
	return auth.SessionFrom(c).Email()
}

func (b *BlogModule) index(c *gin.Context) {
	posts, err := b.store.ListPublishedPosts(c.Request.Context())
	if err != nil {
		logging.L.Error().Err(err).Msg("list posts failed")
		c.HTML(http.StatusInternalServerError, "error.html", views.Page(c, gin.H{
			"error": "Failed to load posts",
		}))
		return
	}

	cards := make([]PostCard, 0, len(posts))
	for _, p := range posts {
		cards = append(cards, PostCard{Post: p, ReadingTime: ReadingTime(p.Content)})
	}

	c.HTML(http.StatusOK, "home.html", views.Page(c, gin.H{
		"posts":          cards,
		"subscribeEmail": subscribeEmail(c),
	}))
}

func (b *BlogModule) about(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", views.Page(c, gin.H{
		"title":          "About",
		"subscribeEmail": subscribeEmail(c),
	}))
}

// post renders one post. Admins can preview drafts; views count every render of a published post.
func (b *BlogModule) post(c *gin.Context) {
	sess := auth.SessionFrom(c)
	post, err := b.store.GetPostBySlug(c.Request.Context(), c.Param("slug"), sess.IsAdmin())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.HTML(http.StatusNotFound, "not_found.html", views.Page(c, gin.H{
				"title": "Not found",
				"error": "Post not found",
			}))
			return
		}
		logging.L.Error().Err(err).Str("slug", c.Param("slug")).Msg("load post failed")
		c.HTML(http.StatusInternalServerError, "error.html", views.Page(c, gin.H{
			"error": "Failed to load post",
		}))
		return
	}

	if post.Published {
		b.views.Track(post.ID)
	}

	view := interaction.NewView(b.store, post.ID, sess)
	if err := view.Load(c.Request.Context()); err != nil {
		// the page still renders; the socket fills in likes and comments
		logging.L.Warn().Err(err).Uint("post_id", post.ID).Msg("load interactions failed")
	}

	c.HTML(http.StatusOK, "post.html", views.Page(c, gin.H{
		"title":       post.Title,
		"post":        post,
		"content":     template.HTML(renderMarkdown(post.Content)),
		"readingTime": ReadingTime(post.Content),
		"state":       view.State(),
	}))
}

func (b *BlogModule) sitemap(c *gin.Context) {
	posts, err := b.store.ListPublishedPosts(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to build sitemap")
		return
	}

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	writeURL(&sitemap, b.siteURL+"/", "", "weekly", "1.0")
	writeURL(&sitemap, b.siteURL+"/about", "", "monthly", "0.5")
	for _, p := range posts {
		writeURL(&sitemap, b.siteURL+"/blog/"+p.Slug, p.UpdatedAt.Format("2006-01-02"), "monthly", "0.8")
	}

	sitemap.WriteString("</urlset>\n")
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(sitemap.String()))
}

func writeURL(sb *strings.Builder, loc, lastmod, changefreq, priority string) {
	sb.WriteString("  <url>\n")
	sb.WriteString("    <loc>" + template.HTMLEscapeString(loc) + "</loc>\n")
	if lastmod != "" {
		sb.WriteString("    <lastmod>" + lastmod + "</lastmod>\n")
	}
	sb.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	sb.WriteString("    <priority>" + priority + "</priority>\n")
	sb.WriteString("  </url>\n")
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		// fall back to escaped source so the page still renders
		return template.HTMLEscapeString(content)
	}
	return buf.String()
}

var markdownPunctuation = regexp.MustCompile("[#*`\\[\\]()]")

// ReadingTime estimates minutes at 200 words per minute, ignoring markdown punctuation.
func ReadingTime(content string) string {
	words := len(strings.Fields(markdownPunctuation.ReplaceAllString(content, "")))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d min read", minutes)
}
