// Package newsletter handles subscriptions and the "new post" email blast.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"garden/logging"
	"garden/metrics"
	"garden/models"
	"garden/store"
)

var (
	ErrNoSubscribers = errors.New("no subscribers found")
	ErrSendFailed    = errors.New("error sending emails")
)

type NewsletterModule struct {
	store *store.Store
}

func NewNewsletterModule(s *store.Store) *NewsletterModule {
	return &NewsletterModule{store: s}
}

func (a *NewsletterModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/subscribe", a.subscribe)
}

type subscribeRequest struct {
	Email string `json:"email"`
}

func (a *NewsletterModule) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email"})
		return
	}

	if err := a.store.InsertSubscriber(c.Request.Context(), email); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You are already subscribed!"})
			return
		}
		logging.L.Error().Err(err).Msg("insert subscriber failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not subscribe right now"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Success!"})
}

// Dispatcher mails every subscriber about a post.
type Dispatcher struct {
	store   *store.Store
	mailer  Mailer
	from    string
	siteURL string
}

func NewDispatcher(s *store.Store, mailer Mailer, from, siteURL string) *Dispatcher {
	return &Dispatcher{
		store:   s,
		mailer:  mailer,
		from:    from,
		siteURL: strings.TrimSuffix(siteURL, "/"),
	}
}

var emailTemplate = template.Must(template.New("newsletter").Parse(`<div style="font-family: sans-serif; padding: 20px;">
  <h1>New Drop: {{.Title}}</h1>
  <p>I just published a new article in the Digital Garden.</p>
  <a href="{{.URL}}" style="background: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block; margin-top: 10px;">Read it now</a>
  <p style="margin-top: 20px; color: #666; font-size: 12px;">(If you didn't sign up for this, I'm sorry! You can reply to unsubscribe.)</p>
</div>`))

// PostURL is the public link mailed to subscribers.
func (d *Dispatcher) PostURL(post *models.Post) string {
	return d.siteURL + "/blog/" + post.Slug
}

// SendPost sends one batch email to all subscribers and returns how many were addressed.
// There is no retry; a mailer failure is reported as ErrSendFailed.
func (d *Dispatcher) SendPost(ctx context.Context, post *models.Post) (int, error) {
	emails, err := d.store.ListSubscriberEmails(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}
	if len(emails) == 0 {
		return 0, ErrNoSubscribers
	}

	var body strings.Builder
	if err := emailTemplate.Execute(&body, struct{ Title, URL string }{post.Title, d.PostURL(post)}); err != nil {
		return 0, fmt.Errorf("render newsletter: %w", err)
	}

	msg := Message{
		From:    d.from,
		To:      emails,
		Subject: "New Post: " + post.Title,
		HTML:    body.String(),
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		metrics.NewsletterSends.WithLabelValues("error").Inc()
		logging.L.Error().Err(err).Uint("post_id", post.ID).Int("recipients", len(emails)).Msg("newsletter send failed")
		return 0, ErrSendFailed
	}

	metrics.NewsletterSends.WithLabelValues("ok").Inc()
	logging.L.Info().Uint("post_id", post.ID).Int("recipients", len(emails)).Msg("newsletter sent")
	return len(emails), nil
}
