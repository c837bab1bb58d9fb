// Package seed fills a development database with fake readers, posts and interactions.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"garden/logging"
	"garden/models"
	"garden/store"
)

// Password is shared by every seeded account.
const Password = "password123"

var categories = []string{"Notes", "Engineering", "Garden", "Books", "Travel"}

type Options struct {
	Readers    int
	Posts      int
	AdminEmail string
	Clean      bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Seeder struct {
	store *store.Store
	rng   *rand.Rand
	opts  Options
	hash  string
}

func NewSeeder(s *store.Store, opts Options) *Seeder {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		store: s,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		opts:  opts,
	}
}

// Result counts what Run created.
type Result struct {
	Users       int
	Posts       int
	Likes       int
	Comments    int
	Subscribers int
}

func (sd *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), sd.opts.BcryptCost)
	if err != nil {
		return res, err
	}
	sd.hash = string(hash)

	if sd.opts.Clean {
		if err := sd.clear(ctx); err != nil {
			return res, fmt.Errorf("clear: %w", err)
		}
	}

	var users []*models.User
	if sd.opts.AdminEmail != "" {
		admin, err := sd.createUser(ctx, sd.opts.AdminEmail, true)
		if err != nil {
			return res, fmt.Errorf("create admin: %w", err)
		}
		users = append(users, admin)
	}
	for i := 0; i < sd.opts.Readers; i++ {
		u, err := sd.createUser(ctx, fmt.Sprintf("%d.%s", i, gofakeit.Email()), false)
		if err != nil {
			return res, fmt.Errorf("create reader: %w", err)
		}
		users = append(users, u)
	}
	res.Users = len(users)

	for i := 0; i < sd.opts.Posts; i++ {
		post, err := sd.createPost(ctx, i)
		if err != nil {
			return res, fmt.Errorf("create post: %w", err)
		}
		res.Posts++
		if !post.Published {
			continue
		}

		for _, u := range users {
			if sd.rng.Intn(3) == 0 {
				if err := sd.store.InsertLike(ctx, post.ID, u.ID); err != nil {
					return res, fmt.Errorf("like: %w", err)
				}
				res.Likes++
			}
			if sd.rng.Intn(5) == 0 {
				c := &models.Comment{PostID: post.ID, UserID: u.ID, Email: u.Email, Content: gofakeit.Sentence(12)}
				if err := sd.store.InsertComment(ctx, c); err != nil {
					return res, fmt.Errorf("comment: %w", err)
				}
				res.Comments++
			}
		}
	}

	for _, u := range users {
		if sd.rng.Intn(2) == 0 {
			continue
		}
		if err := sd.store.InsertSubscriber(ctx, u.Email); err != nil {
			return res, fmt.Errorf("subscribe: %w", err)
		}
		res.Subscribers++
	}

	logging.L.Info().
		Int("users", res.Users).
		Int("posts", res.Posts).
		Int("likes", res.Likes).
		Int("comments", res.Comments).
		Int("subscribers", res.Subscribers).
		Msg("seed complete")
	return res, nil
}

func (sd *Seeder) createUser(ctx context.Context, email string, admin bool) (*models.User, error) {
	u := &models.User{Email: email, PasswordHash: sd.hash}
	if err := sd.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	if _, err := sd.store.EnsureProfile(ctx, u.ID, admin); err != nil {
		return nil, err
	}

	person := gofakeit.Person()
	err := sd.store.UpsertProfile(ctx, &models.Profile{
		ID:        u.ID,
		FullName:  person.FirstName + " " + person.LastName,
		Username:  strings.ToLower(gofakeit.Username()),
		AvatarURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
		Bio:       gofakeit.Sentence(10),
		Website:   gofakeit.URL(),
	})
	return u, err
}

func (sd *Seeder) createPost(ctx context.Context, i int) (*models.Post, error) {
	title := strings.TrimSuffix(gofakeit.Sentence(5), ".")
	var body strings.Builder
	body.WriteString("## " + gofakeit.HackerPhrase() + "\n\n")
	for p := 0; p < 2+sd.rng.Intn(4); p++ {
		body.WriteString(gofakeit.Paragraph(1, 4, 12, " ") + "\n\n")
	}
	body.WriteString(fmt.Sprintf("![%s](https://picsum.photos/seed/%s/800/400)\n", gofakeit.Word(), gofakeit.UUID()))

	created := time.Now().Add(-time.Duration(sd.rng.Intn(90*24)) * time.Hour)
	post := &models.Post{
		Title:     title,
		Slug:      fmt.Sprintf("seed-post-%d-%s", i, gofakeit.UUID()[:8]),
		Category:  categories[sd.rng.Intn(len(categories))],
		Excerpt:   gofakeit.Sentence(15),
		Content:   body.String(),
		Published: sd.rng.Intn(5) != 0,
		ViewCount: int64(sd.rng.Intn(500)),
		CreatedAt: created,
		UpdatedAt: created,
	}
	return post, sd.store.CreatePost(ctx, post)
}

func (sd *Seeder) clear(ctx context.Context) error {
	db := sd.store.DB().WithContext(ctx)
	for _, m := range []interface{}{&models.Like{}, &models.Comment{}, &models.Subscriber{}, &models.Post{}, &models.Profile{}, &models.User{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}
