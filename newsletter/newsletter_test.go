package newsletter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garden/models"
	"garden/store"
	"garden/testutil"
)

func setupRouter(s *store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewNewsletterModule(s).RegisterRoutes(router)
	return router
}

func subscribe(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/api/subscribe", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubscribe(t *testing.T) {
	db := testutil.NewDB(t)
	router := setupRouter(store.New(db, nil))

	w := subscribe(router, `{"email":"reader@example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Success!"}`, w.Body.String())

	w = subscribe(router, `{"email":"reader@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"You are already subscribed!"}`, w.Body.String())

	w = subscribe(router, `{"email":"  Reader@Example.COM "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"You are already subscribed!"}`, w.Body.String())

	var n int64
	db.Model(&models.Subscriber{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func newPostgresMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return store.New(db, nil), mock
}

func TestSubscribe_InvalidEmailSkipsStore(t *testing.T) {
	s, mock := newPostgresMock(t)
	router := setupRouter(s)

	for _, body := range []string{`{"email":"no-at-sign"}`, `{"email":""}`, `{}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			w := subscribe(router, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"error":"Invalid email"}`, w.Body.String())
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribe_StoreFailure(t *testing.T) {
	s, mock := newPostgresMock(t)
	router := setupRouter(s)
	mock.ExpectQuery(`INSERT INTO "subscribers"`).WillReturnError(errors.New("connection reset by peer"))

	w := subscribe(router, `{"email":"reader@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestSendPost(t *testing.T) {
	db := testutil.NewDB(t)
	s := store.New(db, nil)
	post := testutil.CreatePost(t, db, "hello-world", true)
	mailer := &recordingMailer{}
	d := NewDispatcher(s, mailer, "Garden <news@garden.example>", "https://garden.example/")

	_, err := d.SendPost(context.Background(), post)
	assert.ErrorIs(t, err, ErrNoSubscribers)
	assert.Empty(t, mailer.sent)

	require.NoError(t, s.InsertSubscriber(context.Background(), "a@example.com"))
	require.NoError(t, s.InsertSubscriber(context.Background(), "b@example.com"))

	n, err := d.SendPost(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "New Post: Post hello-world", msg.Subject)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.To)
	assert.Equal(t, "Garden <news@garden.example>", msg.From)
	assert.Contains(t, msg.HTML, `href="https://garden.example/blog/hello-world"`)
}

func TestSendPost_MailerFailure(t *testing.T) {
	db := testutil.NewDB(t)
	s := store.New(db, nil)
	post := testutil.CreatePost(t, db, "hello", true)
	require.NoError(t, s.InsertSubscriber(context.Background(), "a@example.com"))
	mailer := &recordingMailer{err: errors.New("quota exceeded")}

	_, err := NewDispatcher(s, mailer, "news@garden.example", "https://garden.example").SendPost(context.Background(), post)

	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Len(t, mailer.sent, 1)
}

// sesStub rejects calls over the SES destination limit the way the service does.
type sesStub struct {
	sesiface.SESAPI
	inputs []*ses.SendEmailInput
	failOn int
}

func (s *sesStub) SendEmailWithContext(ctx aws.Context, in *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error) {
	s.inputs = append(s.inputs, in)
	d := in.Destination
	if n := len(d.ToAddresses) + len(d.CcAddresses) + len(d.BccAddresses); n > sesMaxRecipients {
		return nil, fmt.Errorf("invalid parameter value: recipient count exceeds 50 (got %d)", n)
	}
	if s.failOn == len(s.inputs) {
		return nil, errors.New("throttling: maximum sending rate exceeded")
	}
	return &ses.SendEmailOutput{}, nil
}

func recipients(n int) []string {
	to := make([]string, n)
	for i := range to {
		to[i] = fmt.Sprintf("reader%d@example.com", i)
	}
	return to
}

func TestSESMailer_BatchesBcc(t *testing.T) {
	for _, n := range []int{1, 49, 50, 120} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			stub := &sesStub{}

			err := NewSESMailerWithClient(stub).Send(context.Background(), Message{
				From:    "news@garden.example",
				To:      recipients(n),
				Subject: "New Post: Hi",
				HTML:    "<p>hi</p>",
			})

			require.NoError(t, err)
			total := 0
			for _, in := range stub.inputs {
				d := in.Destination
				assert.LessOrEqual(t, len(d.ToAddresses)+len(d.BccAddresses), sesMaxRecipients)
				assert.Equal(t, []string{"news@garden.example"}, aws.StringValueSlice(d.ToAddresses))
				assert.Equal(t, "New Post: Hi", aws.StringValue(in.Message.Subject.Data))
				total += len(d.BccAddresses)
			}
			assert.Equal(t, n, total)
		})
	}
}

func TestSESMailer_PartialDeliveryIsReported(t *testing.T) {
	stub := &sesStub{failOn: 2}

	err := NewSESMailerWithClient(stub).Send(context.Background(), Message{
		From:    "news@garden.example",
		To:      recipients(120),
		Subject: "New Post: Hi",
		HTML:    "<p>hi</p>",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivered to 49 of 120")
	assert.Len(t, stub.inputs, 2)
}

func TestSMTPMailer(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", "587", "user", "pass")
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.Send(context.Background(), Message{
		From:    "Garden <news@garden.example>",
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "New Post: Hi",
		HTML:    "<p>hi</p>",
	})

	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "news@garden.example", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: New Post: Hi\r\n")
	assert.Contains(t, string(gotMsg), "Content-Type: text/html")
	assert.NotContains(t, string(gotMsg), "a@example.com")
}

func TestLogMailer(t *testing.T) {
	var buf strings.Builder
	m := NewLogMailer(zerolog.New(&buf))

	require.NoError(t, m.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "New Post: Hi"}))
	assert.Contains(t, buf.String(), `"recipients":1`)
	assert.Contains(t, buf.String(), "New Post: Hi")
}
