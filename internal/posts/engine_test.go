package posts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/PortNumber53/liftx/internal/apperrors"
	"github.com/PortNumber53/liftx/internal/entitlements"
	"github.com/PortNumber53/liftx/internal/models"
)

var fixedNow = time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)

type recordingObserver struct {
	created   []Created
	cancelled []int64
}

func (r *recordingObserver) PostCreated(_ context.Context, c Created) { r.created = append(r.created, c) }
func (r *recordingObserver) PostCancelled(_ context.Context, _, postID int64) {
	r.cancelled = append(r.cancelled, postID)
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, sqlmock.Sqlmock, *recordingObserver) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if cfg.QuotaLocation == nil {
		cfg.QuotaLocation = time.UTC
	}
	obs := &recordingObserver{}
	e := NewEngine(db, cfg, obs)
	e.SetClock(func() time.Time { return fixedNow })
	return e, mock, obs
}

func expectLockUser(mock sqlmock.Sqlmock, userID int64, tier string, proLimit any) {
	mock.ExpectQuery(`SELECT subscription_tier, pro_post_limit FROM public\.users WHERE id = \$1 FOR UPDATE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"subscription_tier", "pro_post_limit"}).AddRow(tier, proLimit))
}

func expectCount(mock sqlmock.Sqlmock, userID int64, used int) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public\.posts WHERE user_id = \$1 AND created_at >= \$2 AND status <> 'cancelled'`).
		WithArgs(userID, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(used))
}

func imageInput(platforms ...string) CreateInput {
	return CreateInput{
		ContentType: "image",
		MediaURLs:   []string{"https://cdn.example/a.png"},
		MediaKeys:   []string{"uploads/1/a.png"},
		Platforms:   platforms,
	}
}

func assertKind(t *testing.T, err error, want apperrors.Kind, msgPart string) {
	t.Helper()
	ae, ok := apperrors.As(err)
	if !ok {
		t.Fatalf("expected AppError %s got %v", want, err)
	}
	if ae.Kind != want {
		t.Fatalf("expected kind %s got %s (%s)", want, ae.Kind, ae.Message)
	}
	if msgPart != "" && !strings.Contains(ae.Message, msgPart) {
		t.Fatalf("expected message containing %q got %q", msgPart, ae.Message)
	}
}

func TestCreate_TrialQuotaExceeded(t *testing.T) {
	e, mock, obs := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", int64(50))
	expectCount(mock, 1, 2)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 1, imageInput("x"))
	assertKind(t, err, apperrors.KindQuotaExceeded, "Daily post limit of 2 reached for your trial plan")
	if ae, _ := apperrors.As(err); ae.Code != "FORBIDDEN" || ae.StatusCode != 403 {
		t.Fatalf("expected FORBIDDEN/403 got %s/%d", ae.Code, ae.StatusCode)
	}
	if len(obs.created) != 0 {
		t.Fatalf("observer must not be called on denial")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_QuotaCheckedBeforePlatformLimit(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", nil)
	expectCount(mock, 1, 2)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 1, CreateInput{ContentType: "text", Platforms: []string{"x", "facebook", "linkedin"}})
	assertKind(t, err, apperrors.KindQuotaExceeded, "")
}

func TestCreate_TrialPlatformLimit(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", nil)
	expectCount(mock, 1, 0)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 1, imageInput("x", "facebook", "linkedin"))
	assertKind(t, err, apperrors.KindPlatformLimitExceeded, "Your trial plan allows up to 2 platforms per post.")
}

func TestCreate_TrialContentType(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", nil)
	expectCount(mock, 1, 0)
	mock.ExpectRollback()

	in := imageInput("x")
	in.ContentType = "video"
	_, err := e.Create(context.Background(), 1, in)
	assertKind(t, err, apperrors.KindContentTypeNotAllowed, `Content type "video" is not available on your trial plan.`)
}

func TestCreate_TrialScheduling(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", nil)
	expectCount(mock, 1, 1)
	mock.ExpectRollback()

	in := imageInput("x")
	at := fixedNow.Add(time.Hour)
	in.ScheduledAt = &at
	_, err := e.Create(context.Background(), 1, in)
	assertKind(t, err, apperrors.KindSchedulingNotAllowed, "Scheduling is not available on the Trial plan.")
}

func TestCreate_ProImmediatePublish(t *testing.T) {
	e, mock, obs := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 2, "pro", int64(50))
	expectCount(mock, 2, 10)
	mock.ExpectQuery(`INSERT INTO public\.posts`).
		WithArgs(int64(2), nil, "video", sqlmock.AnyArg(), sqlmock.AnyArg(), "published", nil, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectExec(`INSERT INTO public\.post_platforms .* FROM unnest\(\$2::text\[\]\)`).
		WithArgs(int64(101), sqlmock.AnyArg(), "published", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	in := imageInput("x", "facebook", "linkedin")
	in.ContentType = "video"
	res, err := e.Create(context.Background(), 2, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.PostID != 101 || res.Status != models.PostPublished {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(obs.created) != 1 || len(obs.created[0].Platforms) != 3 || obs.created[0].Tier != entitlements.TierPro {
		t.Fatalf("unexpected observer calls %+v", obs.created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_ProOverrideLimit(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 2, "pro", int64(3))
	expectCount(mock, 2, 3)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 2, imageInput("x"))
	assertKind(t, err, apperrors.KindQuotaExceeded, "Daily post limit of 3 reached for your pro plan.")
}

func TestCreate_ProScheduled(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	at := fixedNow.Add(24 * time.Hour)
	mock.ExpectBegin()
	expectLockUser(mock, 2, "pro", nil)
	expectCount(mock, 2, 0)
	mock.ExpectQuery(`INSERT INTO public\.posts`).
		WithArgs(int64(2), "hello", "text", sqlmock.AnyArg(), sqlmock.AnyArg(), "scheduled", at, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO public\.post_platforms`).
		WithArgs(int64(7), sqlmock.AnyArg(), "pending", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	caption := "hello"
	res, err := e.Create(context.Background(), 2, CreateInput{
		Caption: &caption, ContentType: "text", Platforms: []string{"linkedin"}, ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Status != models.PostScheduled {
		t.Fatalf("expected scheduled got %s", res.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UltraProSkipsQuotaCount(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 3, "ultra_pro", nil)
	mock.ExpectQuery(`INSERT INTO public\.posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(55)))
	mock.ExpectExec(`INSERT INTO public\.post_platforms`).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	in := imageInput("x", "facebook", "linkedin", "instagram", "tiktok")
	in.ContentType = "story"
	if _, err := e.Create(context.Background(), 3, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_QuotaCountFailureFailsClosed(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "pro", nil)
	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("read timeout"))
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 1, imageInput("x"))
	assertKind(t, err, apperrors.KindDependencyUnavailable, "")
}

func TestCreate_RequireConnectedPlatforms(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{RequireConnectedPlatforms: true})
	mock.ExpectBegin()
	expectLockUser(mock, 2, "pro", nil)
	expectCount(mock, 2, 0)
	mock.ExpectQuery(`SELECT platform FROM public\.connected_accounts WHERE user_id = \$1 AND is_active = TRUE`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"platform"}).AddRow("x"))
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 2, imageInput("x", "tiktok"))
	assertKind(t, err, apperrors.KindPlatformNotConnected, "TikTok")
}

func TestCreate_RequestValidation(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	past := fixedNow.Add(-time.Minute)

	tests := []struct {
		name string
		in   CreateInput
		msg  string
	}{
		{"bad content type", CreateInput{ContentType: "gif", Platforms: []string{"x"}}, "contentType must be one of"},
		{"no platforms", CreateInput{ContentType: "text", Platforms: []string{}}, "platforms must contain at least 1"},
		{"duplicate platforms", CreateInput{ContentType: "text", Platforms: []string{"x", "x"}}, "duplicates"},
		{"unknown platform", CreateInput{ContentType: "text", Platforms: []string{"myspace"}}, "must be one of"},
		{"misaligned media", CreateInput{ContentType: "image", MediaURLs: []string{"a"}, Platforms: []string{"x"}}, "same length"},
		{"past schedule", CreateInput{ContentType: "text", Platforms: []string{"x"}, ScheduledAt: &past}, "in the future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(context.Background(), 1, tt.in)
			assertKind(t, err, apperrors.KindValidation, tt.msg)
		})
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("validation failures must not touch the database: %v", err)
	}
}

func TestCancel(t *testing.T) {
	e, mock, obs := newTestEngine(t, Config{})
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, status FROM public\.posts WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(int64(2), "scheduled"))
	mock.ExpectExec(`UPDATE public\.posts SET status = 'cancelled'`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE public\.post_platforms SET status = 'cancelled', updated_at = NOW\(\) WHERE post_id = \$1 AND status = 'pending'`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := e.Cancel(context.Background(), 2, 7); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(obs.cancelled) != 1 || obs.cancelled[0] != 7 {
		t.Fatalf("expected cancel notification for post 7 got %v", obs.cancelled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancel_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		owner     int64
		status    string
		status404 bool
		msg       string
	}{
		{"other user", 99, "scheduled", true, "Post not found"},
		{"already cancelled", 2, "cancelled", false, "Only scheduled posts can be cancelled"},
		{"published", 2, "published", false, "Only scheduled posts can be cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, mock, _ := newTestEngine(t, Config{})
			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT user_id, status FROM public\.posts`).
				WithArgs(int64(7)).
				WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(tt.owner, tt.status))
			mock.ExpectRollback()

			err := e.Cancel(context.Background(), 2, 7)
			assertKind(t, err, apperrors.KindInvalidStateTransition, tt.msg)
			ae, _ := apperrors.As(err)
			if tt.status404 && ae.StatusCode != 404 {
				t.Fatalf("expected 404 got %d", ae.StatusCode)
			}
			if !tt.status404 && ae.StatusCode != 409 {
				t.Fatalf("expected 409 got %d", ae.StatusCode)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestCancel_Missing(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, status FROM public\.posts`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}))
	mock.ExpectRollback()

	err := e.Cancel(context.Background(), 2, 404)
	assertKind(t, err, apperrors.KindInvalidStateTransition, "Post not found")
}

func TestList(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	now := fixedNow
	mock.ExpectQuery(`FROM public\.posts\s+WHERE user_id = \$1 AND status = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(int64(2), "scheduled", int64(20), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "caption", "content_type", "media_urls", "media_keys", "status",
			"scheduled_at", "published_at", "failure_reason", "created_at", "updated_at",
		}).AddRow(int64(7), int64(2), "hi", "text", "{}", "{}", "scheduled", now.Add(time.Hour), nil, nil, now, now))
	mock.ExpectQuery(`FROM public\.post_platforms\s+WHERE post_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "post_id", "platform", "status", "platform_post_id", "published_at", "failure_reason", "created_at",
		}).AddRow(int64(1), int64(7), "x", "pending", nil, nil, nil, now).
			AddRow(int64(2), int64(7), "linkedin", "pending", nil, nil, nil, now))

	list, err := e.List(context.Background(), 2, ListOptions{Status: "scheduled"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || len(list[0].Platforms) != 2 || list[0].Platforms[1].Platform != entitlements.PlatformLinkedIn {
		t.Fatalf("unexpected list %+v", list)
	}
	if len(list[0].MediaURLs) != 0 || list[0].MediaURLs == nil {
		t.Fatalf("expected empty non-nil media urls got %#v", list[0].MediaURLs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_InvalidOptions(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{})
	for _, o := range []ListOptions{{Limit: 51}, {Limit: -1}, {Offset: -1}, {Status: "archived"}} {
		if _, err := e.List(context.Background(), 1, o); apperrors.KindOf(err) != apperrors.KindValidation {
			t.Fatalf("expected validation error for %+v got %v", o, err)
		}
	}
}

func TestCreate_ContentTypeDenialBeatsMissingMedia(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 1, "trial", nil)
	expectCount(mock, 1, 0)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 1, CreateInput{ContentType: "video", Platforms: []string{"x"}})
	assertKind(t, err, apperrors.KindContentTypeNotAllowed, `Content type "video"`)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_MissingMediaAfterGates(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 2, "pro", nil)
	expectCount(mock, 2, 0)
	mock.ExpectRollback()

	_, err := e.Create(context.Background(), 2, CreateInput{ContentType: "image", Platforms: []string{"x"}})
	assertKind(t, err, apperrors.KindValidation, "At least one media file")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_ContentTypeIsCaseInsensitive(t *testing.T) {
	e, mock, _ := newTestEngine(t, Config{})
	mock.ExpectBegin()
	expectLockUser(mock, 3, "ultra_pro", nil)
	mock.ExpectQuery(`INSERT INTO public\.posts`).
		WithArgs(int64(3), nil, "image", sqlmock.AnyArg(), sqlmock.AnyArg(), "published", nil, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectExec(`INSERT INTO public\.post_platforms`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := imageInput("x")
	in.ContentType = " Image "
	if _, err := e.Create(context.Background(), 3, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DatabaseDown(t *testing.T) {
	refused := errors.New("connection refused")

	t.Run("begin", func(t *testing.T) {
		e, mock, obs := newTestEngine(t, Config{})
		mock.ExpectBegin().WillReturnError(refused)

		_, err := e.Create(context.Background(), 1, imageInput("x"))
		assertKind(t, err, apperrors.KindDependencyUnavailable, "")
		if ae, _ := apperrors.As(err); ae.StatusCode != 503 || !errors.Is(err, refused) {
			t.Fatalf("expected 503 wrapping the driver error got %d %v", ae.StatusCode, err)
		}
		if len(obs.created) != 0 {
			t.Fatalf("observer must not be called")
		}
	})

	t.Run("insert", func(t *testing.T) {
		e, mock, _ := newTestEngine(t, Config{})
		mock.ExpectBegin()
		expectLockUser(mock, 2, "pro", nil)
		expectCount(mock, 2, 0)
		mock.ExpectQuery(`INSERT INTO public\.posts`).WillReturnError(refused)
		mock.ExpectRollback()

		_, err := e.Create(context.Background(), 2, imageInput("x"))
		assertKind(t, err, apperrors.KindDependencyUnavailable, "")
	})

	t.Run("commit", func(t *testing.T) {
		e, mock, obs := newTestEngine(t, Config{})
		mock.ExpectBegin()
		expectLockUser(mock, 3, "ultra_pro", nil)
		mock.ExpectQuery(`INSERT INTO public\.posts`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
		mock.ExpectExec(`INSERT INTO public\.post_platforms`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(refused)

		_, err := e.Create(context.Background(), 3, imageInput("x"))
		assertKind(t, err, apperrors.KindDependencyUnavailable, "")
		if len(obs.created) != 0 {
			t.Fatalf("observer must not be called when commit fails")
		}
	})
}

func TestCancel_DatabaseDown(t *testing.T) {
	refused := errors.New("connection refused")

	t.Run("begin", func(t *testing.T) {
		e, mock, obs := newTestEngine(t, Config{})
		mock.ExpectBegin().WillReturnError(refused)

		err := e.Cancel(context.Background(), 2, 7)
		assertKind(t, err, apperrors.KindDependencyUnavailable, "")
		if len(obs.cancelled) != 0 {
			t.Fatalf("observer must not be called")
		}
	})

	t.Run("update", func(t *testing.T) {
		e, mock, _ := newTestEngine(t, Config{})
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT user_id, status FROM public\.posts`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(int64(2), "scheduled"))
		mock.ExpectExec(`UPDATE public\.posts SET status = 'cancelled'`).WillReturnError(refused)
		mock.ExpectRollback()

		err := e.Cancel(context.Background(), 2, 7)
		assertKind(t, err, apperrors.KindDependencyUnavailable, "")
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	})
}
