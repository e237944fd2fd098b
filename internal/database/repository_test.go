package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sitesync/porter/internal/database"
	"github.com/sitesync/porter/internal/models"
)

func newMockRepo(t *testing.T) (*database.Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return database.NewRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestRepository_GetRecordByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	recordColumns := []string{
		"id", "title", "body", "content_type", "status", "excerpt",
		"comment_status", "ping_status", "created_at", "updated_at",
	}

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "record found",
			setupMock: func() {
				rows := sqlmock.NewRows(recordColumns).
					AddRow(int64(7), "Hello", "<p>hi</p>", "post", "publish", "",
						"open", "open", time.Now(), time.Now())
				mock.ExpectQuery("SELECT (.+) FROM records").
					WithArgs(int64(7)).
					WillReturnRows(rows)
			},
		},
		{
			name: "record missing returns ErrNotFound",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM records").
					WithArgs(int64(7)).
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: models.ErrNotFound,
		},
		{
			name: "database error propagates",
			setupMock: func() {
				mock.ExpectQuery("SELECT (.+) FROM records").
					WithArgs(int64(7)).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			record, err := repo.GetRecordByID(ctx, 7)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("GetRecordByID() error = %v, want %v", err, tc.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("GetRecordByID() error = %v", err)
				}
				if record.Title != "Hello" || record.ContentType != "post" {
					t.Errorf("GetRecordByID() = %+v", record)
				}
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestRepository_CreateRecord(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO records").
		WithArgs("Hello", "<p>hi</p>", "post", "draft", "", "open", "open",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	record := &models.Record{
		Title:         "Hello",
		Body:          "<p>hi</p>",
		ContentType:   "post",
		Status:        "draft",
		CommentStatus: "open",
		PingStatus:    "open",
	}

	id, err := repo.CreateRecord(ctx, record)
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if id != 42 || record.ID != 42 {
		t.Errorf("CreateRecord() id = %d, record.ID = %d, want 42", id, record.ID)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRepository_Terms(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	t.Run("get term by slug", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "taxonomy", "name", "slug"}).
			AddRow(int64(3), "category", "News", "news")
		mock.ExpectQuery("SELECT (.+) FROM terms").
			WithArgs("category", "news").
			WillReturnRows(rows)

		term, err := repo.GetTermBySlug(ctx, "category", "news")
		if err != nil {
			t.Fatalf("GetTermBySlug() error = %v", err)
		}
		if term.ID != 3 || term.Name != "News" {
			t.Errorf("GetTermBySlug() = %+v", term)
		}
	})

	t.Run("missing term returns ErrNotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM terms").
			WithArgs("category", "gone").
			WillReturnError(sql.ErrNoRows)

		if _, err := repo.GetTermBySlug(ctx, "category", "gone"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("GetTermBySlug() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("create term", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO terms (.+) ON CONFLICT").
			WithArgs("category", "News", "news").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

		term, err := repo.CreateTerm(ctx, "category", "News", "news")
		if err != nil {
			t.Fatalf("CreateTerm() error = %v", err)
		}
		if term.ID != 9 {
			t.Errorf("CreateTerm() ID = %d, want 9", term.ID)
		}
	})

	t.Run("lost insert race falls back to existing term", func(t *testing.T) {
		// ON CONFLICT DO NOTHING inserts no row, so RETURNING yields none;
		// the transaction stays usable and the winner's row is selected
		mock.ExpectQuery("INSERT INTO terms (.+) ON CONFLICT").
			WithArgs("category", "News", "news").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("SELECT (.+) FROM terms").
			WithArgs("category", "news").
			WillReturnRows(sqlmock.NewRows([]string{"id", "taxonomy", "name", "slug"}).
				AddRow(int64(9), "category", "News", "news"))

		term, err := repo.CreateTerm(ctx, "category", "News", "news")
		if err != nil {
			t.Fatalf("CreateTerm() error = %v", err)
		}
		if term.ID != 9 {
			t.Errorf("CreateTerm() ID = %d, want the racing winner's 9", term.ID)
		}
	})

	t.Run("associate terms", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO record_terms").
			WithArgs(int64(42), pq.Array([]int64{3, 9})).
			WillReturnResult(sqlmock.NewResult(0, 2))

		if err := repo.AssociateTerms(ctx, 42, []int64{3, 9}); err != nil {
			t.Errorf("AssociateTerms() error = %v", err)
		}
	})

	t.Run("associate no terms is a no-op", func(t *testing.T) {
		if err := repo.AssociateTerms(ctx, 42, nil); err != nil {
			t.Errorf("AssociateTerms() error = %v", err)
		}
	})

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRepository_Meta(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	t.Run("set meta", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO record_meta").
			WithArgs(int64(42), "subtitle", []byte(`"below the fold"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.SetMeta(ctx, 42, "subtitle", "below the fold"); err != nil {
			t.Errorf("SetMeta() error = %v", err)
		}
	})

	t.Run("get meta decodes JSON values", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"meta_key", "meta_value"}).
			AddRow("subtitle", []byte(`"below the fold"`)).
			AddRow("scores", []byte(`[1,2,3]`))
		mock.ExpectQuery("SELECT meta_key, meta_value").
			WithArgs(int64(42)).
			WillReturnRows(rows)

		meta, err := repo.GetMetaForRecord(ctx, 42)
		if err != nil {
			t.Fatalf("GetMetaForRecord() error = %v", err)
		}
		if meta["subtitle"] != "below the fold" {
			t.Errorf("meta[subtitle] = %v", meta["subtitle"])
		}
		if scores, ok := meta["scores"].([]any); !ok || len(scores) != 3 {
			t.Errorf("meta[scores] = %v", meta["scores"])
		}
	})

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRepository_Attachments(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	t.Run("create attachment", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO attachments").
			WithArgs("a.png", "/var/lib/porter/uploads/a.png",
				"https://dest.example/wp-content/uploads/a.png", "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

		att := &models.Attachment{
			FileName: "a.png",
			FilePath: "/var/lib/porter/uploads/a.png",
			URL:      "https://dest.example/wp-content/uploads/a.png",
		}
		id, err := repo.CreateAttachment(ctx, att)
		if err != nil {
			t.Fatalf("CreateAttachment() error = %v", err)
		}
		if id != 11 {
			t.Errorf("CreateAttachment() id = %d, want 11", id)
		}
	})

	t.Run("get attachment url", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "file_name", "file_path", "url", "title", "created_at"}).
			AddRow(int64(11), "a.png", "/uploads/a.png", "https://dest.example/uploads/a.png", "", time.Now())
		mock.ExpectQuery("SELECT (.+) FROM attachments").
			WithArgs(int64(11)).
			WillReturnRows(rows)

		url, err := repo.GetAttachmentURL(ctx, 11)
		if err != nil {
			t.Fatalf("GetAttachmentURL() error = %v", err)
		}
		if url != "https://dest.example/uploads/a.png" {
			t.Errorf("GetAttachmentURL() = %q", url)
		}
	})

	t.Run("set featured image writes thumbnail meta", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO record_meta").
			WithArgs(int64(42), "_thumbnail_id", []byte(`11`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.SetFeaturedImage(ctx, 42, 11); err != nil {
			t.Errorf("SetFeaturedImage() error = %v", err)
		}
	})

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestRepository_WithinTx(t *testing.T) {
	t.Run("commit on success", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO record_meta").
			WithArgs(int64(1), "k", []byte(`"v"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.WithinTx(context.Background(), func(tx *database.Repository) error {
			return tx.SetMeta(context.Background(), 1, "k", "v")
		})
		if err != nil {
			t.Errorf("WithinTx() error = %v", err)
		}

		if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
			t.Errorf("unfulfilled expectations: %v", expectErr)
		}
	})

	t.Run("rollback on error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := repo.WithinTx(context.Background(), func(*database.Repository) error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("WithinTx() error = %v, want boom", err)
		}

		if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
			t.Errorf("unfulfilled expectations: %v", expectErr)
		}
	})

	t.Run("nested transactions rejected", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := repo.WithinTx(context.Background(), func(tx *database.Repository) error {
			return tx.WithinTx(context.Background(), func(*database.Repository) error {
				return nil
			})
		})
		if err == nil {
			t.Error("WithinTx() nested error = nil, want error")
		}
	})
}
