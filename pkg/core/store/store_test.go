package store

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

var payload = []byte(`{"page":1,"tables":[]}`)

func TestFileAudit_PutOnce(t *testing.T) {
	s, err := NewFileAudit(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAudit: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "job-1", 1, payload); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := s.Put(ctx, "job-1", 1, []byte(`{"page":1,"tables":["changed"]}`)); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("second Put: expected ErrAlreadyWritten, got %v", err)
	}
	if err := s.Put(ctx, "job-1", 2, payload); err != nil {
		t.Fatalf("other page: %v", err)
	}

	b, err := os.ReadFile(s.Path("job-1", 1))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != string(payload) {
		t.Errorf("payload overwritten: %s", b)
	}
}

func TestFileAudit_Rejects(t *testing.T) {
	s, err := NewFileAudit(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileAudit: %v", err)
	}
	tests := []struct {
		name  string
		job   string
		page  int
		value []byte
	}{
		{"empty job", "", 1, payload},
		{"page zero", "job", 0, payload},
		{"invalid json", "job", 1, []byte(`{`)},
		{"path traversal", "../escape", 1, payload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Put(context.Background(), tt.job, tt.page, tt.value); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRedisAudit_PutOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisAudit(client, "", time.Hour)
	ctx := context.Background()

	if err := s.Put(ctx, "job-1", 3, payload); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := s.Put(ctx, "job-1", 3, payload); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("second Put: expected ErrAlreadyWritten, got %v", err)
	}

	got, err := mr.Get("extractor:audit:job-1:3")
	if err != nil {
		t.Fatalf("key missing: %v", err)
	}
	if got != string(payload) {
		t.Errorf("stored %q", got)
	}
	if ttl := mr.TTL("extractor:audit:job-1:3"); ttl != time.Hour {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestPostgresAudit_Put(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	insert := regexp.QuoteMeta("INSERT INTO extraction_audit (job_id, page, payload)")
	mock.ExpectExec(insert).WithArgs("job-1", 1, payload).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(insert).WithArgs("job-1", 1, payload).WillReturnResult(pgxmock.NewResult("INSERT", 0))

	s := NewPostgresAudit(mock)
	ctx := context.Background()
	if err := s.Put(ctx, "job-1", 1, payload); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := s.Put(ctx, "job-1", 1, payload); !errors.Is(err, ErrAlreadyWritten) {
		t.Fatalf("second Put: expected ErrAlreadyWritten, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAudit_EnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS extraction_audit").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	if err := NewPostgresAudit(mock).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closer, err := Open(ctx, Options{Backend: BackendFile, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	defer closer.Close()
	if _, ok := s.(*FileAudit); !ok {
		t.Errorf("expected *FileAudit, got %T", s)
	}

	mr := miniredis.RunT(t)
	s, closer, err = Open(ctx, Options{Backend: BackendRedis, RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("Open redis: %v", err)
	}
	defer closer.Close()
	if err := s.Put(ctx, "j", 1, payload); err != nil {
		t.Fatalf("redis Put: %v", err)
	}

	if _, _, err := Open(ctx, Options{Backend: "s3"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
