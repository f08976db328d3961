package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExecer struct {
	sql  string
	args []any
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.CommandTag{}, nil
}

func TestInsertWritesThroughCallerExecutor(t *testing.T) {
	exec := &fakeExecer{}
	repo := NewRepository()

	err := repo.Insert(context.Background(), exec, Notification{
		AppointmentID: "appt-1",
		PatientID:     "patient-1",
		Channel:       "email",
		Recipient:     "alex@example.com",
		Payload:       map[string]any{"kind": "confirmed"},
		Status:        "sent",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if !strings.Contains(exec.sql, "INSERT INTO notifications") {
		t.Fatalf("insert did not go through the caller's executor: %q", exec.sql)
	}
	if len(exec.args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(exec.args))
	}
	if exec.args[0] != "appt-1" || exec.args[5] != "sent" {
		t.Fatalf("unexpected args: %v", exec.args)
	}

	var payload map[string]any
	raw, ok := exec.args[4].([]byte)
	if !ok {
		t.Fatalf("payload arg is not bytes: %T", exec.args[4])
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload["kind"] != "confirmed" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}
