package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

func TestFlash(t *testing.T) {
	ctx := context.Background()
	f := NewFlash(2)
	f.Notify(ctx, types.Notification{SessionID: "s1", Message: "a"})
	f.Notify(ctx, types.Notification{SessionID: "s1", Message: "b"})
	f.Notify(ctx, types.Notification{SessionID: "s1", Message: "c"})
	f.Notify(ctx, types.Notification{SessionID: "s2", Message: "x"})

	got := f.Drain("s1")
	if len(got) != 2 || got[0].Message != "b" || got[1].Message != "c" {
		t.Fatalf("got=%+v", got)
	}
	if got := f.Drain("s1"); len(got) != 0 || got == nil {
		t.Fatalf("got=%+v", got)
	}

	f.Forget("s2")
	if got := f.Drain("s2"); len(got) != 0 {
		t.Fatalf("got=%+v", got)
	}
	if NewFlash(0).limit != defaultFlashLimit {
		t.Fatal("expected default limit")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(log.NewWithOptions(&buf, log.Options{Formatter: log.LogfmtFormatter}))
	l.Notify(context.Background(), types.Notification{
		SessionID:  "s1",
		ProjectRef: "p1",
		Level:      types.NotificationError,
		Message:    "Failed to update settings",
		Detail:     "http 500",
	})
	out := buf.String()
	if !strings.Contains(out, "error") || !strings.Contains(out, "project_ref=p1") || !strings.Contains(out, "http 500") {
		t.Fatalf("out=%s", out)
	}

	NewLogger(nil).Notify(context.Background(), types.Notification{})
}

func TestMulti(t *testing.T) {
	a := NewFlash(5)
	b := NewFlash(5)
	Multi{a, nil, b}.Notify(context.Background(), types.Notification{SessionID: "s1", Message: "m"})
	if len(a.Drain("s1")) != 1 || len(b.Drain("s1")) != 1 {
		t.Fatal("expected fan out")
	}
}
