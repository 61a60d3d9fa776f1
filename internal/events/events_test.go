package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), Event{Type: FileUploaded}); err != nil {
		t.Fatalf("NopPublisher.Publish: %v", err)
	}
	p.Close()
}

func TestEvent_JSON(t *testing.T) {
	e := Event{
		Type:    FileDeleted,
		FileID:  "f-1",
		OwnerID: "alice",
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"type":"file.deleted"`, `"fileId":"f-1"`, `"ownerId":"alice"`, `"time":"2024-01-02T03:04:05Z"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON %s не содержит %s", got, want)
		}
	}
	if strings.Contains(got, "storedName") {
		t.Errorf("пустой storedName должен опускаться: %s", got)
	}
}

func TestNSQPublisher_Unreachable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p, err := NewNSQPublisher("127.0.0.1:1", "sheet-events", logger)
	if err != nil {
		t.Fatalf("NewNSQPublisher: %v", err)
	}
	defer p.Close()

	if err := p.Publish(context.Background(), Event{Type: FileUploaded, FileID: "f-1"}); err == nil {
		t.Error("ожидалась ошибка публикации в недоступный nsqd")
	}
}

func TestNSQPublisher_CanceledContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	p, err := NewNSQPublisher("127.0.0.1:1", "sheet-events", logger)
	if err != nil {
		t.Fatalf("NewNSQPublisher: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, Event{Type: FileUploaded}); err != context.Canceled {
		t.Errorf("ожидалась context.Canceled, получено %v", err)
	}
}

func TestNSQLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := &nsqLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	_ = l.Output(2, "ERR    1 (127.0.0.1:4150) error connecting to nsqd")
	_ = l.Output(2, "WRN    1 (127.0.0.1:4150) stopping")
	_ = l.Output(2, "INF    1 (127.0.0.1:4150) connecting")

	out := buf.String()
	for _, want := range []string{"level=ERROR", "level=WARN", "level=DEBUG", "error connecting to nsqd"} {
		if !strings.Contains(out, want) {
			t.Errorf("вывод не содержит %q:\n%s", want, out)
		}
	}
}
