package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"groupchat/pkg/config"
	"groupchat/pkg/models"
	"groupchat/pkg/store"
)

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false})
	if err != nil {
		t.Fatalf("disabled start: %v", err)
	}
	cancel()
}

func TestStartRejectsBadConfig(t *testing.T) {
	_, err := Start(context.Background(), config.RetentionConfig{Enabled: true})
	if err == nil {
		t.Fatalf("expected error for missing period")
	}
	_, err = Start(context.Background(), config.RetentionConfig{
		Enabled: true,
		Period:  config.Duration(time.Hour),
		Cron:    "not a cron",
	})
	if err == nil {
		t.Fatalf("expected error for invalid cron")
	}
}

func TestRunImmediatePurgesOldMessages(t *testing.T) {
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.SaveGroup(models.Group{ID: "g1", Creator: "alice"}); err != nil {
		t.Fatalf("save group: %v", err)
	}
	old := models.Message{Group: "g1", Sender: "alice", Content: "old", Type: models.TypeText}
	if err := store.Append(&old); err != nil {
		t.Fatalf("append: %v", err)
	}

	// wait so the purge cutoff lands between the two messages
	time.Sleep(20 * time.Millisecond)
	mark := time.Now()
	time.Sleep(20 * time.Millisecond)

	fresh := models.Message{Group: "g1", Sender: "alice", Content: "fresh", Type: models.TypeText}
	if err := store.Append(&fresh); err != nil {
		t.Fatalf("append: %v", err)
	}

	SetConfig(config.RetentionConfig{
		Enabled: true,
		Period:  config.Duration(time.Since(mark)),
	})
	n, err := RunImmediate()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if _, err := store.GetMessage(old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old message should be purged, got %v", err)
	}
	if _, err := store.GetMessage(fresh.ID); err != nil {
		t.Fatalf("fresh message should survive: %v", err)
	}
}

func TestRunImmediateWithoutConfig(t *testing.T) {
	storedCfg = nil
	if _, err := RunImmediate(); err == nil {
		t.Fatalf("expected error without registered config")
	}
}
