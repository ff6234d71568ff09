//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/infra/security"
)

func seedUser(t *testing.T, u model.User) {
	t.Helper()
	if err := NewUserRepo(testPool).Save(context.Background(), nil, &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestConversationRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	repo := NewConversationRepo(testPool, nil, nil)
	ctx := context.Background()

	t.Run("save and find by subject with history", func(t *testing.T) {
		cleanup(t)
		seedUser(t, model.User{ID: "u1", Credits: 5, AllowMessageStorage: true})

		conv := &model.Conversation{
			ID: "c1", UserID: "u1",
			ContentType: model.ContentBirthChart, ContentID: "chart-1",
			Period: model.PeriodWeekly,
		}
		if err := repo.Save(ctx, nil, conv); err != nil {
			t.Fatalf("save: %v", err)
		}

		base := time.Now().Add(-time.Minute)
		turns := []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "what about my sun?", Timestamp: base},
			{ID: "m2", Role: model.RoleAssistant, Content: "it shines", Timestamp: base.Add(time.Second),
				SelectedElements: []model.ContextElement{{Key: "Pp-SuAr01", Label: "Sun in Aries"}}},
		}
		for i := range turns {
			if err := repo.SaveMessage(ctx, nil, "c1", &turns[i]); err != nil {
				t.Fatalf("save message %d: %v", i, err)
			}
		}

		found, err := repo.FindBySubject(ctx, nil, "u1", model.ContentBirthChart, "chart-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.ID != "c1" || found.Period != model.PeriodWeekly {
			t.Errorf("found = %+v", found)
		}
		if len(found.Messages) != 2 {
			t.Fatalf("messages = %d", len(found.Messages))
		}
		if found.Messages[0].ID != "m1" || found.Messages[1].ID != "m2" {
			t.Errorf("order = %s, %s", found.Messages[0].ID, found.Messages[1].ID)
		}
		if len(found.Messages[1].SelectedElements) != 1 {
			t.Errorf("selection snapshot lost: %+v", found.Messages[1])
		}
	})

	t.Run("history limit keeps most recent turns oldest first", func(t *testing.T) {
		cleanup(t)
		seedUser(t, model.User{ID: "u1", AllowMessageStorage: true})
		conv := &model.Conversation{ID: "c1", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-1", Period: model.PeriodDaily}
		if err := repo.Save(ctx, nil, conv); err != nil {
			t.Fatal(err)
		}
		base := time.Now().Add(-time.Minute)
		for i, id := range []string{"m1", "m2", "m3", "m4"} {
			m := model.Message{ID: id, Role: model.RoleUser, Content: id, Timestamp: base.Add(time.Duration(i) * time.Second)}
			if err := repo.SaveMessage(ctx, nil, "c1", &m); err != nil {
				t.Fatal(err)
			}
		}

		msgs, err := repo.History(ctx, nil, model.ContentBirthChart, "chart-1", 2)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(msgs) != 2 || msgs[0].ID != "m3" || msgs[1].ID != "m4" {
			t.Errorf("msgs = %+v", msgs)
		}
	})

	t.Run("delete message rolls back an optimistic turn", func(t *testing.T) {
		cleanup(t)
		seedUser(t, model.User{ID: "u1", AllowMessageStorage: true})
		conv := &model.Conversation{ID: "c1", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-1", Period: model.PeriodDaily}
		if err := repo.Save(ctx, nil, conv); err != nil {
			t.Fatal(err)
		}
		m := model.Message{ID: "m1", Role: model.RoleUser, Content: "doomed", Timestamp: time.Now()}
		if err := repo.SaveMessage(ctx, nil, "c1", &m); err != nil {
			t.Fatal(err)
		}
		if err := repo.DeleteMessage(ctx, nil, "c1", "m1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		msgs, err := repo.History(ctx, nil, model.ContentBirthChart, "chart-1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 0 {
			t.Errorf("message survived: %+v", msgs)
		}
	})

	t.Run("storage opt-out drops messages silently", func(t *testing.T) {
		cleanup(t)
		seedUser(t, model.User{ID: "u1", AllowMessageStorage: false})
		conv := &model.Conversation{ID: "c1", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-1", Period: model.PeriodDaily}
		if err := repo.Save(ctx, nil, conv); err != nil {
			t.Fatal(err)
		}
		m := model.Message{ID: "m1", Role: model.RoleUser, Content: "private", Timestamp: time.Now()}
		if err := repo.SaveMessage(ctx, nil, "c1", &m); err != nil {
			t.Fatalf("opt-out save must not error: %v", err)
		}
		msgs, _ := repo.History(ctx, nil, model.ContentBirthChart, "chart-1", 0)
		if len(msgs) != 0 {
			t.Errorf("opted-out message persisted: %+v", msgs)
		}
	})

	t.Run("encryption at rest round trips", func(t *testing.T) {
		cleanup(t)
		enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
		if err != nil {
			t.Fatal(err)
		}
		encRepo := NewConversationRepo(testPool, nil, enc)
		seedUser(t, model.User{ID: "u1", AllowMessageStorage: true, DataEncrypted: true})
		conv := &model.Conversation{ID: "c1", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-1", Period: model.PeriodDaily}
		if err := encRepo.Save(ctx, nil, conv); err != nil {
			t.Fatal(err)
		}
		m := model.Message{ID: "m1", Role: model.RoleUser, Content: "my secret question", Timestamp: time.Now()}
		if err := encRepo.SaveMessage(ctx, nil, "c1", &m); err != nil {
			t.Fatal(err)
		}

		var stored string
		if err := testPool.QueryRow(ctx, `SELECT content FROM messages WHERE id = 'm1';`).Scan(&stored); err != nil {
			t.Fatal(err)
		}
		if stored == "my secret question" {
			t.Fatal("content stored in the clear")
		}

		msgs, err := encRepo.History(ctx, nil, model.ContentBirthChart, "chart-1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 1 || msgs[0].Content != "my secret question" {
			t.Errorf("decrypted history = %+v", msgs)
		}
	})

	t.Run("unknown subject", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindBySubject(ctx, nil, "u1", model.ContentBirthChart, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cleanup removes stale conversations", func(t *testing.T) {
		cleanup(t)
		seedUser(t, model.User{ID: "u1", AllowMessageStorage: true})
		old := time.Now().AddDate(0, 0, -60)
		conv := &model.Conversation{ID: "c-old", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-1", Period: model.PeriodDaily,
			CreatedAt: old, UpdatedAt: old}
		if err := repo.Save(ctx, nil, conv); err != nil {
			t.Fatal(err)
		}
		fresh := &model.Conversation{ID: "c-new", UserID: "u1", ContentType: model.ContentBirthChart, ContentID: "chart-2", Period: model.PeriodDaily}
		if err := repo.Save(ctx, nil, fresh); err != nil {
			t.Fatal(err)
		}

		n, err := repo.CleanupOld(ctx, 30)
		if err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		if n != 1 {
			t.Errorf("removed = %d, want 1", n)
		}
		if _, err := repo.FindBySubject(ctx, nil, "u1", model.ContentBirthChart, "chart-2"); err != nil {
			t.Errorf("fresh conversation gone: %v", err)
		}
	})
}
