package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigkaa/smarttalk/internal/domain/model"
)

func testIdentities() []*model.Identity {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []*model.Identity{
		{ID: "a", Email: "a@example.com", CreatedAt: now},
		{ID: "b", Email: "b@example.com", CreatedAt: now.Add(time.Hour)},
		{ID: "c", Email: "c@example.com", CreatedAt: now.Add(2 * time.Hour)},
	}
}

func TestAdminAggregator_ListIdentities(t *testing.T) {
	a := NewAdminAggregator(&fakeLister{identities: testIdentities()}, newFakeStore(), testLogger())
	defer a.Close()

	list, err := a.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("получено %d учётных записей", len(list))
	}
	if got := a.Snapshot().Stats.TotalIdentities; got != 3 {
		t.Errorf("TotalIdentities = %d", got)
	}
}

func TestAdminAggregator_ListError(t *testing.T) {
	a := NewAdminAggregator(&fakeLister{err: errors.New("db down")}, newFakeStore(), testLogger())
	defer a.Close()

	if _, err := a.ListIdentities(context.Background()); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if got := a.Snapshot().Stats.TotalIdentities; got != 0 {
		t.Errorf("TotalIdentities = %d", got)
	}
}

func TestAdminAggregator_SelectIdentity(t *testing.T) {
	store := newFakeStore()
	for _, text := range []string{"one", "two", "three"} {
		m := model.NewMessage("a", text, model.SenderUser, time.Now())
		if err := store.Append(context.Background(), &m); err != nil {
			t.Fatal(err)
		}
	}
	m := model.NewMessage("b", "only", model.SenderUser, time.Now())
	if err := store.Append(context.Background(), &m); err != nil {
		t.Fatal(err)
	}

	a := NewAdminAggregator(&fakeLister{identities: testIdentities()}, store, testLogger())
	defer a.Close()
	if _, err := a.ListIdentities(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.SelectIdentity("a")
	waitFor(t, "переписка a", func() bool { return a.Snapshot().Stats.MessageCount == 3 })

	a.SelectIdentity("b")
	if n := store.hub.Count("a"); n != 0 {
		t.Errorf("подписка на a не закрыта: %d", n)
	}
	waitFor(t, "переписка b", func() bool { return a.Snapshot().Stats.MessageCount == 1 })

	// Поздний снимок a не учитывается в b.
	store.emit("a", store.list("a"))
	time.Sleep(50 * time.Millisecond)

	view := a.Snapshot()
	if view.Selected != "b" {
		t.Errorf("Selected = %q", view.Selected)
	}
	if view.Stats.MessageCount != 1 || view.Transcript[0].IdentityID != "b" {
		t.Errorf("переписка b = %+v", view.Transcript)
	}
	if view.Stats.TotalIdentities != 3 {
		t.Errorf("TotalIdentities = %d", view.Stats.TotalIdentities)
	}
}

func TestAdminAggregator_Deselect(t *testing.T) {
	store := newFakeStore()
	a := NewAdminAggregator(&fakeLister{}, store, testLogger())

	a.SelectIdentity("a")
	a.SelectIdentity("")
	if n := store.hub.Count("a"); n != 0 {
		t.Errorf("подписка не закрыта: %d", n)
	}
	if view := a.Snapshot(); view.Selected != "" || view.Stats.MessageCount != 0 {
		t.Errorf("ожидалось пустое состояние, получено %+v", view)
	}

	a.SelectIdentity("b")
	a.Close()
	a.Close()
	if n := store.hub.Count("b"); n != 0 {
		t.Errorf("подписка не закрыта после Close: %d", n)
	}
}
