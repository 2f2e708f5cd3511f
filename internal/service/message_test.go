package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Matrx007/rrchat/internal/hub"
)

func TestMessageService_Post_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	c := env.hub.NewConn()

	if _, err := env.msgs.Post(c, "hello", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Post() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestMessageService_Post_NotInRoom(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	chatID := env.mustChat(t, "general", true, false, admin)
	c := env.connFor(t, admin, "alice")

	if _, err := env.msgs.Post(c, "hello", ""); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("Post() error = %v, want ErrNotInRoom", err)
	}
	// 被拒绝的消息不落库
	hist, err := env.msgs.History(chatID, 0, 50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("History() has %d messages after rejected Post, want 0", len(hist))
	}
}

func TestMessageService_Post_EscapesHTML(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	chatID := env.mustChat(t, "general", true, false, admin)
	c := env.connFor(t, admin, "alice")
	if _, err := env.rooms.Enter(c, chatID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}

	dto, err := env.msgs.Post(c, `<script>alert("hi")</script>`, "")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	want := "&lt;script&gt;alert(&#34;hi&#34;)&lt;/script&gt;"
	if dto.Content != want {
		t.Errorf("Post() content = %q, want %q", dto.Content, want)
	}
	if dto.ContentType != "text" {
		t.Errorf("Post() content type = %q, want text", dto.ContentType)
	}

	// 历史接口返回的就是存储形态，不再二次转义
	hist, err := env.msgs.History(chatID, 0, 50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != 1 || hist[0].Content != want {
		t.Errorf("History() = %+v, want one message with escaped content", hist)
	}
	if hist[0].Sender != "alice" {
		t.Errorf("History() sender = %q, want alice", hist[0].Sender)
	}
}

func TestMessageService_Post_BroadcastsToRoom(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "general", true, false, admin)
	otherID := env.mustChat(t, "other", true, false, admin)

	sender := env.connFor(t, admin, "alice")
	peer := env.connFor(t, bob, "bob")
	outsider := env.connFor(t, bob, "bob")
	if _, err := env.rooms.Enter(sender, chatID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if _, err := env.rooms.Enter(peer, chatID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if _, err := env.rooms.Enter(outsider, otherID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}

	dto, err := env.msgs.Post(sender, "hello", "")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	for name, c := range map[string]*hub.Conn{"sender": sender, "peer": peer} {
		frames := drain(c)
		if len(frames) != 1 {
			t.Fatalf("%s received %d frames, want 1", name, len(frames))
		}
		var got MessageDTO
		if err := json.Unmarshal(frames[0], &got); err != nil {
			t.Fatalf("%s frame is not valid JSON: %v", name, err)
		}
		if got.Type != "message" || got.ID != dto.ID || got.Content != "hello" {
			t.Errorf("%s frame = %+v, want broadcast of posted message", name, got)
		}
	}
	if frames := drain(outsider); len(frames) != 0 {
		t.Errorf("outsider received %d frames, want 0", len(frames))
	}
}

// 房间排序锁保证：并发发送时所有订阅者观察到同一份全序，
// 且与落库的 ID 顺序一致。
func TestMessageService_Post_TotalOrder(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	chatID := env.mustChat(t, "general", true, false, admin)

	const numPosters = 4
	const perPoster = 10

	observers := make([]*hub.Conn, 2)
	for i := range observers {
		id := env.mustRegister(t, fmt.Sprintf("observer%d", i))
		c := env.connFor(t, id, "observer")
		if _, err := env.rooms.Enter(c, chatID); err != nil {
			t.Fatalf("Enter() error = %v", err)
		}
		observers[i] = c
	}

	var wg sync.WaitGroup
	for p := 0; p < numPosters; p++ {
		id := env.mustRegister(t, fmt.Sprintf("poster%d", p))
		c := env.connFor(t, id, "poster")
		if _, err := env.rooms.Enter(c, chatID); err != nil {
			t.Fatalf("Enter() error = %v", err)
		}
		wg.Add(1)
		go func(c *hub.Conn, p int) {
			defer wg.Done()
			for n := 0; n < perPoster; n++ {
				if _, err := env.msgs.Post(c, fmt.Sprintf("p%d-%d", p, n), ""); err != nil {
					t.Errorf("Post() error = %v", err)
				}
			}
		}(c, p)
	}
	wg.Wait()

	sequences := make([][]uint, len(observers))
	for i, o := range observers {
		for _, frame := range drain(o) {
			var dto MessageDTO
			if err := json.Unmarshal(frame, &dto); err != nil {
				t.Fatalf("frame is not valid JSON: %v", err)
			}
			sequences[i] = append(sequences[i], dto.ID)
		}
		if len(sequences[i]) != numPosters*perPoster {
			t.Fatalf("observer %d saw %d messages, want %d", i, len(sequences[i]), numPosters*perPoster)
		}
	}

	for i := range sequences[0] {
		if sequences[0][i] != sequences[1][i] {
			t.Fatalf("observers disagree at position %d: %d vs %d", i, sequences[0][i], sequences[1][i])
		}
		if i > 0 && sequences[0][i] <= sequences[0][i-1] {
			t.Fatalf("broadcast order not increasing at position %d: %d after %d", i, sequences[0][i], sequences[0][i-1])
		}
	}

	// 历史接口与广播观察到的顺序一致
	hist, err := env.msgs.History(chatID, 0, numPosters*perPoster)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(hist) != len(sequences[0]) {
		t.Fatalf("History() has %d messages, want %d", len(hist), len(sequences[0]))
	}
	for i, m := range hist {
		if m.ID != sequences[0][i] {
			t.Fatalf("History() order differs from broadcast at position %d", i)
		}
	}
}

func TestMessageService_History_Pagination(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	chatID := env.mustChat(t, "general", true, false, admin)
	c := env.connFor(t, admin, "alice")
	if _, err := env.rooms.Enter(c, chatID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}

	ids := make([]uint, 0, 5)
	for i := 0; i < 5; i++ {
		dto, err := env.msgs.Post(c, fmt.Sprintf("msg %d", i), "")
		if err != nil {
			t.Fatalf("Post() error = %v", err)
		}
		ids = append(ids, dto.ID)
	}

	// 最新一页，升序返回
	page, err := env.msgs.History(chatID, 0, 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("History() page has %d messages, want 3", len(page))
	}
	for i, want := range ids[2:] {
		if page[i].ID != want {
			t.Errorf("History() page[%d].ID = %d, want %d", i, page[i].ID, want)
		}
	}

	// 继续向前翻页
	page, err = env.msgs.History(chatID, page[0].ID, 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("History() earlier page has %d messages, want 2", len(page))
	}
	for i, want := range ids[:2] {
		if page[i].ID != want {
			t.Errorf("History() page[%d].ID = %d, want %d", i, page[i].ID, want)
		}
	}
}
