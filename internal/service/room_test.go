package service

import (
	"errors"
	"testing"
)

func TestValidChatName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"general", true},
		{"my room_2-beta", true},
		{"", false},
		{"<script>", false},
		{"名前", false},
	}
	for _, tt := range tests {
		if got := ValidChatName(tt.name); got != tt.want {
			t.Errorf("ValidChatName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRoomService_Create(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")

	chat, err := env.rooms.Create("general", true, false, admin)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if chat.AdminID != admin {
		t.Errorf("Create() admin = %d, want %d", chat.AdminID, admin)
	}

	// 公开聊天不允许 request-to-join
	if _, err := env.rooms.Create("bad", true, true, admin); !errors.Is(err, ErrInvalidChatFlags) {
		t.Errorf("Create(public+requestToJoin) error = %v, want ErrInvalidChatFlags", err)
	}
	// 名称唯一
	if _, err := env.rooms.Create("general", false, false, admin); !errors.Is(err, ErrChatNameTaken) {
		t.Errorf("Create(duplicate) error = %v, want ErrChatNameTaken", err)
	}
}

func TestRoomService_Join_Public(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "general", true, false, admin)

	outcome, err := env.rooms.Join(bob, chatID)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !outcome.Joined {
		t.Error("Join() public chat should join immediately")
	}
	if member, _ := env.dir.IsMember(bob, chatID); !member {
		t.Error("Join() did not persist membership")
	}

	// 重复加入
	if _, err := env.rooms.Join(bob, chatID); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("Join() again error = %v, want ErrAlreadyMember", err)
	}
	// admin 隐式为成员
	if _, err := env.rooms.Join(admin, chatID); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("Join() by admin error = %v, want ErrAlreadyMember", err)
	}
}

func TestRoomService_Join_RequestToJoin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "approvals", false, true, admin)

	outcome, err := env.rooms.Join(bob, chatID)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if outcome.Joined {
		t.Error("Join() should queue a request, not join")
	}
	if outcome.RequestID == 0 {
		t.Error("Join() returned zero request ID")
	}
	if member, _ := env.dir.IsMember(bob, chatID); member {
		t.Error("pending request must not create a membership")
	}

	// 请求排队期间重复加入
	if _, err := env.rooms.Join(bob, chatID); !errors.Is(err, ErrRequestAlreadySent) {
		t.Errorf("Join() again error = %v, want ErrRequestAlreadySent", err)
	}
}

func TestRoomService_Join_Private(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "secret", false, false, admin)

	if _, err := env.rooms.Join(bob, chatID); !errors.Is(err, ErrPrivateGroup) {
		t.Errorf("Join() error = %v, want ErrPrivateGroup", err)
	}
	if _, err := env.rooms.Join(bob, 999); !errors.Is(err, ErrChatNotFound) {
		t.Errorf("Join(unknown chat) error = %v, want ErrChatNotFound", err)
	}
}

// 邀请优先于其它判定：持有邀请的用户加入任何类型的聊天都直接成为成员，
// 且邀请被消费。
func TestRoomService_Join_ConsumesInvitation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "secret", false, false, admin)

	inv, err := env.rooms.Invite(admin, bob, chatID)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	outcome, err := env.rooms.Join(bob, chatID)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !outcome.Joined {
		t.Error("Join() with invitation should join immediately")
	}
	if _, err := env.dir.InvitationByID(inv.ID); err == nil {
		t.Error("invitation should be consumed by Join()")
	}
}

func TestRoomService_Invite(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	carol := env.mustRegister(t, "carol")
	chatID := env.mustChat(t, "secret", false, false, admin)

	if _, err := env.rooms.Invite(admin, bob, chatID); err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	tests := []struct {
		name      string
		inviterID uint
		inviteeID uint
		wantErr   error
	}{
		{"重复邀请", admin, bob, ErrInvitationAlreadySent},
		{"非成员发出邀请", carol, bob, ErrNotMember},
		{"邀请 admin", admin, admin, ErrAlreadyMember},
		{"受邀人不存在", admin, 999, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.rooms.Invite(tt.inviterID, tt.inviteeID, chatID); !errors.Is(err, tt.wantErr) {
				t.Errorf("Invite() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoomService_AcceptInvitation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	carol := env.mustRegister(t, "carol")
	chatID := env.mustChat(t, "secret", false, false, admin)

	inv, err := env.rooms.Invite(admin, bob, chatID)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	// 只有受邀人本人可以接受
	if _, err := env.rooms.AcceptInvitation(carol, inv.ID); !errors.Is(err, ErrInvitationNotFound) {
		t.Errorf("AcceptInvitation() by wrong user error = %v, want ErrInvitationNotFound", err)
	}

	chat, err := env.rooms.AcceptInvitation(bob, inv.ID)
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if chat.ID != chatID {
		t.Errorf("AcceptInvitation() chat = %d, want %d", chat.ID, chatID)
	}
	if member, _ := env.dir.IsMember(bob, chatID); !member {
		t.Error("AcceptInvitation() did not persist membership")
	}
	// 邀请已消费
	if _, err := env.rooms.AcceptInvitation(bob, inv.ID); !errors.Is(err, ErrInvitationNotFound) {
		t.Errorf("AcceptInvitation() again error = %v, want ErrInvitationNotFound", err)
	}
}

func TestRoomService_Enter(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "general", true, false, admin)

	// 未认证连接
	anon := env.hub.NewConn()
	if _, err := env.rooms.Enter(anon, chatID); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Enter() unauthenticated error = %v, want ErrNotAuthenticated", err)
	}

	c := env.connFor(t, bob, "bob")
	outcome, err := env.rooms.Enter(c, chatID)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if !outcome.Joined {
		t.Error("Enter() public chat should join")
	}
	if env.hub.RoomOf(c) != chatID {
		t.Error("Enter() did not subscribe the connection")
	}

	// 既有成员再次进入短路为已加入
	c2 := env.connFor(t, bob, "bob")
	if outcome, err = env.rooms.Enter(c2, chatID); err != nil || !outcome.Joined {
		t.Errorf("Enter() by existing member = (%+v, %v), want joined", outcome, err)
	}
}

func TestRoomService_Enter_PendingDoesNotSubscribe(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "approvals", false, true, admin)

	c := env.connFor(t, bob, "bob")
	outcome, err := env.rooms.Enter(c, chatID)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if outcome.Joined {
		t.Error("Enter() should be pending for request-to-join chat")
	}
	if env.hub.RoomOf(c) != 0 {
		t.Error("pending Enter() must not subscribe the connection")
	}
}

func TestRoomService_Leave(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	chatID := env.mustChat(t, "general", true, false, admin)

	if err := env.rooms.Leave(admin, chatID); !errors.Is(err, ErrAdminMustTransferFirst) {
		t.Errorf("Leave() by admin error = %v, want ErrAdminMustTransferFirst", err)
	}
	if err := env.rooms.Leave(bob, chatID); !errors.Is(err, ErrNotMember) {
		t.Errorf("Leave() by non-member error = %v, want ErrNotMember", err)
	}

	c := env.connFor(t, bob, "bob")
	if _, err := env.rooms.Enter(c, chatID); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	if err := env.rooms.Leave(bob, chatID); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if member, _ := env.dir.IsMember(bob, chatID); member {
		t.Error("Leave() did not remove membership")
	}
	// 在线连接被踢出房间
	if env.hub.RoomOf(c) != 0 {
		t.Error("Leave() should evict the user's connections from the room")
	}
}

func TestRoomService_Info_Visibility(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	bob := env.mustRegister(t, "bob")
	pubID := env.mustChat(t, "general", true, false, admin)
	privID := env.mustChat(t, "secret", false, false, admin)

	// 公开聊天匿名可见
	info, err := env.rooms.Info(pubID, 0)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.IsMember {
		t.Error("Info() anonymous caller should not be a member")
	}
	if info.Admin != "alice" {
		t.Errorf("Info() admin = %q, want alice", info.Admin)
	}

	// 私有聊天对外不可见
	if _, err := env.rooms.Info(privID, bob); !errors.Is(err, ErrPrivateGroup) {
		t.Errorf("Info() private chat error = %v, want ErrPrivateGroup", err)
	}
	if _, err := env.rooms.Info(privID, 0); !errors.Is(err, ErrPrivateGroup) {
		t.Errorf("Info() private chat anonymous error = %v, want ErrPrivateGroup", err)
	}

	// admin 隐式为成员
	info, err = env.rooms.Info(privID, admin)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if !info.IsMember {
		t.Error("Info() admin should be reported as member")
	}
}

func TestRoomService_Discover(t *testing.T) {
	env := newTestEnv(t)
	admin := env.mustRegister(t, "alice")
	env.mustChat(t, "go nuts", true, false, admin)
	env.mustChat(t, "gophers", true, false, admin)
	env.mustChat(t, "secret", false, false, admin)

	out, err := env.rooms.Discover("go", 30)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Discover() returned %d chats, want 2", len(out))
	}
	for _, c := range out {
		if !c.Public {
			t.Errorf("Discover() returned private chat %q", c.Name)
		}
	}
}
