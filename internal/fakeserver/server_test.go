package fakeserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/chatsync/internal/fakeserver"
	"github.com/omochice/chatsync/pkg/protocol"
)

func TestServer_ReceiveAndPush(t *testing.T) {
	srv := fakeserver.New(protocol.JSON)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	conn, _, _, err := gobwas.Dial(context.Background(), srv.URL())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	f, _ := protocol.NewFrame(protocol.CommandJoinRoom, "c1")
	data, _ := protocol.JSON.Encode(f)
	if err := wsutil.WriteClientMessage(conn, gobwas.OpText, data); err != nil {
		t.Fatalf("write error = %v", err)
	}

	select {
	case got := <-srv.Received():
		if got.Event != protocol.CommandJoinRoom {
			t.Errorf("received %q, want %q", got.Event, protocol.CommandJoinRoom)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}

	if err := srv.Push(protocol.EventPresence, protocol.Presence{UserID: "u1", Status: protocol.StatusOnline}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	out, _, err := wsutil.ReadServerData(conn)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	pushed, err := protocol.JSON.Decode(out)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if pushed.Event != protocol.EventPresence {
		t.Errorf("pushed %q, want %q", pushed.Event, protocol.EventPresence)
	}

	if srv.ConnCount() != 1 || srv.Accepted() != 1 {
		t.Errorf("ConnCount() = %d, Accepted() = %d, want 1, 1", srv.ConnCount(), srv.Accepted())
	}
}

func TestServer_RejectsBadToken(t *testing.T) {
	srv := fakeserver.New(protocol.JSON, fakeserver.WithToken("secret"))
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	dialer := gobwas.Dialer{Header: gobwas.HandshakeHeaderHTTP(http.Header{"Authorization": {"Bearer wrong"}})}
	if _, _, _, err := dialer.Dial(context.Background(), srv.URL()); err == nil {
		t.Error("expected handshake to fail with wrong token")
	}
}

func TestServer_Refuse(t *testing.T) {
	srv := fakeserver.New(protocol.JSON)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	srv.Refuse(true)
	if _, _, _, err := gobwas.Dial(context.Background(), srv.URL()); err == nil {
		t.Error("expected handshake to fail while refusing")
	}
	srv.Refuse(false)
	conn, _, _, err := gobwas.Dial(context.Background(), srv.URL())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.Close()
}
