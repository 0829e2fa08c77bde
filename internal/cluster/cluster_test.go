package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"testing"
	"time"

	"moviesims/internal/engine"
	"moviesims/pkg/tcp"
	"moviesims/pkg/types"
)

// testUsers builds a deterministic set of users with integer ratings.
func testUsers(n int) []types.UserRatings {
	users := make([]types.UserRatings, 0, n)
	for u := 0; u < n; u++ {
		var items []types.ItemRating
		for i := 0; i < 6; i++ {
			it := (u*7 + i*3) % 17
			items = append(items, types.ItemRating{ItemID: fmt.Sprintf("m%02d", it), Value: float64(1 + (u+i)%5)})
		}
		users = append(users, types.UserRatings{UserID: fmt.Sprintf("u%03d", u), Items: items})
	}
	return users
}

func startServer(t *testing.T, ctx context.Context) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(nil)
	go srv.Serve(ctx, ln)
	return srv, ln.Addr().String()
}

func startWorker(t *testing.T, ctx context.Context, addr string) *Client {
	t.Helper()
	c := NewClient(2)
	c.HeartbeatInterval = 20 * time.Millisecond
	if err := c.Dial(ctx, addr); err != nil {
		t.Fatalf("dial: %v", err)
	}
	go c.Run(ctx)
	return c
}

func TestHandshakeAssignsID(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx)
	c := startWorker(t, ctx, addr)
	if c.ID == "" || c.State() == StDisconnected {
		t.Fatalf("client id %q state %v", c.ID, c.State())
	}

	if err := srv.WaitForWorkers(ctx, 1); err != nil {
		t.Fatal(err)
	}
	snap := srv.Snapshot()
	if len(snap) != 1 || snap[0].ID != c.ID || snap[0].Concurrency != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if ids := srv.IdleWorkers(); len(ids) != 1 {
		t.Errorf("idle = %v", ids)
	}
}

func TestHandshakeRejectsNonHello(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	msg, _ := types.NewMessage(types.MsgHeartbeat, types.Heartbeat{})
	if err := tcp.WriteMessage(conn, msg); err != nil {
		t.Fatal(err)
	}
	if _, err := tcp.ReadMessage(conn); err == nil {
		t.Error("expected the server to close the connection")
	}
	if srv.WorkerCount() != 0 {
		t.Errorf("worker count = %d", srv.WorkerCount())
	}
}

func TestDispatcherMatchesLocal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx)
	startWorker(t, ctx, addr)
	startWorker(t, ctx, addr)
	if err := srv.WaitForWorkers(ctx, 2); err != nil {
		t.Fatal(err)
	}

	users := testUsers(90)
	want, err := engine.LocalExecutor{Workers: 3}.Accumulate(ctx, users)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDispatcher(ctx, srv, 5*time.Second, 7)
	got, err := d.Accumulate(ctx, users)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if !reflect.DeepEqual(got.Entries(), want.Entries()) {
		t.Error("remote accumulation differs from local")
	}
	if ids := srv.IdleWorkers(); len(ids) != 2 {
		t.Errorf("workers not released: idle = %v", ids)
	}
}

func TestDispatcherNoWorkers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, _ := startServer(t, ctx)
	d := NewDispatcher(ctx, srv, time.Second, 0)

	if _, err := d.Accumulate(ctx, testUsers(5)); !errors.Is(err, ErrNoWorkers) {
		t.Errorf("err = %v, want ErrNoWorkers", err)
	}

	d.LocalFallback = true
	got, err := d.Accumulate(ctx, testUsers(5))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Entries(), engine.AccumulateBlock(testUsers(5)).Entries()) {
		t.Error("fallback result differs")
	}
}

func TestDispatcherSilentWorkerFallsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx)

	// completes the handshake and then never answers
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	hello, _ := types.NewMessage(types.MsgHello, types.Hello{Concurrency: 1})
	if err := tcp.WriteMessage(conn, hello); err != nil {
		t.Fatal(err)
	}
	if ack, err := tcp.ReadMessage(conn); err != nil || ack.Type != types.MsgAck {
		t.Fatalf("ack = %+v, err = %v", ack, err)
	}
	if err := srv.WaitForWorkers(ctx, 1); err != nil {
		t.Fatal(err)
	}

	users := testUsers(30)
	d := NewDispatcher(ctx, srv, 100*time.Millisecond, 10)
	got, err := d.Accumulate(ctx, users)
	if err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if !reflect.DeepEqual(got.Entries(), engine.AccumulateBlock(users).Entries()) {
		t.Error("fallback accumulation differs from single pass")
	}
}

func TestServerDropsDisconnectedWorker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, addr := startServer(t, ctx)
	wctx, wcancel := context.WithCancel(ctx)
	c := startWorker(t, wctx, addr)
	if err := srv.WaitForWorkers(ctx, 1); err != nil {
		t.Fatal(err)
	}
	w, ok := srv.Worker(c.ID)
	if !ok {
		t.Fatal("worker not registered")
	}

	wcancel()
	select {
	case <-w.Done():
	case <-ctx.Done():
		t.Fatal("server never noticed the disconnect")
	}
	if err := srv.Send(c.ID, types.Message{Type: types.MsgTask}); !errors.Is(err, ErrWorkerGone) {
		t.Errorf("Send err = %v, want ErrWorkerGone", err)
	}
}
