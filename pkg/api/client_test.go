package api

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

func TestConnectedCallSendsOnceSynchronously(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	call, err := client.Submit(models.MethodVersion, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	reqs := conn.requests(t)
	if len(reqs) != 1 {
		t.Fatalf("sent %d frames, want 1", len(reqs))
	}
	if reqs[0].Method != models.MethodVersion || reqs[0].ID != call.ID {
		t.Errorf("sent %+v, want method version id %s", reqs[0], call.ID)
	}
	if client.PendingCount() != 1 || client.QueuedCount() != 0 {
		t.Errorf("pending/queued = %d/%d, want 1/0", client.PendingCount(), client.QueuedCount())
	}

	second, _ := client.Submit(models.MethodVersion, nil)
	if second.ID == call.ID {
		t.Error("two calls share an id")
	}
}

func TestTypedCallDecodesResult(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	done := make(chan struct{})
	var reply Reply[models.VersionResponse]
	var err error
	go func() {
		defer close(done)
		reply, err = client.Version(context.Background())
	}()

	eventually(t, func() bool { return len(conn.requests(t)) == 1 }, "version request never sent")
	conn.respond(t, conn.requests(t)[0].ID, models.VersionResponse{Version: "2.4.0", Platform: "mister"})
	<-done

	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if reply.Cancelled {
		t.Fatal("reply unexpectedly cancelled")
	}
	if reply.Value.Version != "2.4.0" || reply.Value.Platform != "mister" {
		t.Errorf("Value = %+v", reply.Value)
	}
}

func TestQueuedCallsFlushInSubmissionOrder(t *testing.T) {
	conn := newFakeConn(false)
	client := testClient(conn)
	defer client.Close()

	methods := []string{models.MethodRun, models.MethodStop, models.MethodReaders}
	calls := make([]*protocol.Call, len(methods))
	for i, m := range methods {
		call, err := client.Submit(m, nil)
		if err != nil {
			t.Fatalf("Submit(%s) error = %v", m, err)
		}
		calls[i] = call
	}

	if got := conn.requests(t); len(got) != 0 {
		t.Fatalf("sent %d frames while disconnected", len(got))
	}
	if client.QueuedCount() != 3 {
		t.Fatalf("QueuedCount() = %d, want 3", client.QueuedCount())
	}
	for _, call := range calls {
		if call.Settled() {
			t.Fatalf("queued call %s settled before flush", call.Method)
		}
	}

	conn.open()

	if got := conn.methods(t); !reflect.DeepEqual(got, methods) {
		t.Fatalf("sent order = %v, want %v", got, methods)
	}
	if client.QueuedCount() != 0 || client.PendingCount() != 3 {
		t.Errorf("queued/pending = %d/%d, want 0/3", client.QueuedCount(), client.PendingCount())
	}

	for _, req := range conn.requests(t) {
		conn.respond(t, req.ID, nil)
	}
	for _, call := range calls {
		select {
		case r := <-call.Done():
			if r.Status != models.StatusOK {
				t.Errorf("%s Status = %v, want ok", call.Method, r.Status)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s never settled", call.Method)
		}
	}
}

func TestSubmitWhileQueueNonEmptyKeepsOrder(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	boom := errors.New("write failed")
	conn.failWith(func(env *models.Envelope) error {
		if env.Method == models.MethodStop {
			return boom
		}
		return nil
	})

	conn.drop()
	_, _ = client.Submit(models.MethodRun, nil)
	_, _ = client.Submit(models.MethodStop, nil)
	_, _ = client.Submit(models.MethodTokens, nil)

	conn.open()
	if got := conn.methods(t); !reflect.DeepEqual(got, []string{models.MethodRun}) {
		t.Fatalf("sent = %v, want [run]", got)
	}
	if client.QueuedCount() != 1 {
		t.Fatalf("QueuedCount() = %d, want 1", client.QueuedCount())
	}

	conn.failWith(nil)
	if _, err := client.Submit(models.MethodMedia, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	want := []string{models.MethodRun, models.MethodTokens, models.MethodMedia}
	if got := conn.methods(t); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
}

func TestFlushFailureRejectsOnlyFailingEntry(t *testing.T) {
	conn := newFakeConn(false)
	client := testClient(conn)
	defer client.Close()

	a, _ := client.Submit(models.MethodRun, nil)
	b, _ := client.Submit(models.MethodStop, nil)
	c, _ := client.Submit(models.MethodReaders, nil)

	boom := errors.New("socket reset")
	conn.failWith(func(env *models.Envelope) error {
		if env.ID == b.ID {
			return boom
		}
		return nil
	})
	conn.open()

	r := <-b.Done()
	var sendErr *models.TransportSendError
	if !errors.As(r.Err, &sendErr) || !errors.Is(r.Err, boom) {
		t.Fatalf("failed entry Err = %v, want TransportSendError wrapping %v", r.Err, boom)
	}
	if a.Settled() || c.Settled() {
		t.Error("failure settled other entries")
	}
	if client.QueuedCount() != 1 || client.PendingCount() != 1 {
		t.Errorf("queued/pending = %d/%d, want 1/1", client.QueuedCount(), client.PendingCount())
	}
}

func TestSendFailureRejectsWithTransportSendError(t *testing.T) {
	logs := &logBuffer{}
	conn := newFakeConn(true)
	conn.failWith(func(*models.Envelope) error { return errors.New("boom") })
	client := testClient(conn, func(cfg *Config) {
		cfg.Logger = slog.New(slog.NewTextHandler(logs, nil))
	})
	defer client.Close()

	_, err := client.Version(context.Background())
	var sendErr *models.TransportSendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("err = %v, want TransportSendError", err)
	}
	if got, want := err.Error(), "Failed to send request: Transport send error: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !strings.Contains(logs.String(), "Version API call failed:") {
		t.Errorf("boundary log missing, got %q", logs.String())
	}
	if client.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", client.PendingCount())
	}
}

func TestRemoteErrorReturnedUnchanged(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	remote := models.NewJSONRPCError(models.ReaderUnavailable, "no reader connected")
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Readers(context.Background())
		errCh <- err
	}()

	eventually(t, func() bool { return len(conn.requests(t)) == 1 }, "request never sent")
	conn.respondError(t, conn.requests(t)[0].ID, remote)

	err := <-errCh
	var rpcErr *models.JSONRPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want JSONRPCError", err)
	}
	if rpcErr.Code != models.ReaderUnavailable {
		t.Errorf("Code = %d, want %d", rpcErr.Code, models.ReaderUnavailable)
	}
}

func TestTimeoutRejectsOnceAndIgnoresLateResponse(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn, func(cfg *Config) { cfg.RequestTimeout = 30 * time.Millisecond })
	defer client.Close()

	var settled atomic.Int32
	call, _ := client.Submit(models.MethodMediaSearch, models.SearchParams{Query: "mario"})
	call.OnSettle(func(*protocol.Call, models.CallResult) { settled.Add(1) })

	r := <-call.Done()
	var te *models.TimeoutError
	if !errors.As(r.Err, &te) {
		t.Fatalf("Err = %v, want TimeoutError", r.Err)
	}

	conn.respond(t, call.ID, models.SearchResults{Total: 1})
	time.Sleep(20 * time.Millisecond)
	if settled.Load() != 1 {
		t.Errorf("settlements = %d, want 1", settled.Load())
	}
	select {
	case extra := <-call.Done():
		t.Errorf("late response re-settled call: %+v", extra)
	default:
	}
}

func TestResetCancelsPendingAndQueued(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)

	inFlight, _ := client.Submit(models.MethodMedia, nil)
	conn.drop()
	queued, _ := client.Submit(models.MethodTokens, nil)

	replies := make(chan Reply[models.HistoryResponse], 1)
	go func() {
		reply, err := client.History(context.Background())
		if err != nil {
			t.Errorf("History() error = %v", err)
		}
		replies <- reply
	}()
	eventually(t, func() bool { return client.QueuedCount() == 2 }, "history never queued")

	client.Reset()

	for _, call := range []*protocol.Call{inFlight, queued} {
		r := <-call.Done()
		if !r.IsCancelled() || r.Err != nil {
			t.Errorf("%s result = %+v, want cancelled", call.Method, r)
		}
	}
	if reply := <-replies; !reply.Cancelled {
		t.Error("typed call not reported as cancelled")
	}
	if client.PendingCount() != 0 || client.QueuedCount() != 0 {
		t.Errorf("pending/queued = %d/%d after reset", client.PendingCount(), client.QueuedCount())
	}

	if _, err := client.Submit(models.MethodVersion, nil); !errors.Is(err, models.ErrNoConnection) {
		t.Errorf("Submit() after Reset error = %v, want ErrNoConnection", err)
	}
	if _, err := client.Stop(context.Background()); !errors.Is(err, models.ErrNoConnection) {
		t.Errorf("Stop() after Reset error = %v, want ErrNoConnection", err)
	}

	next := newFakeConn(true)
	client.Attach(next)
	if _, err := client.Submit(models.MethodVersion, nil); err != nil {
		t.Fatalf("Submit() after Attach error = %v", err)
	}
	if len(next.requests(t)) != 1 {
		t.Error("call did not reach the newly attached connection")
	}

	conn.deliver([]byte(`{"jsonrpc":"2.0","method":"mediaStarted","params":{}}`))
	client.Close()
}

func TestResetDetachesHandlers(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	client.Reset()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if conn.onOpen != nil || conn.onMessage != nil {
		t.Error("Reset() left handlers installed on the old connection")
	}
}

func TestCancelWriteWithoutPendingWriteIsNoop(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	if client.CancelWrite() {
		t.Error("CancelWrite() = true with no pending write")
	}
	if len(conn.requests(t)) != 0 {
		t.Errorf("sent %v, want nothing", conn.methods(t))
	}
}

func TestCancelWrite(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	replies := make(chan Reply[struct{}], 1)
	go func() {
		reply, err := client.Write(context.Background(), models.WriteParams{Text: "**launch.system:snes"})
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
		replies <- reply
	}()
	eventually(t, func() bool { return client.PendingWriteID() != "" }, "write slot never filled")

	if !client.CancelWrite() {
		t.Fatal("CancelWrite() = false with a pending write")
	}
	if reply := <-replies; !reply.Cancelled {
		t.Error("write not reported as cancelled")
	}
	if client.PendingWriteID() != "" {
		t.Error("write slot not cleared")
	}

	want := []string{models.MethodWrite, models.MethodReadersWriteCancel}
	if got := conn.methods(t); !reflect.DeepEqual(got, want) {
		t.Errorf("sent = %v, want %v", got, want)
	}
}

func TestCancelWriteSwallowsNotifyFailure(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	call, err := client.Submit(models.MethodWrite, models.WriteParams{Text: "hello"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	client.trackWrite(call)

	conn.failWith(func(env *models.Envelope) error {
		if env.Method == models.MethodReadersWriteCancel {
			return errors.New("socket gone")
		}
		return nil
	})

	if !client.CancelWrite() {
		t.Fatal("CancelWrite() = false")
	}
	if r := <-call.Done(); !r.IsCancelled() {
		t.Errorf("write result = %+v, want cancelled", r)
	}
}

func TestWriteSlotClearedOnCompletion(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Write(context.Background(), models.WriteParams{Text: "abc"})
		errCh <- err
	}()
	eventually(t, func() bool { return client.PendingWriteID() != "" }, "write slot never filled")

	conn.respond(t, client.PendingWriteID(), nil)
	if err := <-errCh; err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if client.PendingWriteID() != "" {
		t.Error("write slot not cleared after success")
	}
}

func TestContextCancelAbandonsQueuedCall(t *testing.T) {
	conn := newFakeConn(false)
	client := testClient(conn)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, models.MethodSystems, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call() error = %v, want deadline exceeded", err)
	}
	if client.QueuedCount() != 0 {
		t.Errorf("QueuedCount() = %d, want 0", client.QueuedCount())
	}

	conn.open()
	if len(conn.requests(t)) != 0 {
		t.Error("abandoned call was sent after reconnect")
	}
}

func TestContextCancelAbandonsPendingCall(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Settings(ctx)
		errCh <- err
	}()
	eventually(t, func() bool { return client.PendingCount() == 1 }, "call never registered")

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Settings() error = %v, want context.Canceled", err)
	}
	if client.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", client.PendingCount())
	}
}

func TestNotificationsReachListeners(t *testing.T) {
	conn := newFakeConn(true)
	client := testClient(conn)
	defer client.Close()

	var mu sync.Mutex
	var got []Notification
	unsubscribe := client.OnNotification(func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
	})

	conn.deliver([]byte(`{"jsonrpc":"2.0","method":"tokensAdded","params":{"uid":"04a1b2","text":"**launch.random:snes"}}`))
	unsubscribe()
	conn.deliver([]byte(`{"jsonrpc":"2.0","method":"tokensRemoved"}`))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("received %d notifications, want 1", len(got))
	}
	if got[0].Method != models.NotificationTokensAdded {
		t.Errorf("Method = %q", got[0].Method)
	}
	var token models.Token
	if err := got[0].Decode(&token); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if token.UID != "04a1b2" {
		t.Errorf("UID = %q", token.UID)
	}
	if client.PendingCount() != 0 {
		t.Error("notification touched the registry")
	}
}

type countingObserver struct {
	mu       sync.Mutex
	dropped  map[string]int
	settled  map[models.CallStatus]int
	notified int
	queued   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{dropped: map[string]int{}, settled: map[models.CallStatus]int{}}
}

func (o *countingObserver) CallSubmitted(_ string, queued bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if queued {
		o.queued++
	}
}

func (o *countingObserver) CallSettled(_ string, status models.CallStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled[status]++
}

func (o *countingObserver) FrameDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped[reason]++
}

func (o *countingObserver) NotificationReceived(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notified++
}

func TestInvalidAndStaleFramesAreDropped(t *testing.T) {
	observer := newCountingObserver()
	conn := newFakeConn(true)
	client := testClient(conn, func(cfg *Config) { cfg.Observer = observer })
	defer client.Close()

	call, _ := client.Submit(models.MethodVersion, nil)

	conn.deliver([]byte(`not json`))
	conn.deliver([]byte(`{"jsonrpc":"1.0","id":"` + call.ID + `","result":{}}`))
	conn.deliver([]byte(`{"jsonrpc":"2.0","id":"unknown","result":{}}`))
	conn.deliver([]byte(`{"jsonrpc":"2.0","id":"` + call.ID + ` x","result":{}}`))

	if call.Settled() {
		t.Fatal("invalid frames settled the call")
	}

	conn.respond(t, call.ID, models.VersionResponse{Version: "1"})
	<-call.Done()

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.dropped["invalid"] != 3 || observer.dropped["stale"] != 1 {
		t.Errorf("dropped = %v", observer.dropped)
	}
	if observer.settled[models.StatusOK] != 1 {
		t.Errorf("settled = %v", observer.settled)
	}
}

func TestSubmitRejectsInvalidMethod(t *testing.T) {
	client := testClient(newFakeConn(true))
	defer client.Close()

	if _, err := client.Submit("bad method", nil); err == nil {
		t.Error("Submit() accepted an invalid method name")
	}
}

func TestQueueCapacity(t *testing.T) {
	client := testClient(newFakeConn(false), func(cfg *Config) { cfg.QueueCapacity = 1 })
	defer client.Close()

	if _, err := client.Submit(models.MethodStop, nil); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := client.Submit(models.MethodStop, nil); !errors.Is(err, models.ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestSubmitFailsFastOnDestroyedConnection(t *testing.T) {
	conn := newFakeConn(false)
	conn.destroyed = true
	client := testClient(conn)
	defer client.Close()

	if _, err := client.Submit(models.MethodVersion, nil); !errors.Is(err, models.ErrManagerDestroyed) {
		t.Errorf("Submit() error = %v, want ErrManagerDestroyed", err)
	}
	if client.QueuedCount() != 0 {
		t.Errorf("QueuedCount() = %d, want 0", client.QueuedCount())
	}
}
