package ingress

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"energybot/internal/ledger"
	"energybot/internal/ledger/ledgertest"
	"energybot/internal/models"
	"energybot/internal/payments"
	"energybot/internal/topup"
)

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]payments.Status
	errs     map[string]error
	panics   map[string]bool
	delay    time.Duration
	calls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string]payments.Status),
		errs:     make(map[string]error),
		panics:   make(map[string]bool),
	}
}

func (g *fakeGateway) set(id string, s payments.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = s
}

func (g *fakeGateway) GetStatus(ctx context.Context, id string) (payments.PaymentInfo, error) {
	g.mu.Lock()
	g.calls++
	st, err, p, delay := g.statuses[id], g.errs[id], g.panics[id], g.delay
	g.mu.Unlock()
	if p {
		panic("gateway exploded")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return payments.PaymentInfo{Status: payments.StatusUnknown}, ctx.Err()
		}
	}
	if err != nil {
		return payments.PaymentInfo{Status: payments.StatusUnknown}, err
	}
	return payments.PaymentInfo{ID: id, Status: st}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	settled []topup.Result
}

func (n *recordingNotifier) PaymentSettled(ctx context.Context, res topup.Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settled = append(n.settled, res)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.settled)
}

type env struct {
	store    *ledgertest.Store
	payments *ledger.Payments
	gateway  *fakeGateway
	notifier *recordingNotifier
	checker  *Checker
	webhook  http.Handler
	user     models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledgertest.New()
	p := ledger.NewPayments(store, log)
	engine := topup.NewEngine(store, p, ledger.NewBalance(log), log)
	gw := newFakeGateway()
	n := &recordingNotifier{}
	checker := NewChecker(p, engine, gw, n, 50*time.Millisecond, log)
	auth, err := NewSourceAuth(DefaultAllowedCIDRs, DefaultTrustedProxies, "shop", "secret")
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		store:    store,
		payments: p,
		gateway:  gw,
		notifier: n,
		checker:  checker,
		webhook:  NewWebhookHandler(checker, auth, log),
	}
	e.user = store.AddUser(models.User{TelegramID: 555})
	return e
}

func (e *env) createPayment(t *testing.T, ext string, credits, rub int64) {
	t.Helper()
	if _, err := e.payments.Create(context.Background(), e.user.ID, ext, credits, rub); err != nil {
		t.Fatal(err)
	}
}

func (e *env) balance() int64 {
	u, _ := e.store.User(e.user.ID)
	return u.Balance
}

func notification(id, status string) string {
	return `{"type":"notification","event":"payment.` + status + `","object":{"id":"` + id + `","status":"` + status + `","metadata":{"chat_id":"555"}}}`
}

func postWebhook(h http.Handler, body, remote string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/yookassa", strings.NewReader(body))
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const (
	allowedAddr = "185.6.233.10:443"
	foreignAddr = "8.8.8.8:443"
	proxyAddr   = "127.0.0.1:50000"
)

func TestWebhookAuthentication(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 100, 99)
	goodAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("shop:secret"))
	badAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("shop:wrong"))

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   int
	}{
		{"allowed ip", allowedAddr, nil, http.StatusOK},
		{"proxied allowed ip", proxyAddr, map[string]string{"X-Forwarded-For": "77.75.153.5"}, http.StatusOK},
		{"proxied foreign ip", proxyAddr, map[string]string{"X-Forwarded-For": "9.9.9.9"}, http.StatusUnauthorized},
		{"proxied forged first hop", proxyAddr, map[string]string{"X-Forwarded-For": "77.75.153.5, 9.9.9.9"}, http.StatusUnauthorized},
		{"forged header from foreign ip", foreignAddr, map[string]string{"X-Forwarded-For": "127.0.0.1"}, http.StatusUnauthorized},
		{"forged allowed header from foreign ip", foreignAddr, map[string]string{"X-Forwarded-For": "185.6.233.10"}, http.StatusUnauthorized},
		{"loopback without proxy header", proxyAddr, nil, http.StatusUnauthorized},
		{"basic auth from foreign ip", foreignAddr, map[string]string{"Authorization": goodAuth}, http.StatusOK},
		{"wrong secret", foreignAddr, map[string]string{"Authorization": badAuth}, http.StatusUnauthorized},
		{"nothing", foreignAddr, nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postWebhook(e.webhook, notification("p1", "pending"), tt.remote, tt.header)
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestWebhookMalformed(t *testing.T) {
	e := newEnv(t)
	for name, body := range map[string]string{
		"not json":   `{"event":`,
		"missing id": `{"event":"payment.succeeded","object":{"status":"succeeded"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if rec := postWebhook(e.webhook, body, allowedAddr, nil); rec.Code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", rec.Code)
			}
		})
	}
}

func TestWebhookUnknownPayment(t *testing.T) {
	e := newEnv(t)
	rec := postWebhook(e.webhook, notification("nope", "succeeded"), allowedAddr, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

func TestWebhookSucceededSettlesOnce(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 550, 499)

	for i := 0; i < 3; i++ {
		rec := postWebhook(e.webhook, notification("p1", "succeeded"), allowedAddr, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d code = %d", i, rec.Code)
		}
	}
	if got := e.balance(); got != 550 {
		t.Errorf("balance = %d, want 550", got)
	}
	if got := e.notifier.count(); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
	p, _ := e.store.Payment("p1")
	if p.Status != models.PaymentCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
}

func TestWebhookCanceled(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 100, 99)

	rec := postWebhook(e.webhook, notification("p1", "canceled"), allowedAddr, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	p, _ := e.store.Payment("p1")
	if p.Status != models.PaymentCanceled {
		t.Errorf("status = %s, want canceled", p.Status)
	}

	// A late success for a canceled payment never credits.
	postWebhook(e.webhook, notification("p1", "succeeded"), allowedAddr, nil)
	if got := e.balance(); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestWebhookCancelAfterCompletedIgnored(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 100, 99)
	postWebhook(e.webhook, notification("p1", "succeeded"), allowedAddr, nil)

	rec := postWebhook(e.webhook, notification("p1", "canceled"), allowedAddr, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
	if p, _ := e.store.Payment("p1"); p.Status != models.PaymentCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
}

func TestWebhookInternalError(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 100, 99)
	e.store.FailNext("IncreaseBalance", errors.New("disk full"))

	rec := postWebhook(e.webhook, notification("p1", "succeeded"), allowedAddr, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	p, _ := e.store.Payment("p1")
	if p.Status != models.PaymentSucceeded {
		t.Errorf("status = %s, want succeeded recovery point", p.Status)
	}

	// Gateway redelivery settles the payment.
	rec = postWebhook(e.webhook, notification("p1", "succeeded"), allowedAddr, nil)
	if rec.Code != http.StatusOK || e.balance() != 100 {
		t.Errorf("redelivery code = %d balance = %d", rec.Code, e.balance())
	}
}

func TestCheckGatewayTimeoutLeavesPending(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 100, 99)
	e.gateway.set("p1", payments.StatusSucceeded)
	e.gateway.delay = time.Second

	outcome, err := e.checker.Check(context.Background(), "p1")
	if err != nil || outcome != OutcomeUnknown {
		t.Fatalf("Check = %s, %v, want unknown", outcome, err)
	}
	if p, _ := e.store.Payment("p1"); p.Status != models.PaymentPending {
		t.Errorf("status = %s, want pending", p.Status)
	}
}

func TestCheckUnknownAtGateway(t *testing.T) {
	e := newEnv(t)
	e.store.SetClock(func() time.Time { return time.Now().Add(-48 * time.Hour) })
	e.createPayment(t, "old", 100, 99)
	e.store.SetClock(time.Now)
	e.createPayment(t, "fresh", 100, 99)
	e.gateway.errs["old"] = payments.ErrNotFound
	e.gateway.errs["fresh"] = payments.ErrNotFound

	ctx := context.Background()
	if outcome, err := e.checker.Check(ctx, "fresh"); err != nil || outcome != OutcomeUnknown {
		t.Errorf("fresh = %s, %v, want unknown", outcome, err)
	}
	if p, _ := e.store.Payment("fresh"); p.Status != models.PaymentPending {
		t.Errorf("fresh status = %s, want pending", p.Status)
	}
	if outcome, err := e.checker.Check(ctx, "old"); err != nil || outcome != OutcomeCanceled {
		t.Errorf("old = %s, %v, want canceled", outcome, err)
	}
	if p, _ := e.store.Payment("old"); p.Status != models.PaymentCanceled {
		t.Errorf("old status = %s, want canceled", p.Status)
	}
	if e.balance() != 0 {
		t.Errorf("balance = %d, want 0", e.balance())
	}
}

func TestManualCheck(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "p1", 1300, 999)
	ctx := context.Background()

	e.gateway.set("p1", payments.StatusPending)
	if outcome, _ := e.checker.Check(ctx, "p1"); outcome != OutcomePending {
		t.Errorf("outcome = %s, want pending", outcome)
	}

	e.gateway.set("p1", payments.StatusSucceeded)
	if outcome, err := e.checker.Check(ctx, "p1"); err != nil || outcome != OutcomeSettled {
		t.Fatalf("outcome = %s, %v, want settled", outcome, err)
	}
	calls := e.gateway.calls
	if outcome, _ := e.checker.Check(ctx, "p1"); outcome != OutcomeAlreadyCompleted {
		t.Errorf("outcome = %s, want already completed", outcome)
	}
	if e.gateway.calls != calls {
		t.Error("gateway queried for a completed payment")
	}
	if outcome, err := e.checker.Check(ctx, "missing"); outcome != OutcomeNotFound || !errors.Is(err, ledger.ErrPaymentNotFound) {
		t.Errorf("missing = %s, %v", outcome, err)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"boom", "flaky", "good", "gone"} {
		e.createPayment(t, id, 100, 99)
	}
	e.gateway.panics["boom"] = true
	e.gateway.errs["flaky"] = errors.New("connection reset")
	e.gateway.set("good", payments.StatusSucceeded)
	e.gateway.set("gone", payments.StatusCanceled)

	poller := NewPoller(e.payments, e.checker, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res := poller.Sweep(context.Background())

	if res.Checked != 4 || res.Settled != 1 || res.Failed != 1 {
		t.Errorf("sweep = %+v", res)
	}
	if got := e.balance(); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}
	if p, _ := e.store.Payment("flaky"); p.Status != models.PaymentPending {
		t.Errorf("flaky status = %s, want pending", p.Status)
	}
	if p, _ := e.store.Payment("gone"); p.Status != models.PaymentCanceled {
		t.Errorf("gone status = %s, want canceled", p.Status)
	}
}

func TestSweepResumesSucceeded(t *testing.T) {
	e := newEnv(t)
	e.createPayment(t, "stuck", 550, 499)
	if _, _, err := e.payments.TransitionStatus(context.Background(), "stuck", models.PaymentSucceeded, nil); err != nil {
		t.Fatal(err)
	}

	poller := NewPoller(e.payments, e.checker, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res := poller.Sweep(context.Background())
	if res.Checked != 1 || res.Settled != 1 {
		t.Errorf("sweep = %+v", res)
	}
	if p, _ := e.store.Payment("stuck"); p.Status != models.PaymentCompleted {
		t.Errorf("status = %s, want completed", p.Status)
	}
	if got := e.balance(); got != 550 {
		t.Errorf("balance = %d, want 550", got)
	}

	if res := poller.Sweep(context.Background()); res.Checked != 0 {
		t.Errorf("second sweep = %+v", res)
	}
}

func TestConcurrentTriggers(t *testing.T) {
	e := newEnv(t)
	a := e.store.AddUser(models.User{TelegramID: 1})
	b := e.store.AddUser(models.User{TelegramID: 2, ReferredBy: sql.NullInt64{Int64: a.ID, Valid: true}})
	if _, err := e.payments.Create(context.Background(), b.ID, "race", 1300, 999); err != nil {
		t.Fatal(err)
	}
	e.gateway.set("race", payments.StatusSucceeded)
	poller := NewPoller(e.payments, e.checker, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := make(chan struct{})
	var wg sync.WaitGroup
	triggers := []func(){
		func() { postWebhook(e.webhook, notification("race", "succeeded"), allowedAddr, nil) },
		func() { poller.Sweep(context.Background()) },
		func() { e.checker.Check(context.Background(), "race") },
	}
	for _, trigger := range triggers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			trigger()
		}()
	}
	close(start)
	wg.Wait()

	if u, _ := e.store.User(b.ID); u.Balance != 1300 {
		t.Errorf("payer balance = %d, want 1300", u.Balance)
	}
	if u, _ := e.store.User(a.ID); u.Balance != 130 {
		t.Errorf("referrer balance = %d, want 130", u.Balance)
	}
	if n := len(e.store.ReferralBonuses()); n != 1 {
		t.Errorf("referral bonuses = %d, want 1", n)
	}
	if got := e.notifier.count(); got != 1 {
		t.Errorf("notifications = %d, want 1", got)
	}
}

func TestClientIP(t *testing.T) {
	auth, err := NewSourceAuth(DefaultAllowedCIDRs, DefaultTrustedProxies, "", "")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "10.1.2.3:5555", "", "10.1.2.3"},
		{"direct ignores header", "10.1.2.3:5555", "185.6.234.1", "10.1.2.3"},
		{"proxy takes right-most hop", "127.0.0.1:5555", " 185.6.234.1 , 9.9.9.9", "9.9.9.9"},
		{"proxy chain skips trusted hops", "127.0.0.1:5555", "9.9.9.9, 185.6.234.1, 172.17.0.2", "185.6.234.1"},
		{"proxy without header", "127.0.0.1:5555", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := auth.ClientIP(req).String(); got != tt.want {
				t.Errorf("ClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewSourceAuthRejectsBadCIDR(t *testing.T) {
	if _, err := NewSourceAuth([]string{"300.0.0.0/8"}, nil, "", ""); err == nil {
		t.Error("invalid CIDR accepted")
	}
}
