package server_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpSettle/internal/engine"
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/margin"
	"PerpSettle/internal/oracle"
	"PerpSettle/internal/params"
	"PerpSettle/internal/server"
	"PerpSettle/internal/verifier"
)

type env struct {
	srv    *server.Server
	market *engine.Market
	oracle *oracle.Manual
	ledger *margin.Ledger
	now    int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	o := oracle.NewManual(60)
	m, err := engine.NewMarket("eth-usd", o, params.DefaultRiskParameter(), params.DefaultMarketParameter(),
		engine.Beneficiaries{Coordinator: "coordinator"}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ledger := margin.NewLedger()
	e := &env{market: m, oracle: o, ledger: ledger, now: 100}
	e.srv = server.New([]*engine.Market{m}, ledger, nil, zerolog.Nop())
	e.srv.SetClock(func() int64 { return e.now })
	return e
}

func (e *env) do(t *testing.T, method, path, sender string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if sender != "" {
		req.Header.Set("X-Sender", sender)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *env) commit(t *testing.T, ts int64, price string) {
	t.Helper()
	err := e.market.Commit(oracle.PriceVersion{
		Timestamp: ts, Price: fixed.MustParse(price), Valid: true,
	}, oracle.Receipt{})
	if err != nil {
		t.Fatal(err)
	}
}

func TestServer_DepositOrderAndQuery(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/accounts/alice/deposits", "alice",
		map[string]string{"amount": "1000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d: %s", rec.Code, rec.Body)
	}

	rec = e.do(t, http.MethodPost, "/v1/markets/eth-usd/orders", "alice",
		map[string]string{"account": "alice", "collateral": "500"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("order status = %d: %s", rec.Code, rec.Body)
	}
	e.commit(t, 60, "100")

	rec = e.do(t, http.MethodGet, "/v1/markets/eth-usd/accounts/alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("account status = %d", rec.Code)
	}
	var snap struct {
		Collateral fixed.Dec `json:"Collateral"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Collateral != fixed.FromInt(500) {
		t.Errorf("collateral = %s, want 500", snap.Collateral)
	}

	rec = e.do(t, http.MethodGet, "/v1/accounts/alice/balance", "", nil)
	var bal map[string]fixed.Dec
	if err := json.Unmarshal(rec.Body.Bytes(), &bal); err != nil {
		t.Fatal(err)
	}
	if bal["free"] != fixed.FromInt(500) {
		t.Errorf("free = %s, want 500", bal["free"])
	}
}

func TestServer_OrderRollbackOnRejection(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/v1/accounts/alice/deposits", "alice",
		map[string]string{"amount": "1000"})

	// No oracle version yet: a risk-increasing order is rejected for
	// staleness and the isolated collateral must bounce back.
	rec := e.do(t, http.MethodPost, "/v1/markets/eth-usd/orders", "alice",
		map[string]string{"account": "alice", "long": "1", "collateral": "500"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("order status = %d: %s", rec.Code, rec.Body)
	}
	if got := e.ledger.Balance("alice"); got != fixed.FromInt(1000) {
		t.Errorf("free after rollback = %s, want 1000", got)
	}
	if got := e.ledger.IsolatedBalance("alice", "eth-usd"); !got.IsZero() {
		t.Errorf("isolated after rollback = %s, want 0", got)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodGet, "/v1/markets/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown market = %d, want 404", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/v1/markets/eth-usd/orders", "mallory",
		map[string]string{"account": "alice", "collateral": "0"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("unauthorized sender = %d, want 403", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/markets/eth-usd/intents", "solver",
		map[string]string{"account": "a", "solver": "solver", "quantity": "1", "price": "100", "fee": "2"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad intent fee = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/accounts/alice/withdrawals", "alice",
		map[string]string{"amount": "5"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("overdraw = %d, want 422", rec.Code)
	}
}

func TestServer_Health(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
}

func TestServer_SignedFill(t *testing.T) {
	e := newEnv(t)

	alicePub, alicePriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	solverPub, solverPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	alice := hex.EncodeToString(alicePub)
	solver := hex.EncodeToString(solverPub)

	e.srv.SetVerifier("eth-usd", verifier.New("eth-usd", verifier.Ed25519Signature,
		func(account, signer string) bool { return account == signer }))

	// Fund both parties and a maker so the intent passes the margin and
	// efficiency checks.
	for _, acct := range []string{alice, solver, "mkr"} {
		req := engine.OrderRequest{Account: acct, Sender: acct, Collateral: fixed.FromInt(1000)}
		if acct == "mkr" {
			req.Maker = fixed.FromInt(10)
		}
		if err := e.market.Update(100, req); err != nil {
			t.Fatal(err)
		}
	}
	e.commit(t, 60, "100")
	e.now = 130

	intent := verifier.SignedIntent{
		Common: verifier.Common{
			ID: uuid.New(), Account: alice, Signer: alice, Domain: "eth-usd", Nonce: 1,
		},
		Market:     "eth-usd",
		Quantity:   fixed.FromInt(1),
		Price:      fixed.MustParse("101"),
		Fee:        fixed.MustParse("0.05"),
		Originator: "frontend",
	}
	intentPayload, err := json.Marshal(intent)
	if err != nil {
		t.Fatal(err)
	}
	fill := verifier.SignedFill{
		Common: verifier.Common{
			ID: uuid.New(), Account: solver, Signer: solver, Domain: "eth-usd", Nonce: 1,
		},
		Intent: intent,
		Solver: solver,
	}
	fillPayload, err := json.Marshal(fill)
	if err != nil {
		t.Fatal(err)
	}

	body := map[string]any{
		"intent_payload":   intentPayload,
		"intent_signature": ed25519.Sign(alicePriv, intentPayload),
		"fill_payload":     fillPayload,
		"fill_signature":   ed25519.Sign(solverPriv, fillPayload),
	}
	rec := e.do(t, http.MethodPost, "/v1/markets/eth-usd/fills", "", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("fill status = %d: %s", rec.Code, rec.Body)
	}

	// Replaying the same envelope must fail on the burned nonce.
	rec = e.do(t, http.MethodPost, "/v1/markets/eth-usd/fills", "", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("replay status = %d: %s", rec.Code, rec.Body)
	}

	e.commit(t, 120, "100")
	rec = e.do(t, http.MethodGet, "/v1/markets/eth-usd/accounts/"+alice, "", nil)
	var snap struct {
		Position struct {
			Long fixed.Dec `json:"Long"`
		} `json:"Position"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Position.Long != fixed.FromInt(1) {
		t.Errorf("long = %s, want 1", snap.Position.Long)
	}
}

func TestServer_SettleRoute(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/markets/eth-usd/accounts/alice/settle", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle status = %d: %s", rec.Code, rec.Body)
	}
	// Idempotent: a second settle is also fine.
	rec = e.do(t, http.MethodPost, "/v1/markets/eth-usd/accounts/alice/settle", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second settle status = %d", rec.Code)
	}
}
