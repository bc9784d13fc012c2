// Package server exposes the settlement engine over HTTP/JSON. Senders are
// identified by the X-Sender header set by the authenticating frontend; the
// engine enforces account-level authorization on top.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"PerpSettle/internal/engine"
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/margin"
	"PerpSettle/internal/observability"
	"PerpSettle/internal/verifier"
)

type Server struct {
	router    *mux.Router
	markets   map[string]*engine.Market
	ledger    *margin.Ledger
	verifiers map[string]*verifier.Verifier
	log       zerolog.Logger
	metrics   *observability.Metrics

	// now is the clock used for order timestamps; replaceable in tests.
	now func() int64
}

func New(markets []*engine.Market, ledger *margin.Ledger, metrics *observability.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		markets:   make(map[string]*engine.Market, len(markets)),
		ledger:    ledger,
		verifiers: make(map[string]*verifier.Verifier),
		log:       log.With().Str("component", "server").Logger(),
		metrics:   metrics,
		now:       func() int64 { return time.Now().Unix() },
	}
	for _, m := range markets {
		s.markets[m.Name()] = m
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// SetClock overrides the order timestamp source, mainly for tests.
func (s *Server) SetClock(now func() int64) { s.now = now }

// SetVerifier enables signed-fill submission for the market.
func (s *Server) SetVerifier(market string, v *verifier.Verifier) {
	s.verifiers[market] = v
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/markets/{market}", s.instrument("market", s.handleMarket)).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/versions/{timestamp}", s.instrument("version", s.handleVersion)).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/accounts/{account}", s.instrument("account", s.handleAccount)).Methods(http.MethodGet)
	v1.HandleFunc("/markets/{market}/orders", s.instrument("orders", s.handleOrder)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/intents", s.instrument("intents", s.handleIntent)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/fills", s.instrument("fills", s.handleFill)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/accounts/{account}/settle", s.instrument("settle", s.handleSettle)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/claims", s.instrument("claims", s.handleClaim)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/fee-claims", s.instrument("fee_claims", s.handleFeeClaim)).Methods(http.MethodPost)
	v1.HandleFunc("/markets/{market}/exposure-claims", s.instrument("exposure_claims", s.handleExposureClaim)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{account}/deposits", s.instrument("deposits", s.handleDeposit)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{account}/withdrawals", s.instrument("withdrawals", s.handleWithdrawal)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{account}/balance", s.instrument("balance", s.handleBalance)).Methods(http.MethodGet)
}

func (s *Server) market(r *http.Request) (*engine.Market, bool) {
	m, ok := s.markets[mux.Vars(r)["market"]]
	return m, ok
}

func sender(r *http.Request) string {
	return r.Header.Get("X-Sender")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	ts, err := strconv.ParseInt(mux.Vars(r)["timestamp"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed timestamp")
		return
	}
	v, ok := m.Version(ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no version at timestamp")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	writeJSON(w, http.StatusOK, m.Account(mux.Vars(r)["account"]))
}

type orderRequest struct {
	Account    string    `json:"account"`
	Maker      fixed.Dec `json:"maker"`
	Long       fixed.Dec `json:"long"`
	Short      fixed.Dec `json:"short"`
	Collateral fixed.Dec `json:"collateral"`
	Protect    bool      `json:"protect"`
	Referrer   string    `json:"referrer"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}

	// A positive transfer moves tokens into the market before the order is
	// accepted; a rejected order moves them straight back.
	if req.Collateral.Sign() > 0 {
		if err := s.ledger.Isolate(req.Account, m.Name(), req.Collateral); err != nil {
			writeEngineError(w, err)
			return
		}
	}

	err := m.Update(s.now(), engine.OrderRequest{
		Account:    req.Account,
		Sender:     sender(r),
		Maker:      req.Maker,
		Long:       req.Long,
		Short:      req.Short,
		Collateral: req.Collateral,
		Protect:    req.Protect,
		Referrer:   req.Referrer,
	})
	if err != nil {
		if req.Collateral.Sign() > 0 {
			if rerr := s.ledger.Isolate(req.Account, m.Name(), req.Collateral.Neg()); rerr != nil {
				s.log.Error().Err(rerr).Str("account", req.Account).Msg("collateral rollback failed")
			}
		}
		writeEngineError(w, err)
		return
	}
	if req.Collateral.Sign() < 0 {
		if rerr := s.ledger.Isolate(req.Account, m.Name(), req.Collateral); rerr != nil {
			s.log.Error().Err(rerr).Str("account", req.Account).Msg("collateral release failed")
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

type intentRequest struct {
	Account    string    `json:"account"`
	Solver     string    `json:"solver"`
	Quantity   fixed.Dec `json:"quantity"`
	Price      fixed.Dec `json:"price"`
	Fee        fixed.Dec `json:"fee"`
	Originator string    `json:"originator"`
	Flow       string    `json:"flow"`
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	err := m.UpdateIntent(s.now(), engine.Intent{
		Account:    req.Account,
		Solver:     req.Solver,
		Sender:     sender(r),
		Quantity:   req.Quantity,
		Price:      req.Price,
		Fee:        req.Fee,
		Originator: req.Originator,
		Flow:       req.Flow,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

// fillRequest carries a signed intent and the solver's signed fill of it.
// Payload bytes are the canonical JSON each party signed.
type fillRequest struct {
	IntentPayload   []byte `json:"intent_payload"`
	IntentSignature []byte `json:"intent_signature"`
	FillPayload     []byte `json:"fill_payload"`
	FillSignature   []byte `json:"fill_signature"`
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	v, ok := s.verifiers[m.Name()]
	if !ok {
		writeError(w, http.StatusNotFound, "market does not accept signed fills")
		return
	}
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}

	var intent verifier.SignedIntent
	if err := json.Unmarshal(req.IntentPayload, &intent); err != nil {
		writeError(w, http.StatusBadRequest, "malformed intent payload: "+err.Error())
		return
	}
	var fill verifier.SignedFill
	if err := json.Unmarshal(req.FillPayload, &fill); err != nil {
		writeError(w, http.StatusBadRequest, "malformed fill payload: "+err.Error())
		return
	}
	if intent.Market != m.Name() || fill.Intent.ID != intent.ID {
		writeError(w, http.StatusBadRequest, "fill does not match intent")
		return
	}

	now := time.Unix(s.now(), 0)
	if err := v.Verify(intent.Common, req.IntentPayload, req.IntentSignature, now); err != nil {
		writeVerifierError(w, err)
		return
	}
	if err := v.Verify(fill.Common, req.FillPayload, req.FillSignature, now); err != nil {
		writeVerifierError(w, err)
		return
	}

	err := m.UpdateIntent(s.now(), engine.Intent{
		Account:    intent.Account,
		Solver:     fill.Account,
		Sender:     fill.Account,
		Signer:     intent.Signer,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
		Fee:        intent.Fee,
		Originator: intent.Originator,
		Flow:       intent.Flow,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	m.Settle(mux.Vars(r)["account"])
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type claimRequest struct {
	Account string `json:"account"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	amount, err := m.Claim(req.Account, sender(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.ledger.Credit(req.Account, amount)
	writeJSON(w, http.StatusOK, map[string]fixed.Dec{"claimed": amount})
}

type feeClaimRequest struct {
	Kind string `json:"kind"` // protocol, oracle, or risk
}

func (s *Server) handleFeeClaim(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	var req feeClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	var kind engine.FeeKind
	switch req.Kind {
	case "protocol":
		kind = engine.ProtocolFee
	case "oracle":
		kind = engine.OracleFee
	case "risk":
		kind = engine.RiskFee
	default:
		writeError(w, http.StatusBadRequest, "unknown fee kind")
		return
	}
	amount, err := m.ClaimFee(sender(r), kind)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.ledger.Credit(sender(r), amount)
	writeJSON(w, http.StatusOK, map[string]fixed.Dec{"claimed": amount})
}

func (s *Server) handleExposureClaim(w http.ResponseWriter, r *http.Request) {
	m, ok := s.market(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown market")
		return
	}
	amount, err := m.ClaimExposure(sender(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.ledger.Credit(sender(r), amount)
	writeJSON(w, http.StatusOK, map[string]fixed.Dec{"claimed": amount})
}

type amountRequest struct {
	Amount fixed.Dec `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if err := s.ledger.Deposit(mux.Vars(r)["account"], req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body: "+err.Error())
		return
	}
	if err := s.ledger.Withdraw(mux.Vars(r)["account"], req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	writeJSON(w, http.StatusOK, map[string]fixed.Dec{
		"free":  s.ledger.Balance(account),
		"total": s.ledger.Total(account),
	})
}
