// Package engine implements the settlement engine: one Market per listed
// instrument, holding the global book, every account's position and pending
// orders, and the committed version history. All mutation goes through the
// market mutex; the math itself lives in the accrual package and is pure.
package engine

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"PerpSettle/internal/accrual"
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/oracle"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

// Beneficiaries names the addresses allowed to claim each fee accumulator.
type Beneficiaries struct {
	Coordinator    string
	OracleReceiver string
	RiskReceiver   string
}

// OrderRequest is one position/collateral update against a market.
type OrderRequest struct {
	Account string
	Sender  string

	Maker      fixed.Dec // signed exposure delta
	Long       fixed.Dec
	Short      fixed.Dec
	Collateral fixed.Dec // signed transfer, negative withdraws

	Protect  bool // liquidation: bypasses margin, requires under-maintenance
	Referrer string
}

// Intent is a signed off-book trade at an agreed price, filled by a solver
// taking the opposite side. The fee is the originator's cut of the linear
// taker fee.
type Intent struct {
	Account string // taker the intent trades for
	Solver  string // counterparty filling it
	Sender  string // submitting party, authorized for the solver

	// Signer is the key that signed the intent on the taker's behalf. The
	// caller must have verified the signature itself before setting it;
	// when empty, the sender must be authorized for the taker account.
	Signer string

	Quantity   fixed.Dec // signed taker delta, positive opens long
	Price      fixed.Dec // agreed override price
	Fee        fixed.Dec // originator cut, fraction of the linear fee
	Originator string    // party collecting the originator cut
	Flow       string    // intent flow identifier, for fee exemptions
}

// CommitEvent is published after every applied oracle version.
type CommitEvent struct {
	Market   string
	Version  state.Version
	Global   state.Global
	Position state.Position
	Orders   int64
}

// CommitHook receives commit events for persistence and downstream streams.
type CommitHook func(CommitEvent)

// CheckpointHook receives each account settlement step.
type CheckpointHook func(market, account string, c state.Checkpoint)

// versionContext is a committed version plus everything needed to bill the
// accounts that settle against it later.
type versionContext struct {
	version            state.Version
	trade              accrual.Trade
	settlementPerOrder fixed.Dec
}

// Market is the settlement engine for a single instrument.
type Market struct {
	mu sync.Mutex

	name           string
	oracle         oracle.Oracle
	log            zerolog.Logger
	hook           CommitHook
	checkpointHook CheckpointHook

	risk   params.RiskParameter
	market params.MarketParameter
	bens   Beneficiaries

	global        state.Global
	position      state.Position
	latestVersion state.Version

	versions  map[int64]*versionContext
	committed []int64 // committed version timestamps, ascending

	pendingOrders     map[int64]*state.Order
	pendingGuarantees map[int64]*state.Guarantee
	pendingTimestamps []int64

	accounts      map[string]*account
	operators     map[string]map[string]bool
	signers       map[string]map[string]bool
	extensions    map[string]bool
	referralRates map[string]fixed.Dec
}

func NewMarket(name string, o oracle.Oracle, risk params.RiskParameter, market params.MarketParameter, bens Beneficiaries, log zerolog.Logger, hook CommitHook) (*Market, error) {
	if err := risk.Validate(); err != nil {
		return nil, err
	}
	if err := market.Validate(); err != nil {
		return nil, err
	}
	return &Market{
		name:   name,
		oracle: o,
		log:    log.With().Str("component", "market").Str("market", name).Logger(),
		hook:   hook,

		risk:   risk,
		market: market,
		bens:   bens,

		versions:          make(map[int64]*versionContext),
		pendingOrders:     make(map[int64]*state.Order),
		pendingGuarantees: make(map[int64]*state.Guarantee),
		accounts:          make(map[string]*account),
		operators:         make(map[string]map[string]bool),
		signers:           make(map[string]map[string]bool),
		extensions:        make(map[string]bool),
		referralRates:     make(map[string]fixed.Dec),
	}, nil
}

func (m *Market) Name() string { return m.name }

// OnCheckpoint registers a hook invoked for every account settlement step.
// Set once during wiring, before the market serves traffic.
func (m *Market) OnCheckpoint(hook CheckpointHook) { m.checkpointHook = hook }

func (m *Market) account(address string) *account {
	acc, ok := m.accounts[address]
	if !ok {
		acc = newAccount(address)
		m.accounts[address] = acc
	}
	return acc
}

func (m *Market) authorized(account, sender string) bool {
	if sender == account || m.extensions[sender] {
		return true
	}
	return m.operators[account][sender]
}

// intentSigner reports whether signer may sign intents for the account.
// Unlike the exported Signer it runs under the caller's lock, and an empty
// signer never authorizes anything.
func (m *Market) intentSigner(account, signer string) bool {
	if signer == "" {
		return false
	}
	return signer == account || m.signers[account][signer]
}

func (m *Market) referralRate(referrer string) fixed.Dec {
	if rate, ok := m.referralRates[referrer]; ok {
		return rate
	}
	return m.market.ReferralDefault
}

// Update settles the account to the latest committed version and enqueues a
// new order at the next oracle version.
func (m *Market) Update(now int64, req OrderRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.account(req.Account)
	m.settleAccount(acc)

	// Anyone may submit a protected order; everything else needs the
	// account's authority.
	if !req.Protect && !m.authorized(req.Account, req.Sender) {
		return ErrUnauthorized
	}

	if err := m.bindReferrer(acc, req.Referrer); err != nil {
		return err
	}

	ts := m.oracle.Current(now)
	o := state.NewOrder(ts, req.Maker, req.Long, req.Short, req.Collateral)
	if req.Protect {
		o.Protection = 1
	}
	if acc.referrer != "" && !o.PositionEmpty() {
		rate := m.referralRate(acc.referrer)
		o.TakerReferral = o.TakerTotal().Mul(rate)
		o.MakerReferral = o.MakerTotal().Mul(rate)
	}

	if err := m.checkUpdate(acc, o, nil, now); err != nil {
		return err
	}

	m.enqueue(acc, o, nil)
	if req.Protect {
		acc.liquidators[ts] = req.Sender
	}
	m.oracle.Request(ts)

	m.log.Debug().Str("account", req.Account).Int64("version", ts).
		Str("maker", req.Maker.String()).Str("long", req.Long.String()).
		Str("short", req.Short.String()).Str("collateral", req.Collateral.String()).
		Bool("protect", req.Protect).Msg("order enqueued")
	return nil
}

// UpdateIntent fills a signed intent: the account takes the intent side at
// the agreed price, the solver takes the exact opposite. Both legs settle at
// the same version; the price override is reconciled against the oracle price
// at settlement, so the pair nets to zero across the two accounts.
func (m *Market) UpdateIntent(now int64, in Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if in.Fee.Sign() < 0 || in.Fee > fixed.One {
		return ErrIntentFee
	}
	if in.Fee.Sign() > 0 && in.Originator == "" {
		return ErrIntentOriginator
	}
	if in.Price.Sign() <= 0 {
		return ErrIntentPrice
	}
	if in.Quantity.IsZero() {
		return nil
	}
	if !m.authorized(in.Solver, in.Sender) {
		return ErrUnauthorized
	}
	// Both legs need authority: the solver leg via the sender, the taker leg
	// via a registered signer or the sender's own standing for the account.
	if !m.intentSigner(in.Account, in.Signer) && !m.authorized(in.Account, in.Sender) {
		return ErrUnauthorized
	}

	taker := m.account(in.Account)
	solver := m.account(in.Solver)
	m.settleAccount(taker)
	m.settleAccount(solver)

	ts := m.oracle.Current(now)

	long, short := in.Quantity, fixed.Dec(0)
	if in.Quantity.Sign() < 0 {
		long, short = 0, in.Quantity.Neg()
	}
	takerOrder := state.NewOrder(ts, 0, long, short, 0)
	solverOrder := state.NewOrder(ts, 0, long.Neg(), short.Neg(), 0)

	qty := in.Quantity.Abs()
	feeVolume := qty
	if m.market.FeeExempt(in.Flow) {
		feeVolume = 0
	}
	takerGuarantee := state.NewGuarantee(in.Quantity, in.Price, feeVolume,
		state.Carveout{Address: in.Originator, Volume: qty.Mul(in.Fee)})
	solverGuarantee := state.NewGuarantee(in.Quantity.Neg(), in.Price, 0,
		state.Carveout{Address: in.Solver, Volume: qty.Mul(m.market.SolverReferral)})

	if err := m.checkUpdate(taker, takerOrder, solverOrder, now); err != nil {
		return err
	}
	if err := m.checkUpdate(solver, solverOrder, takerOrder, now); err != nil {
		return err
	}

	m.enqueue(taker, takerOrder, takerGuarantee)
	m.enqueue(solver, solverOrder, solverGuarantee)
	m.oracle.Request(ts)

	m.log.Debug().Str("account", in.Account).Str("solver", in.Solver).
		Int64("version", ts).Str("quantity", in.Quantity.String()).
		Str("price", in.Price.String()).Msg("intent enqueued")
	return nil
}

// bindReferrer pins the account's referrer on first use. A different referrer
// is rejected while the old binding is still live.
func (m *Market) bindReferrer(acc *account, referrer string) error {
	if referrer == "" || referrer == acc.referrer {
		return nil
	}
	if acc.referrer != "" {
		return ErrReferrerMismatch
	}
	acc.referrer = referrer
	return nil
}

// enqueue adds the order to both the account's and the market's pending sets,
// advancing the current ids for newly opened versions.
func (m *Market) enqueue(acc *account, o *state.Order, g *state.Guarantee) {
	ts := o.Timestamp

	if _, ok := acc.pending[ts]; !ok {
		acc.local.CurrentID++
	}
	acc.enqueue(o.Clone(), cloneGuarantee(g))

	if existing, ok := m.pendingOrders[ts]; ok {
		existing.Merge(o)
	} else {
		m.pendingOrders[ts] = o.Clone()
		m.pendingTimestamps = append(m.pendingTimestamps, ts)
		m.global.CurrentID++
	}
	if g != nil {
		if existing, ok := m.pendingGuarantees[ts]; ok {
			existing.Merge(g)
		} else {
			m.pendingGuarantees[ts] = g.Clone()
		}
	}
}

func cloneGuarantee(g *state.Guarantee) *state.Guarantee {
	if g == nil {
		return nil
	}
	return g.Clone()
}

// Claim drains the account's claimable fee balance.
func (m *Market) Claim(account, sender string) (fixed.Dec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authorized(account, sender) {
		return 0, ErrUnauthorized
	}
	acc := m.account(account)
	m.settleAccount(acc)
	return acc.local.Claim(), nil
}

// FeeKind selects a global fee accumulator.
type FeeKind int

const (
	ProtocolFee FeeKind = iota
	OracleFee
	RiskFee
)

// ClaimFee drains one of the global fee accumulators. Each accumulator is
// claimable only by its configured beneficiary.
func (m *Market) ClaimFee(sender string, kind FeeKind) (fixed.Dec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owner string
	var slot *fixed.Dec
	switch kind {
	case ProtocolFee:
		owner, slot = m.bens.Coordinator, &m.global.ProtocolFee
	case OracleFee:
		owner, slot = m.bens.OracleReceiver, &m.global.OracleFee
	case RiskFee:
		owner, slot = m.bens.RiskReceiver, &m.global.RiskFee
	default:
		return 0, ErrInvalidParameter
	}
	if sender != owner {
		return 0, ErrUnauthorized
	}
	out := *slot
	*slot = 0
	return out, nil
}

// ClaimExposure lets the coordinator withdraw the positive part of the
// adiabatic exposure pool. A negative pool has nothing to claim.
func (m *Market) ClaimExposure(sender string) (fixed.Dec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != m.bens.Coordinator {
		return 0, ErrUnauthorized
	}
	if m.global.Exposure.Sign() <= 0 {
		return 0, nil
	}
	out := m.global.Exposure
	m.global.Exposure = 0
	return out, nil
}

// UpdateOperator grants or revokes an operator's authority over the account.
func (m *Market) UpdateOperator(account, sender, operator string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != account {
		return ErrUnauthorized
	}
	if m.operators[account] == nil {
		m.operators[account] = make(map[string]bool)
	}
	m.operators[account][operator] = enabled
	return nil
}

// UpdateSigner grants or revokes a delegate signer for the account's intents.
func (m *Market) UpdateSigner(account, sender, signer string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != account {
		return ErrUnauthorized
	}
	if m.signers[account] == nil {
		m.signers[account] = make(map[string]bool)
	}
	m.signers[account][signer] = enabled
	return nil
}

// Signer reports whether signer may sign intents for the account.
func (m *Market) Signer(account, signer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return signer == account || m.signers[account][signer]
}

// UpdateExtension marks a protocol-wide operator. Coordinator only.
func (m *Market) UpdateExtension(sender, extension string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != m.bens.Coordinator {
		return ErrNotCoordinator
	}
	m.extensions[extension] = enabled
	return nil
}

// UpdateReferralRate overrides the referral cut for one referrer.
func (m *Market) UpdateReferralRate(sender, referrer string, rate fixed.Dec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != m.bens.Coordinator {
		return ErrNotCoordinator
	}
	if rate.Sign() < 0 || rate > fixed.One {
		return ErrInvalidParameter
	}
	m.referralRates[referrer] = rate
	return nil
}

// UpdateRiskParameter swaps the market's risk configuration.
func (m *Market) UpdateRiskParameter(sender string, risk params.RiskParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != m.bens.Coordinator {
		return ErrNotCoordinator
	}
	if err := risk.Validate(); err != nil {
		return err
	}
	m.risk = risk
	return nil
}

// UpdateMarketParameter swaps the market's fee-share configuration.
func (m *Market) UpdateMarketParameter(sender string, market params.MarketParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sender != m.bens.Coordinator {
		return ErrNotCoordinator
	}
	if err := market.Validate(); err != nil {
		return err
	}
	m.market = market
	return nil
}

// AccountSnapshot is a read-only view of an account for the API layer.
type AccountSnapshot struct {
	Address    string
	Collateral fixed.Dec
	Claimable  fixed.Dec
	Position   state.Position
	Local      state.Local
	Checkpoint state.Checkpoint
	Pending    int64
}

// Settle brings the account current against every committed version. It is
// idempotent; settling twice in a row is a no-op the second time.
func (m *Market) Settle(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleAccount(m.account(address))
}

// Account settles the account and returns its current snapshot.
func (m *Market) Account(address string) AccountSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc := m.account(address)
	m.settleAccount(acc)
	return AccountSnapshot{
		Address:    address,
		Collateral: acc.collateral,
		Claimable:  acc.local.Claimable,
		Position:   *acc.position.Clone(),
		Local:      acc.local,
		Checkpoint: acc.checkpoint,
		Pending:    acc.local.Pending(),
	}
}

// MarketSnapshot is a read-only view of the market for the API layer.
type MarketSnapshot struct {
	Name     string
	Global   state.Global
	Position state.Position
	Latest   state.Version
	Pending  int64
}

func (m *Market) Snapshot() MarketSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MarketSnapshot{
		Name:     m.name,
		Global:   m.global,
		Position: *m.position.Clone(),
		Latest:   m.latestVersion,
		Pending:  m.global.Pending(),
	}
}

// Version returns the committed version record at the timestamp.
func (m *Market) Version(ts int64) (state.Version, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.versions[ts]
	if !ok {
		return state.Version{}, false
	}
	return ctx.version, true
}

// versionAfter returns the first committed version at or after ts.
func (m *Market) versionAfter(ts int64) (*versionContext, int64, bool) {
	i := sort.Search(len(m.committed), func(i int) bool { return m.committed[i] >= ts })
	if i == len(m.committed) {
		return nil, 0, false
	}
	at := m.committed[i]
	return m.versions[at], at, true
}
