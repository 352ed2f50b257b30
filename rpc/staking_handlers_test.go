package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/config"
	"stakevault/core/token"
	"stakevault/native/staking"
	"stakevault/state"
	"stakevault/storage"
)

const testAuthToken = "test-operator-token"

var (
	testVault     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testMarketing = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testAlice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
)

type testClock struct {
	now uint64
}

func (c *testClock) Now() uint64 { return c.now }

type testEnv struct {
	server  *Server
	handler http.Handler
	manager *state.Manager
	ledger  *token.Ledger
	engine  *staking.Engine
	clock   *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := token.NewLedger(manager, testVault)
	engine := staking.NewEngine(testVault, ledger)
	engine.SetState(manager)
	clock := &testClock{now: 1_700_000_000}
	engine.SetClock(clock)

	if err := manager.PutFeeParams(&staking.FeeParams{
		EarlyWithdrawFee: 10,
		MarketingAddress: testMarketing,
	}); err != nil {
		t.Fatalf("seed fee params: %v", err)
	}

	server := NewServer(engine, manager, nil, ServerConfig{AuthToken: testAuthToken})
	return &testEnv{
		server:  server,
		handler: server.Handler(),
		manager: manager,
		ledger:  ledger,
		engine:  engine,
		clock:   clock,
	}
}

func (env *testEnv) addPool(t *testing.T, aprBps, lockDays uint64) uint64 {
	t.Helper()
	pid, err := env.engine.AddPool(aprBps, lockDays)
	if err != nil {
		t.Fatalf("add pool: %v", err)
	}
	env.manager.DrainEvents()
	return pid
}

func (env *testEnv) mint(t *testing.T, addr common.Address, amount *big.Int) {
	t.Helper()
	if err := env.ledger.Mint(addr, amount); err != nil {
		t.Fatalf("mint: %v", err)
	}
}

func (env *testEnv) call(t *testing.T, method string, params interface{}, authToken string) (int, *RPCResponse) {
	t.Helper()
	envelope := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		envelope["params"] = []interface{}{params}
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func resultMap(t *testing.T, resp *RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
	out, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	return out
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestDepositOverRPC(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)
	env.mint(t, testAlice, tokens(100))

	status, resp := env.call(t, "stake_deposit", map[string]interface{}{
		"caller": testAlice.Hex(),
		"poolId": pid,
		"amount": tokens(100).String(),
	}, "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	result := resultMap(t, resp)
	if result["amount"] != tokens(100).String() {
		t.Fatalf("expected echoed amount, got %v", result["amount"])
	}

	if got := env.ledger.BalanceOf(testVault); got.Cmp(tokens(100)) != 0 {
		t.Fatalf("expected vault to hold the deposit, got %s", got)
	}

	_, resp = env.call(t, "stake_position", map[string]interface{}{
		"poolId":  pid,
		"address": testAlice.Hex(),
	}, "")
	position := resultMap(t, resp)
	if position["depositAmount"] != tokens(100).String() {
		t.Fatalf("expected persisted deposit, got %v", position["depositAmount"])
	}
}

func TestDepositValidationOverRPC(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)

	status, resp := env.call(t, "stake_deposit", map[string]interface{}{
		"caller": "not-an-address",
		"poolId": pid,
		"amount": "100",
	}, "")
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got status=%d error=%+v", status, resp.Error)
	}

	status, resp = env.call(t, "stake_deposit", map[string]interface{}{
		"caller": testAlice.Hex(),
		"poolId": pid + 1,
		"amount": "100",
	}, "")
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected pool validation rejection, got status=%d error=%+v", status, resp.Error)
	}
}

func TestFailedCallRollsBackSettlement(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)

	funder := common.HexToAddress("0x00000000000000000000000000000000000000fd")
	env.mint(t, funder, tokens(1000))
	if err := env.engine.AddRewardTokens(funder, tokens(1000)); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}
	env.manager.DrainEvents()

	env.mint(t, testAlice, tokens(100))
	if err := env.engine.Deposit(testAlice, pid, tokens(100)); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}
	env.manager.DrainEvents()

	// A year accrues 15 tokens of pending reward for alice.
	env.clock.now += 365 * 24 * 60 * 60
	pendingBefore, err := env.engine.PendingReward(pid, testAlice)
	if err != nil {
		t.Fatalf("pending reward: %v", err)
	}
	if pendingBefore.Sign() == 0 {
		t.Fatalf("test needs accrued reward")
	}
	reserveBefore, err := env.engine.RewardReserve()
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// The top-up settles first, paying the reward, then fails pulling the
	// principal. Everything must roll back, the paid reward included.
	status, resp := env.call(t, "stake_deposit", map[string]interface{}{
		"caller": testAlice.Hex(),
		"poolId": pid,
		"amount": tokens(100).String(),
	}, "")
	if status != http.StatusInternalServerError || resp.Error == nil {
		t.Fatalf("expected transfer failure, got status=%d error=%+v", status, resp.Error)
	}

	if got := env.ledger.BalanceOf(testAlice); got.Sign() != 0 {
		t.Fatalf("expected settlement rolled back, alice holds %s", got)
	}
	reserveAfter, err := env.engine.RewardReserve()
	if err != nil {
		t.Fatalf("reserve after: %v", err)
	}
	if reserveAfter.Cmp(reserveBefore) != 0 {
		t.Fatalf("expected reserve restored to %s, got %s", reserveBefore, reserveAfter)
	}
	pendingAfter, err := env.engine.PendingReward(pid, testAlice)
	if err != nil {
		t.Fatalf("pending after: %v", err)
	}
	if pendingAfter.Cmp(pendingBefore) != 0 {
		t.Fatalf("expected claim preserved at %s, got %s", pendingBefore, pendingAfter)
	}
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)
	params := map[string]interface{}{"aprBps": 1500, "lockDays": 0}

	status, resp := env.call(t, "stake_addPool", params, "")
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got status=%d error=%+v", status, resp.Error)
	}

	status, resp = env.call(t, "stake_addPool", params, "wrong-token")
	if status != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with wrong token, got status=%d error=%+v", status, resp.Error)
	}

	status, resp = env.call(t, "stake_addPool", params, testAuthToken)
	if status != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d (%+v)", status, resp.Error)
	}
	result := resultMap(t, resp)
	if result["poolId"] != float64(0) {
		t.Fatalf("expected first pool id 0, got %v", result["poolId"])
	}
}

func TestAdminValidationOverRPC(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.call(t, "stake_setEarlyWithdrawFee", map[string]interface{}{
		"feePct": staking.MaxEarlyWithdrawFee + 1,
	}, testAuthToken)
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected fee bound rejection, got status=%d error=%+v", status, resp.Error)
	}

	status, resp = env.call(t, "stake_recoverTreasure", map[string]interface{}{
		"to": testAlice.Hex(),
	}, testAuthToken)
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected empty-reserve rejection, got status=%d error=%+v", status, resp.Error)
	}
}

func TestReadMethods(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)
	env.addPool(t, 3000, 30)
	env.mint(t, testAlice, tokens(100))
	if err := env.engine.Deposit(testAlice, pid, tokens(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	env.manager.DrainEvents()

	_, resp := env.call(t, "stake_pools", nil, "")
	if resp.Error != nil {
		t.Fatalf("pools: %+v", resp.Error)
	}
	pools, ok := resp.Result.([]interface{})
	if !ok || len(pools) != 2 {
		t.Fatalf("expected two pools, got %v", resp.Result)
	}

	_, resp = env.call(t, "stake_poolCount", nil, "")
	count := resultMap(t, resp)
	if count["count"] != float64(2) {
		t.Fatalf("expected pool count 2, got %v", count["count"])
	}

	_, resp = env.call(t, "stake_pool", map[string]interface{}{"poolId": pid}, "")
	pool := resultMap(t, resp)
	if pool["totalDeposit"] != tokens(100).String() {
		t.Fatalf("expected total deposit reflected, got %v", pool["totalDeposit"])
	}

	env.clock.now += 3600
	_, resp = env.call(t, "stake_pendingReward", map[string]interface{}{
		"poolId":  pid,
		"address": testAlice.Hex(),
	}, "")
	pending := resultMap(t, resp)
	want := new(big.Int).Mul(tokens(100), big.NewInt(1500))
	want.Mul(want, big.NewInt(3600))
	want.Quo(want, new(big.Int).Mul(big.NewInt(10_000), big.NewInt(31_536_000)))
	if pending["pending"] != want.String() {
		t.Fatalf("expected pending %s, got %v", want, pending["pending"])
	}

	_, resp = env.call(t, "stake_reserve", nil, "")
	reserve := resultMap(t, resp)
	if reserve["reserve"] != "0" {
		t.Fatalf("expected empty reserve, got %v", reserve["reserve"])
	}

	_, resp = env.call(t, "stake_timeToEmpty", nil, "")
	horizon := resultMap(t, resp)
	if horizon["seconds"] != "0" {
		t.Fatalf("expected zero horizon with empty reserve, got %v", horizon["seconds"])
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "stake_unknown", nil, "")
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got status=%d error=%+v", status, resp.Error)
	}
}

func TestReadsWaitForInFlightMutation(t *testing.T) {
	env := newTestEnv(t)

	// Hold the write side the way an in-flight state-changing call does;
	// reads must not observe the open overlay mid-call.
	env.server.callMu.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"stake_reserve"}`)
		req := httptest.NewRequest(http.MethodPost, "/", body)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
	}()

	select {
	case <-done:
		env.server.callMu.Unlock()
		t.Fatalf("read completed while a state-changing call was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	env.server.callMu.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("read never completed after the call finished")
	}
}

func TestMutationRateLimit(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)

	// Harvesting an empty position succeeds and counts against the window.
	for i := 0; i < maxTxPerWindow; i++ {
		status, resp := env.call(t, "stake_harvest", map[string]interface{}{
			"caller": testAlice.Hex(),
			"poolId": pid,
		}, "")
		if status != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d (%+v)", i, status, resp.Error)
		}
	}

	status, resp := env.call(t, "stake_harvest", map[string]interface{}{
		"caller": testAlice.Hex(),
		"poolId": pid,
	}, "")
	if status != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit, got status=%d error=%+v", status, resp.Error)
	}
}

func TestConfigPauseBlocksOverRPC(t *testing.T) {
	env := newTestEnv(t)
	pid := env.addPool(t, 1500, 0)
	env.mint(t, testAlice, tokens(1))

	pauses := config.PauseSet{"staking": {}}
	env.engine.SetPauses(pauses)

	status, resp := env.call(t, "stake_deposit", map[string]interface{}{
		"caller": testAlice.Hex(),
		"poolId": pid,
		"amount": tokens(1).String(),
	}, "")
	if status != http.StatusServiceUnavailable || resp.Error == nil {
		t.Fatalf("expected paused rejection, got status=%d error=%+v", status, resp.Error)
	}
}

func TestParseHelpers(t *testing.T) {
	if _, err := parseAddress("caller", "0xZZ"); err == nil {
		t.Fatalf("expected invalid address error")
	}
	addr, err := parseAddress("caller", fmt.Sprintf("  %s  ", testAlice.Hex()))
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	if addr != testAlice {
		t.Fatalf("expected trimmed address to parse")
	}

	if _, err := parseAmount("amount", "12.5"); err == nil {
		t.Fatalf("expected invalid amount error")
	}
	amount, err := parseAmount("amount", " 42 ")
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	if amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected 42, got %s", amount)
	}
}
