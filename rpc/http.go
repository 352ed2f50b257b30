package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stakevault/core/events"
	"stakevault/core/types"
	"stakevault/native/common"
	"stakevault/native/staking"
	"stakevault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	rateLimitWindow = time.Minute
	maxTxPerWindow  = 30
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// CallState is the slice of the state manager the transport needs: the
// per-call transaction boundary and the event buffer. Running every mutating
// call inside Begin/Commit keeps engine calls all-or-nothing.
type CallState interface {
	Begin()
	Commit() error
	Abort()
	DrainEvents() []*types.Event
}

// Server exposes the staking engine over JSON-RPC 2.0.
type Server struct {
	engine  *staking.Engine
	state   CallState
	logger  *slog.Logger
	metrics *metrics.StakingMetrics

	authToken string

	// callMu serialises state-changing calls: the engine's execution model
	// is single-threaded per call with no interleaving. Reads take the
	// shared side so they never observe an open write overlay.
	callMu sync.RWMutex

	mu           sync.Mutex
	rateLimiters map[string]*rate.Limiter
}

// ServerConfig carries the transport-level settings.
type ServerConfig struct {
	// AuthToken gates the admin methods. Empty disables them entirely.
	AuthToken string
}

// NewServer wires the RPC surface to the engine and its state manager.
func NewServer(engine *staking.Engine, state CallState, logger *slog.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:       engine,
		state:        state,
		logger:       logger,
		metrics:      metrics.Staking(),
		authToken:    strings.TrimSpace(cfg.AuthToken),
		rateLimiters: make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP handler serving the RPC endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	return mux
}

// Start serves the RPC endpoint on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest is the JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	handler, ok := s.routes()[req.Method]
	if !ok {
		s.metrics.ObserveRPC(req.Method, "not_found")
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	handler(w, r, &req)
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		// State-changing, caller-facing.
		"stake_deposit":         s.mutating(s.handleDeposit),
		"stake_withdraw":        s.mutating(s.handleWithdraw),
		"stake_harvest":         s.mutating(s.handleHarvest),
		"stake_addRewardTokens": s.mutating(s.handleAddRewardTokens),
		// State-changing, operator-only.
		"stake_addPool":              s.admin(s.handleAddPool),
		"stake_editPool":             s.admin(s.handleEditPool),
		"stake_setEarlyWithdrawFee":  s.admin(s.handleSetEarlyWithdrawFee),
		"stake_setMarketingAddress":  s.admin(s.handleSetMarketingAddress),
		"stake_recoverTreasure":      s.admin(s.handleRecoverTreasure),
		// Read-only.
		"stake_pendingReward": s.readonly(s.handlePendingReward),
		"stake_pool":          s.readonly(s.handlePool),
		"stake_pools":         s.readonly(s.handlePools),
		"stake_poolCount":     s.readonly(s.handlePoolCount),
		"stake_position":      s.readonly(s.handlePosition),
		"stake_timeToEmpty":   s.readonly(s.handleTimeToEmpty),
		"stake_reserve":       s.readonly(s.handleReserve),
	}
}

func (s *Server) mutating(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		if !s.allowMutation(clientKey(r)) {
			s.metrics.ObserveRPC(req.Method, "rate_limited")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		s.callMu.Lock()
		defer s.callMu.Unlock()
		next(w, r, req)
	}
}

func (s *Server) readonly(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		s.callMu.RLock()
		defer s.callMu.RUnlock()
		next(w, r, req)
	}
}

func (s *Server) admin(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		if err := s.requireAuth(r); err != nil {
			s.metrics.ObserveRPC(req.Method, "unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
			return
		}
		s.callMu.Lock()
		defer s.callMu.Unlock()
		next(w, r, req)
	}
}

func (s *Server) requireAuth(r *http.Request) error {
	if s.authToken == "" {
		return errors.New("admin methods disabled: no auth token configured")
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return errors.New("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) || strings.TrimSpace(header[len(prefix):]) != s.authToken {
		return errors.New("invalid bearer token")
	}
	return nil
}

func (s *Server) allowMutation(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.rateLimiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rateLimitWindow/maxTxPerWindow), maxTxPerWindow)
		s.rateLimiters[key] = limiter
	}
	return limiter.Allow()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorCode maps engine errors onto JSON-RPC codes. Validation rejections
// are the caller's fault; transfer failures and pauses are server-side.
func errorCode(err error) (int, int) {
	switch {
	case errors.Is(err, staking.ErrInvalidPoolID),
		errors.Is(err, staking.ErrInsufficientDepositAmount),
		errors.Is(err, staking.ErrInvalidAmount),
		errors.Is(err, staking.ErrInvalidPoolAPR),
		errors.Is(err, staking.ErrInvalidWithdrawLockPeriod),
		errors.Is(err, staking.ErrInvalidEarlyWithdrawFee),
		errors.Is(err, staking.ErrInvalidSettings):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable, codeServerError
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// execute runs a state-changing engine call inside a transaction, writing
// the JSON-RPC result or mapping the error.
func (s *Server) execute(w http.ResponseWriter, id interface{}, method string, fn func() (interface{}, error)) {
	s.state.Begin()
	result, err := fn()
	if err != nil {
		s.state.Abort()
		s.metrics.ObserveRPC(method, "error")
		status, code := errorCode(err)
		writeError(w, status, id, code, err.Error(), nil)
		return
	}
	if err := s.state.Commit(); err != nil {
		s.metrics.ObserveRPC(method, "error")
		s.logger.Error("state commit failed", "method", method, "error", err)
		writeError(w, http.StatusInternalServerError, id, codeServerError, "state commit failed", nil)
		return
	}
	s.finishCall(method)
	writeResult(w, id, result)
}

// finishCall drains events buffered during a successful call, logs them and
// feeds the metrics that can be derived from them.
func (s *Server) finishCall(method string) {
	s.metrics.ObserveRPC(method, "ok")
	for _, evt := range s.state.DrainEvents() {
		attrs := make([]any, 0, 2*len(evt.Attributes)+1)
		attrs = append(attrs, slog.String("type", evt.Type))
		for k, v := range evt.Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
		s.logger.Info("event", attrs...)
		s.observeEvent(evt)
	}
	if reserve, err := s.engine.RewardReserve(); err == nil {
		s.metrics.SetReserve(reserve)
	}
}

func (s *Server) observeEvent(evt *types.Event) {
	switch evt.Type {
	case events.TypeStakeDeposited:
		if pid, err := strconv.ParseUint(evt.Attributes["poolId"], 10, 64); err == nil {
			s.metrics.ObserveDeposit(pid)
		}
	case events.TypeStakeWithdrawn:
		s.metrics.ObserveWithdrawal(evt.Attributes["early"] == "true")
		if raw, ok := evt.Attributes["penalty"]; ok {
			if penalty, ok := new(big.Int).SetString(raw, 10); ok {
				s.metrics.AddPenalty(penalty)
			}
		}
	case events.TypeStakeRewardPaid:
		if raw, ok := evt.Attributes["amount"]; ok {
			if amount, ok := new(big.Int).SetString(raw, 10); ok {
				s.metrics.AddRewardPaid(amount)
			}
		}
	}
}
