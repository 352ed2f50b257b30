package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"stakevault/native/staking"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("%s expects exactly one params object", req.Method)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid %s address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: expected base-10 integer", field)
	}
	return amount, nil
}

// poolResult is the wire form of a pool record. Big integers travel as
// base-10 strings so clients never lose precision to JSON numbers.
type poolResult struct {
	PoolID       uint64 `json:"poolId"`
	AprBps       uint64 `json:"aprBps"`
	LockPeriod   uint64 `json:"lockPeriod"`
	TotalDeposit string `json:"totalDeposit"`
	AccIndex     string `json:"accIndex"`
	LastUpdate   uint64 `json:"lastUpdate"`
}

func newPoolResult(pid uint64, pool *staking.Pool) poolResult {
	return poolResult{
		PoolID:       pid,
		AprBps:       pool.AprBps,
		LockPeriod:   pool.LockPeriod,
		TotalDeposit: pool.TotalDeposit.String(),
		AccIndex:     pool.AccIndex.String(),
		LastUpdate:   pool.LastUpdate,
	}
}

// positionResult is the wire form of a position record.
type positionResult struct {
	Address         string `json:"address"`
	DepositAmount   string `json:"depositAmount"`
	RewardDebt      string `json:"rewardDebt"`
	RewardLockedUp  string `json:"rewardLockedUp"`
	LastInteraction uint64 `json:"lastInteraction"`
	LastDeposit     uint64 `json:"lastDeposit"`
}

func newPositionResult(pos *staking.Position) positionResult {
	return positionResult{
		Address:         pos.Address.Hex(),
		DepositAmount:   pos.DepositAmount.String(),
		RewardDebt:      pos.RewardDebt.String(),
		RewardLockedUp:  pos.RewardLockedUp.String(),
		LastInteraction: pos.LastInteraction,
		LastDeposit:     pos.LastDeposit,
	}
}

type depositParams struct {
	Caller string `json:"caller"`
	PoolID uint64 `json:"poolId"`
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		if err := s.engine.Deposit(caller, params.PoolID, amount); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"poolId": params.PoolID,
			"amount": amount.String(),
		}, nil
	})
}

type positionCallParams struct {
	Caller string `json:"caller"`
	PoolID uint64 `json:"poolId"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params positionCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		paid, err := s.engine.Withdraw(caller, params.PoolID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"poolId": params.PoolID,
			"paid":   paid.String(),
		}, nil
	})
}

func (s *Server) handleHarvest(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params positionCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		paid, err := s.engine.Harvest(caller, params.PoolID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"poolId": params.PoolID,
			"paid":   paid.String(),
		}, nil
	})
}

type addRewardTokensParams struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

func (s *Server) handleAddRewardTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addRewardTokensParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	from, err := parseAddress("from", params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		if err := s.engine.AddRewardTokens(from, amount); err != nil {
			return nil, err
		}
		reserve, err := s.engine.RewardReserve()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"funded":  amount.String(),
			"reserve": reserve.String(),
		}, nil
	})
}

type addPoolParams struct {
	AprBps   uint64 `json:"aprBps"`
	LockDays uint64 `json:"lockDays"`
}

func (s *Server) handleAddPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addPoolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		pid, err := s.engine.AddPool(params.AprBps, params.LockDays)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"poolId": pid}, nil
	})
}

type editPoolParams struct {
	PoolID   uint64 `json:"poolId"`
	AprBps   uint64 `json:"aprBps"`
	LockDays uint64 `json:"lockDays"`
}

func (s *Server) handleEditPool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params editPoolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		if err := s.engine.EditPool(params.PoolID, params.AprBps, params.LockDays); err != nil {
			return nil, err
		}
		return map[string]interface{}{"poolId": params.PoolID}, nil
	})
}

type setFeeParams struct {
	FeePct uint64 `json:"feePct"`
}

func (s *Server) handleSetEarlyWithdrawFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		if err := s.engine.SetEarlyWithdrawFee(params.FeePct); err != nil {
			return nil, err
		}
		return map[string]interface{}{"feePct": params.FeePct}, nil
	})
}

type setMarketingParams struct {
	Address string `json:"address"`
}

func (s *Server) handleSetMarketingAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setMarketingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("marketing", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		if err := s.engine.SetMarketingAddress(addr); err != nil {
			return nil, err
		}
		return map[string]interface{}{"address": addr.Hex()}, nil
	})
}

type recoverTreasureParams struct {
	To string `json:"to"`
}

func (s *Server) handleRecoverTreasure(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params recoverTreasureParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress("destination", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.execute(w, req.ID, req.Method, func() (interface{}, error) {
		recovered, err := s.engine.RecoverTreasure(to)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"to":        to.Hex(),
			"recovered": recovered.String(),
		}, nil
	})
}

type positionQueryParams struct {
	PoolID  uint64 `json:"poolId"`
	Address string `json:"address"`
}

func (s *Server) handlePendingReward(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params positionQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pending, err := s.engine.PendingReward(params.PoolID, addr)
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, map[string]interface{}{"pending": pending.String()})
}

type poolQueryParams struct {
	PoolID uint64 `json:"poolId"`
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params poolQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pool, err := s.engine.PoolInfo(params.PoolID)
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, newPoolResult(params.PoolID, pool))
}

func (s *Server) handlePools(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	pools, err := s.engine.Pools()
	if err != nil {
		s.readError(w, req, err)
		return
	}
	results := make([]poolResult, len(pools))
	for pid, pool := range pools {
		results[pid] = newPoolResult(uint64(pid), pool)
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, results)
}

func (s *Server) handlePosition(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params positionQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	pos, err := s.engine.PositionInfo(params.PoolID, addr)
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, newPositionResult(pos))
}

func (s *Server) handlePoolCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.engine.PoolCount()
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, map[string]interface{}{"count": count})
}

func (s *Server) handleTimeToEmpty(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	seconds, err := s.engine.TimeToEmpty()
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, map[string]interface{}{"seconds": seconds.String()})
}

func (s *Server) handleReserve(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	reserve, err := s.engine.RewardReserve()
	if err != nil {
		s.readError(w, req, err)
		return
	}
	s.metrics.ObserveRPC(req.Method, "ok")
	writeResult(w, req.ID, map[string]interface{}{"reserve": reserve.String()})
}

func (s *Server) readError(w http.ResponseWriter, req *RPCRequest, err error) {
	s.metrics.ObserveRPC(req.Method, "error")
	status, code := errorCode(err)
	writeError(w, status, req.ID, code, err.Error(), nil)
}
