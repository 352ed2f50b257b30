package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics groups the counters exported by the staking vault.
type StakingMetrics struct {
	depositsTotal    *prometheus.CounterVec
	withdrawalsTotal *prometheus.CounterVec
	rewardPaid       prometheus.Counter
	penaltiesTotal   prometheus.Counter
	reserveLevel     prometheus.Gauge
	rpcRequests      *prometheus.CounterVec
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the process-wide staking metrics registry.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			depositsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_deposits_total",
				Help: "Count of accepted deposits by pool.",
			}, []string{"pool"}),
			withdrawalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_withdrawals_total",
				Help: "Count of withdrawals by maturity at exit.",
			}, []string{"maturity"}),
			rewardPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_reward_paid_total",
				Help: "Cumulative reward paid out of the reserve, in asset units.",
			}),
			penaltiesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_early_withdraw_penalties_total",
				Help: "Cumulative principal withheld as early-withdrawal penalties.",
			}),
			reserveLevel: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_reward_reserve",
				Help: "Current reward reserve available for payouts.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_rpc_requests_total",
				Help: "Count of JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
		}
		prometheus.MustRegister(
			stakingRegistry.depositsTotal,
			stakingRegistry.withdrawalsTotal,
			stakingRegistry.rewardPaid,
			stakingRegistry.penaltiesTotal,
			stakingRegistry.reserveLevel,
			stakingRegistry.rpcRequests,
		)
	})
	return stakingRegistry
}

// ObserveDeposit counts a successful deposit into the given pool.
func (m *StakingMetrics) ObserveDeposit(pid uint64) {
	if m == nil {
		return
	}
	m.depositsTotal.WithLabelValues(strconv.FormatUint(pid, 10)).Inc()
}

// ObserveWithdrawal counts a withdrawal, labelled early or mature.
func (m *StakingMetrics) ObserveWithdrawal(early bool) {
	if m == nil {
		return
	}
	maturity := "mature"
	if early {
		maturity = "early"
	}
	m.withdrawalsTotal.WithLabelValues(maturity).Inc()
}

// AddRewardPaid accumulates reward paid out of the reserve.
func (m *StakingMetrics) AddRewardPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardPaid.Add(bigToFloat(amount))
}

// AddPenalty accumulates early-withdrawal penalties withheld.
func (m *StakingMetrics) AddPenalty(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.penaltiesTotal.Add(bigToFloat(amount))
}

// SetReserve records the current reserve level.
func (m *StakingMetrics) SetReserve(amount *big.Int) {
	if m == nil {
		return
	}
	if amount == nil {
		m.reserveLevel.Set(0)
		return
	}
	m.reserveLevel.Set(bigToFloat(amount))
}

// ObserveRPC counts a JSON-RPC request outcome.
func (m *StakingMetrics) ObserveRPC(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

func bigToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
