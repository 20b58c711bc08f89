package symbol

import "github.com/alanyoungcy/tradecore/internal/domain"

// Observer receives everything an Orchestrator emits. Calls arrive on
// internal goroutines: execution reports under the simulator lock, market
// data on the feed goroutine. Implementations must return quickly and must
// not call back into the orchestrator's order methods.
type Observer interface {
	OnExecutionReport(report domain.ExecutionReport)
	OnMarketData(update domain.MarketDataUpdate)
	OnRiskReject(order domain.NewOrder)
	OnStreamTerminated(symbol string, err error)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	ExecutionReport  func(domain.ExecutionReport)
	MarketData       func(domain.MarketDataUpdate)
	RiskReject       func(domain.NewOrder)
	StreamTerminated func(symbol string, err error)
}

func (f ObserverFuncs) OnExecutionReport(r domain.ExecutionReport) {
	if f.ExecutionReport != nil {
		f.ExecutionReport(r)
	}
}

func (f ObserverFuncs) OnMarketData(u domain.MarketDataUpdate) {
	if f.MarketData != nil {
		f.MarketData(u)
	}
}

func (f ObserverFuncs) OnRiskReject(o domain.NewOrder) {
	if f.RiskReject != nil {
		f.RiskReject(o)
	}
}

func (f ObserverFuncs) OnStreamTerminated(symbol string, err error) {
	if f.StreamTerminated != nil {
		f.StreamTerminated(symbol, err)
	}
}
