package strategy

// SMA buys when price is above the 50-day average with no position and
// sells the position when price drops below it.
type SMA struct{}

func (SMA) Name() string {
	return "sma"
}

func (s SMA) Decide(snapshot MarketSnapshot) TradeIntent {
	close := snapshot.Quote.LastPrice
	avg := snapshot.Quote.FiftyDayAvg
	if snapshot.PositionQty == 0 && close > avg {
		return TradeIntent{
			Action: Buy,
			Reason: "close_above_sma",
		}
	}
	if snapshot.PositionQty > 0 && close < avg {
		return TradeIntent{
			Action: Sell,
			Qty:    snapshot.PositionQty,
			Reason: "close_below_sma",
		}
	}
	return TradeIntent{Action: Hold, Reason: "no_signal"}
}
