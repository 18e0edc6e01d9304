package data

import (
	"github.com/Will-Grindelwald/quant-trading/internal/types"
	"github.com/Will-Grindelwald/quant-trading/pkg/indicator"
	"github.com/shopspring/decimal"
)

// enrichSeries replays one chronological series through the indicator
// calculators and fills fields the upstream file left blank. Values already
// present are kept.
func enrichSeries(series []types.Bar) {
	ma5 := indicator.NewSMA(5)
	ma20 := indicator.NewSMA(20)
	ma60 := indicator.NewSMA(60)
	macd := indicator.NewMACD(12, 26, 9)
	rsi := indicator.NewRSI(14)
	boll := indicator.NewBOLL(20, 2)

	for i := range series {
		b := &series[i]
		c := b.Close

		setIfMissing(&b.MA5, ma5.Update(c), ma5.Ready())
		setIfMissing(&b.MA20, ma20.Update(c), ma20.Ready())
		setIfMissing(&b.MA60, ma60.Update(c), ma60.Ready())

		mv := macd.Update(c)
		setIfMissing(&b.MACDDIF, mv.DIF, macd.Ready())
		setIfMissing(&b.MACDDEA, mv.DEA, macd.Ready())
		setIfMissing(&b.MACDHist, mv.Histogram, macd.Ready())

		setIfMissing(&b.RSI14, rsi.Update(c), rsi.Ready())

		bands := boll.Update(c)
		setIfMissing(&b.BollUpper, bands.Upper, boll.Ready())
		setIfMissing(&b.BollLower, bands.Lower, boll.Ready())
	}
}

func setIfMissing(field **decimal.Decimal, value decimal.Decimal, ready bool) {
	if *field != nil || !ready {
		return
	}
	v := value
	*field = &v
}
