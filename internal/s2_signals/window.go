package s2_signals

import (
	"github.com/wonny/aegis-index/internal/contracts"
)

// assetWindow is one asset's available history inside the lookback window
type assetWindow struct {
	AssetID string
	Closes  []float64 // 가용 시점 종가 (오래된 순)
	Volumes []float64 // 관측된 거래량만
	Returns []float64 // 윈도우 시작 이후 일간 수익률
}

// Last returns the most recent close in the window
func (w *assetWindow) Last() float64 {
	return w.Closes[len(w.Closes)-1]
}

// windowBounds returns the calendar slice [start, dateIdx] covered by lookback
func windowBounds(dateIdx, lookback int) int {
	start := dateIdx - lookback
	if start < 0 {
		return 0
	}
	return start
}

// extractWindow collects the available points of series in [start, end]
func extractWindow(series *contracts.CleanedSeries, start, end int) *assetWindow {
	w := &assetWindow{AssetID: series.AssetID}
	first := true
	for i := start; i <= end && i < len(series.Points); i++ {
		pt := series.Points[i]
		if !pt.Available() {
			continue
		}
		w.Closes = append(w.Closes, pt.Close)
		if pt.Status == contracts.StatusObserved && pt.Volume != nil {
			w.Volumes = append(w.Volumes, *pt.Volume)
		}
		// 첫 가용 시점의 수익률은 윈도우 밖 가격 기준이므로 제외
		if !first && pt.HasReturn {
			w.Returns = append(w.Returns, pt.Return)
		}
		first = false
	}
	return w
}
