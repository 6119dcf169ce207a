package indicators

// RSI returns an unsmoothed Relative Strength Index over the trailing
// period. 100 means every bar in the window gained; 0 means every bar lost;
// 0 is also returned when there is not enough history.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}

	window := values[len(values)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		switch {
		case delta > 0:
			gains += delta
		case delta < 0:
			losses -= delta
		}
	}

	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}
