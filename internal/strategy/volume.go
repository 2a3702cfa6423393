package strategy

const (
	marketCloseHour = 16
	tradingDayHours = 6.5
)

// ProjectVolume extrapolates end-of-session volume from the volume traded so
// far and the hour of the last trade. Hours 1-3 are read as 13-15, since feeds
// report afternoon times on a 12-hour clock. Minutes are ignored.
func ProjectVolume(volume float64, hour int) float64 {
	switch hour {
	case 1, 2, 3:
		hour += 12
	}
	hoursLeft := marketCloseHour - hour
	return volume + volume*(float64(hoursLeft)/tradingDayHours)
}
