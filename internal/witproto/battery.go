package witproto

// batterySteps maps a minimum centivolt reading to a charge percentage.
// Ordered from highest threshold down; the device calibration curve.
var batterySteps = []struct {
	minCentivolts uint16
	percent       int
}{
	{396, 100},
	{393, 90},
	{387, 75},
	{382, 60},
	{379, 50},
	{377, 40},
	{373, 30},
	{370, 20},
	{368, 15},
	{350, 10},
	{340, 5},
}

// BatteryPercent converts a raw centivolt reading to the stepped charge estimate.
func BatteryPercent(centivolts uint16) int {
	for _, s := range batterySteps {
		if centivolts >= s.minCentivolts {
			return s.percent
		}
	}
	return 0
}
