package serverlist

// DefaultPrimary and DefaultSatellite are the baked-in ByteBlaster endpoint
// lists used when no server-list file exists yet (first run) or the
// existing one fails to load (spec.md §4.6).
var (
	DefaultPrimary = []Endpoint{
		{Host: "emwin.weather.gov", Port: 2211},
		{Host: "weather.noaa.gov", Port: 2211},
	}
	DefaultSatellite = []Endpoint{
		{Host: "emwin-sat.weather.gov", Port: 2211},
	}
)
