package geo

import "math"

// MaxMercatorLat is the latitude where the Web Mercator square ends.
const MaxMercatorLat = 85.05112878

// LonLatToWorld projects WGS84 longitude/latitude to Web Mercator world
// coordinates in [0,1], x growing east and y growing south.
func LonLatToWorld(lon, lat float64) (x, y float64) {
	if lat > MaxMercatorLat {
		lat = MaxMercatorLat
	} else if lat < -MaxMercatorLat {
		lat = -MaxMercatorLat
	}

	x = (lon + 180.0) / 360.0

	latRad := lat * math.Pi / 180.0
	mercatorY := math.Log(math.Tan(math.Pi/4 + latRad/2))
	y = 0.5 - mercatorY/(2*math.Pi)

	return x, y
}
