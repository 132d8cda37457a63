package selection

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"bayesian-melody-predictor/internal/ml"
)

// forecastCache keeps recent forecasts keyed by the exact seed window and
// horizon. When full, the oldest entry is evicted.
type forecastCache struct {
	mu      sync.RWMutex
	entries map[string]cachedForecast
	maxSize int
}

type cachedForecast struct {
	forecast  ml.Forecast
	createdAt time.Time
}

func newForecastCache(maxSize int) *forecastCache {
	return &forecastCache{
		entries: make(map[string]cachedForecast),
		maxSize: maxSize,
	}
}

// forecastKey encodes the float bits of window and the horizon, so only
// bit-identical seeds share an entry.
func forecastKey(window []float64, horizon int) string {
	buf := make([]byte, 8*(len(window)+1))
	binary.LittleEndian.PutUint64(buf, uint64(horizon))
	for i, v := range window {
		binary.LittleEndian.PutUint64(buf[8*(i+1):], math.Float64bits(v))
	}
	return string(buf)
}

func (c *forecastCache) get(key string) (ml.Forecast, bool) {
	if c.maxSize <= 0 {
		return ml.Forecast{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return e.forecast, ok
}

func (c *forecastCache) put(key string, f ml.Forecast) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range c.entries {
			if oldestKey == "" || v.createdAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.createdAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = cachedForecast{forecast: f, createdAt: time.Now()}
}

func (c *forecastCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *forecastCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedForecast)
}
