package sigdaq

import "sync"

// cacheField names one independently-valid entry in the configuration
// cache.
type cacheField int

const (
	cacheVoltageRange cacheField = iota
	cacheOffset
	cacheEnabled
	cacheDeskew
	cacheProbeActive
	cacheDisplayName
	cacheSampleRate
	cacheMemoryDepth
	cacheTriggerOffset
	cacheTrigger
)

// mutation names one configuration write that can invalidate cache fields.
type mutation int

const (
	mutateSampleRate mutation = iota
	mutateMemoryDepth
	mutateTriggerOffset
	mutateInterleave
)

// invalidatedBy is the single table of cache-invalidation rules. A write
// invalidates (rather than updates) a field when the instrument may round
// or rescale the requested value, and toggling interleaving invalidates
// the fields whose value depends on it.
var invalidatedBy = map[mutation][]cacheField{
	mutateSampleRate:    {cacheSampleRate, cacheMemoryDepth},
	mutateMemoryDepth:   {cacheMemoryDepth},
	mutateTriggerOffset: {cacheTriggerOffset},
	mutateInterleave:    {cacheSampleRate, cacheMemoryDepth},
}

// configCache is the lazily-populated store of instrument settings. The
// single mutex is held across the whole check-miss-populate sequence so
// that concurrent getters never issue duplicate round trips.
type configCache struct {
	mu sync.Mutex

	voltageRanges map[int]float64
	offsets       map[int]float64
	enabled       map[int]bool
	deskew        map[int]float64 // seconds
	probeActive   map[int]bool
	displayNames  map[int]string

	sampleRate      int64
	sampleRateValid bool

	memoryDepth      int64
	memoryDepthValid bool

	triggerOffset      float64 // seconds
	triggerOffsetValid bool

	// The one supported trigger descriptor; nil when the instrument has
	// an unsupported trigger type configured.
	trigger *EdgeTrigger
}

func newConfigCache() *configCache {
	c := &configCache{}
	c.reset()
	return c
}

func (c *configCache) reset() {
	c.voltageRanges = make(map[int]float64)
	c.offsets = make(map[int]float64)
	c.enabled = make(map[int]bool)
	c.deskew = make(map[int]float64)
	c.probeActive = make(map[int]bool)
	c.displayNames = make(map[int]string)
	c.sampleRateValid = false
	c.memoryDepthValid = false
	c.triggerOffsetValid = false
	c.trigger = nil
}

// flush clears every cached field and the active trigger descriptor. Call
// after any reconnect or full resync.
func (c *configCache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// invalidate applies one row of the invalidation table.
func (c *configCache) invalidate(m mutation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(m)
}

func (c *configCache) invalidateLocked(m mutation) {
	for _, f := range invalidatedBy[m] {
		switch f {
		case cacheSampleRate:
			c.sampleRateValid = false
		case cacheMemoryDepth:
			c.memoryDepthValid = false
		case cacheTriggerOffset:
			c.triggerOffsetValid = false
		}
	}
}

// channelFloat returns the cached value for field m[ch], or performs
// exactly one round trip through query to populate it. The lock is held
// across the whole sequence.
func (c *configCache) channelFloat(m map[int]float64, ch int, query func() (float64, error)) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := m[ch]; ok {
		return v, nil
	}
	v, err := query()
	if err != nil {
		return 0, err
	}
	m[ch] = v
	return v, nil
}

// channelBool is channelFloat for boolean fields.
func (c *configCache) channelBool(m map[int]bool, ch int, query func() (bool, error)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := m[ch]; ok {
		return v, nil
	}
	v, err := query()
	if err != nil {
		return false, err
	}
	m[ch] = v
	return v, nil
}

// setChannelFloat stores an optimistic value after a write command.
func (c *configCache) setChannelFloat(m map[int]float64, ch int, v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[ch] = v
}

// setChannelBool stores an optimistic value after a write command.
func (c *configCache) setChannelBool(m map[int]bool, ch int, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[ch] = v
}

// int64Field returns *valid ? *v : one round trip via query, storing the
// result.
func (c *configCache) int64Field(v *int64, valid *bool, query func() (int64, error)) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *valid {
		return *v, nil
	}
	got, err := query()
	if err != nil {
		return 0, err
	}
	*v = got
	*valid = true
	return got, nil
}

// float64Field is int64Field for float fields.
func (c *configCache) float64Field(v *float64, valid *bool, query func() (float64, error)) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if *valid {
		return *v, nil
	}
	got, err := query()
	if err != nil {
		return 0, err
	}
	*v = got
	*valid = true
	return got, nil
}
