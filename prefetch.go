package netsched

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RelatedRoute pairs a route with its learned correlation strength in [0,1].
type RelatedRoute struct {
	Route    string  `json:"route"`
	Strength float64 `json:"strength"`
}

// AccessPattern holds per-route access statistics used for prefetch
// prediction. Created on first observation, updated on every access,
// persisted periodically and cleared only by ResetData.
type AccessPattern struct {
	Route        string         `json:"route"`
	AccessCount  int            `json:"accessCount"`
	LastAccessed time.Time      `json:"lastAccessed"`
	MeanInterval time.Duration  `json:"meanInterval"`
	Related      []RelatedRoute `json:"related"`
}

// PrefetchRecord tracks prefetch outcomes for one route.
type PrefetchRecord struct {
	Route          string    `json:"route"`
	LastPrefetched time.Time `json:"lastPrefetched"`
	PrefetchCount  int       `json:"prefetchCount"`
	HitCount       int       `json:"hitCount"`
	MissCount      int       `json:"missCount"`
	BytesFetched   int64     `json:"bytesFetched"`
}

// PrefetchStats summarizes predictor state for diagnostics.
type PrefetchStats struct {
	TrackedRoutes int
	PrefetchCount int
	HitCount      int
	MissCount     int
	HitRate       float64
	DataUsedBytes int64
	LastCycle     time.Time
}

// PrefetchClient issues prefetch calls. *Scheduler satisfies it; the
// prefetcher interacts with the admission layer only through this surface.
type PrefetchClient interface {
	Get(ctx context.Context, url string, opts *RequestOptions) (*Response, error)
}

const (
	accessPatternsKey  = "netsched/access_patterns"
	prefetchRecordsKey = "netsched/prefetch_records"
)

// Prefetcher learns per-route access statistics and route correlations,
// scores candidates on a fixed cycle and issues background-priority prefetch
// calls subject to resource gating. It is safe for concurrent use.
type Prefetcher struct {
	client   PrefetchClient
	store    Store
	observer ConnectivityObserver
	idle     IdleScheduler
	clk      clock.Clock
	logger   Logger
	debug    *DebugConfig
	metrics  *MetricsCollector

	excludedRoutes       []string
	correlationIncrement float64
	correlationThreshold float64
	maxRelated           int
	hitWindow            time.Duration
	recentAccessWindow   time.Duration
	recentPrefetchWindow time.Duration
	cycleInterval        time.Duration
	maxItems             int
	stagger              time.Duration
	wifiOnly             bool
	chargingOnly         bool
	dataCap              int64
	persistDebounce      time.Duration

	mu           sync.Mutex
	patterns     map[string]*AccessPattern
	records      map[string]*PrefetchRecord
	inFlight     map[string]bool
	charging     bool
	lastCycle    time.Time
	persistTimer *clock.Timer
	unsubscribe  func()
}

// NewPrefetcher constructs a prefetcher issuing calls through client and
// persisting learned state to store. Persisted state is reloaded eagerly.
func NewPrefetcher(client PrefetchClient, store Store, observer ConnectivityObserver, options ...PrefetchOption) *Prefetcher {
	p := &Prefetcher{
		client:               client,
		store:                store,
		observer:             observer,
		clk:                  clock.New(),
		debug:                DefaultDebugConfig(),
		excludedRoutes:       DefaultExcludedRoutes(),
		correlationIncrement: 0.1,
		correlationThreshold: 0.7,
		maxRelated:           10,
		hitWindow:            5 * time.Minute,
		recentAccessWindow:   10 * time.Minute,
		recentPrefetchWindow: 30 * time.Minute,
		cycleInterval:        DefaultPrefetchCycle,
		maxItems:             DefaultPrefetchMaxItems,
		stagger:              200 * time.Millisecond,
		dataCap:              DefaultPrefetchDataCap,
		persistDebounce:      5 * time.Second,
		patterns:             make(map[string]*AccessPattern),
		records:              make(map[string]*PrefetchRecord),
		inFlight:             make(map[string]bool),
	}

	for _, option := range options {
		option(p)
	}

	p.load()

	if observer != nil {
		p.unsubscribe = observer.OnChange(func(state ConnectivityState) {
			// Reconnecting to wifi is an opportunity to warm the cache.
			if state.Connected && state.Type == ConnectionWifi {
				p.opportunisticCycle()
			}
		})
	}

	return p
}

// Start runs the scoring cycle on the configured interval until ctx is done.
func (p *Prefetcher) Start(ctx context.Context) {
	ticker := p.clk.Ticker(p.cycleInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.runCycle()
			}
		}
	}()
}

// Close unsubscribes from connectivity notifications and stops the debounced
// persistence timer, flushing state immediately.
func (p *Prefetcher) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.mu.Lock()
	if p.persistTimer != nil {
		p.persistTimer.Stop()
		p.persistTimer = nil
	}
	p.mu.Unlock()
	p.persist()
}

// RecordAccess is invoked by the navigation layer on every real access.
// Routes matching the exclusion list are ignored; otherwise the route's
// pattern is updated, temporally-related routes gain correlation strength and
// the access is classified against any prior prefetch as a hit or miss.
func (p *Prefetcher) RecordAccess(route string, relatedRoutes []string) {
	if p.isExcluded(route) {
		return
	}
	now := p.clk.Now()

	p.mu.Lock()
	pat, ok := p.patterns[route]
	if !ok {
		pat = &AccessPattern{Route: route}
		p.patterns[route] = pat
	}

	if !pat.LastAccessed.IsZero() {
		elapsed := now.Sub(pat.LastAccessed)
		// Running average over the AccessCount intervals observed so far.
		n := pat.AccessCount
		if n < 1 {
			n = 1
		}
		pat.MeanInterval += (elapsed - pat.MeanInterval) / time.Duration(n)
	}
	pat.AccessCount++
	pat.LastAccessed = now

	for _, rel := range relatedRoutes {
		if rel == route || p.isExcluded(rel) {
			continue
		}
		p.bumpRelatedLocked(pat, rel)
	}
	sort.SliceStable(pat.Related, func(i, j int) bool {
		return pat.Related[i].Strength > pat.Related[j].Strength
	})
	if len(pat.Related) > p.maxRelated {
		pat.Related = pat.Related[:p.maxRelated]
	}

	var hit, miss bool
	if rec, ok := p.records[route]; ok && !rec.LastPrefetched.IsZero() {
		if now.Sub(rec.LastPrefetched) <= p.hitWindow {
			rec.HitCount++
			hit = true
		} else {
			rec.MissCount++
			miss = true
		}
	}

	p.markDirtyLocked()
	p.mu.Unlock()

	if hit {
		p.metrics.RecordPrefetchHit()
	}
	if miss {
		p.metrics.RecordPrefetchMiss()
	}
	if p.debug != nil && p.debug.Enabled && p.debug.LogPrefetch && p.logger != nil {
		p.logger.Debug("Access recorded", "route", route, "related", len(relatedRoutes))
	}
}

func (p *Prefetcher) bumpRelatedLocked(pat *AccessPattern, route string) {
	for i := range pat.Related {
		if pat.Related[i].Route == route {
			pat.Related[i].Strength += p.correlationIncrement
			if pat.Related[i].Strength > 1.0 {
				pat.Related[i].Strength = 1.0
			}
			return
		}
	}
	pat.Related = append(pat.Related, RelatedRoute{Route: route, Strength: 0.5})
}

// TriggerPrefetch runs one scoring cycle immediately.
func (p *Prefetcher) TriggerPrefetch() {
	p.runCycle()
}

// UpdateChargingStatus feeds the host's charging state. A charging-start
// transition opportunistically runs a cycle.
func (p *Prefetcher) UpdateChargingStatus(charging bool) {
	p.mu.Lock()
	started := charging && !p.charging
	p.charging = charging
	p.mu.Unlock()
	if started {
		p.opportunisticCycle()
	}
}

// opportunisticCycle runs a cycle through the host idle hook when one is
// configured, otherwise in its own goroutine.
func (p *Prefetcher) opportunisticCycle() {
	if p.idle != nil {
		p.idle.Schedule(p.runCycle, PriorityBackground)
		return
	}
	go p.runCycle()
}

type prefetchCandidate struct {
	route string
	score float64
}

// runCycle scores candidates and dispatches the survivors. All gating
// conditions must hold before anything is issued; failing any gate skips the
// entire cycle.
func (p *Prefetcher) runCycle() {
	state := ConnectivityState{Connected: true, Type: ConnectionUnknown}
	if p.observer != nil {
		state = p.observer.State()
	}

	p.mu.Lock()
	now := p.clk.Now()
	p.lastCycle = now

	if p.wifiOnly && (!state.Connected || state.Type != ConnectionWifi) {
		p.mu.Unlock()
		if p.debug != nil && p.debug.Enabled && p.debug.LogPrefetch && p.logger != nil {
			p.logger.Debug("Prefetch cycle skipped: wifi required", "connection", string(state.Type))
		}
		return
	}
	if p.chargingOnly && !p.charging {
		p.mu.Unlock()
		if p.debug != nil && p.debug.Enabled && p.debug.LogPrefetch && p.logger != nil {
			p.logger.Debug("Prefetch cycle skipped: charging required")
		}
		return
	}
	if p.dataUsedLocked() >= p.dataCap {
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Warn("Prefetch cycle skipped: data cap reached", "capBytes", p.dataCap)
		}
		return
	}

	candidates := p.scoreLocked(now)
	selected := make([]prefetchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if p.inFlight[c.route] {
			continue
		}
		p.inFlight[c.route] = true
		selected = append(selected, c)
	}
	p.mu.Unlock()

	if p.debug != nil && p.debug.Enabled && p.debug.LogPrefetch && p.logger != nil {
		p.logger.Debug("Prefetch cycle", "candidates", len(candidates), "dispatching", len(selected))
	}

	for i, c := range selected {
		go p.prefetch(c.route, time.Duration(i)*p.stagger)
	}
}

// scoreLocked produces the ranked candidate list: routes not accessed
// recently and not prefetched recently, scored by frequency and prior hit
// rate, plus derived candidates from strongly correlated routes.
func (p *Prefetcher) scoreLocked(now time.Time) []prefetchCandidate {
	scores := make(map[string]float64)

	for route, pat := range p.patterns {
		if now.Sub(pat.LastAccessed) < p.recentAccessWindow {
			continue
		}
		rec := p.records[route]
		if rec != nil && !rec.LastPrefetched.IsZero() && now.Sub(rec.LastPrefetched) < p.recentPrefetchWindow {
			continue
		}

		score := frequencyScore(pat)
		if rec != nil && rec.PrefetchCount > 0 {
			score *= 0.5 + hitRate(rec)
		}
		if score > scores[route] {
			scores[route] = score
		}

		for _, rel := range pat.Related {
			if rel.Strength <= p.correlationThreshold || p.isExcluded(rel.Route) {
				continue
			}
			derived := score * rel.Strength
			if derived > scores[rel.Route] {
				scores[rel.Route] = derived
			}
		}
	}

	candidates := make([]prefetchCandidate, 0, len(scores))
	for route, score := range scores {
		candidates = append(candidates, prefetchCandidate{route: route, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].route < candidates[j].route
	})
	if len(candidates) > p.maxItems {
		candidates = candidates[:p.maxItems]
	}
	return candidates
}

// frequencyScore scales access count inversely by the mean inter-access
// interval: routes visited more often score higher.
func frequencyScore(pat *AccessPattern) float64 {
	minutes := pat.MeanInterval.Minutes()
	if minutes < 1 {
		minutes = 1
	}
	return float64(pat.AccessCount) / minutes
}

func hitRate(rec *PrefetchRecord) float64 {
	total := rec.HitCount + rec.MissCount
	if total == 0 {
		return 0
	}
	return float64(rec.HitCount) / float64(total)
}

// prefetch issues one staggered BACKGROUND-priority call. Failures are
// logged and dropped without affecting future hit/miss accounting.
func (p *Prefetcher) prefetch(route string, delay time.Duration) {
	if delay > 0 {
		p.clk.Sleep(delay)
	}

	p.metrics.RecordPrefetchIssued()
	resp, err := p.client.Get(context.Background(), route, &RequestOptions{Priority: PriorityBackground})

	p.mu.Lock()
	delete(p.inFlight, route)
	if err != nil {
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Warn("Prefetch failed", "route", route, "error", err.Error())
		}
		return
	}

	rec, ok := p.records[route]
	if !ok {
		rec = &PrefetchRecord{Route: route}
		p.records[route] = rec
	}
	rec.LastPrefetched = p.clk.Now()
	rec.PrefetchCount++
	rec.BytesFetched += int64(len(resp.Body))
	p.markDirtyLocked()
	p.mu.Unlock()

	p.metrics.RecordPrefetchBytes(len(resp.Body))
	if p.debug != nil && p.debug.Enabled && p.debug.LogPrefetch && p.logger != nil {
		p.logger.Debug("Prefetched", "route", route, "bytes", len(resp.Body))
	}
}

// GetStats summarizes predictor state.
func (p *Prefetcher) GetStats() PrefetchStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PrefetchStats{
		TrackedRoutes: len(p.patterns),
		DataUsedBytes: p.dataUsedLocked(),
		LastCycle:     p.lastCycle,
	}
	for _, rec := range p.records {
		stats.PrefetchCount += rec.PrefetchCount
		stats.HitCount += rec.HitCount
		stats.MissCount += rec.MissCount
	}
	if total := stats.HitCount + stats.MissCount; total > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(total)
	}
	return stats
}

// ResetData clears all learned patterns and prefetch records and persists the
// empty state immediately.
func (p *Prefetcher) ResetData() {
	p.mu.Lock()
	p.patterns = make(map[string]*AccessPattern)
	p.records = make(map[string]*PrefetchRecord)
	if p.persistTimer != nil {
		p.persistTimer.Stop()
		p.persistTimer = nil
	}
	p.mu.Unlock()
	p.persist()
}

func (p *Prefetcher) dataUsedLocked() int64 {
	var used int64
	for _, rec := range p.records {
		used += rec.BytesFetched
	}
	return used
}

func (p *Prefetcher) isExcluded(route string) bool {
	for _, ex := range p.excludedRoutes {
		if strings.Contains(route, ex) {
			return true
		}
	}
	return false
}

// markDirtyLocked arms (or re-arms) the debounced persistence timer.
func (p *Prefetcher) markDirtyLocked() {
	if p.store == nil {
		return
	}
	if p.persistTimer != nil {
		p.persistTimer.Stop()
	}
	p.persistTimer = p.clk.AfterFunc(p.persistDebounce, p.persist)
}

// persist writes patterns and records to the durable store. Failures are
// logged, never fatal.
func (p *Prefetcher) persist() {
	if p.store == nil {
		return
	}
	p.mu.Lock()
	rawPatterns, errP := json.Marshal(p.patterns)
	rawRecords, errR := json.Marshal(p.records)
	p.mu.Unlock()

	if errP == nil {
		errP = p.store.SetItem(accessPatternsKey, string(rawPatterns))
	}
	if errR == nil {
		errR = p.store.SetItem(prefetchRecordsKey, string(rawRecords))
	}
	if (errP != nil || errR != nil) && p.logger != nil {
		p.logger.Warn("Failed to persist prefetch state", "patternsErr", errP, "recordsErr", errR)
	}
}

// load restores persisted state at startup. Corrupt blobs start fresh.
func (p *Prefetcher) load() {
	if p.store == nil {
		return
	}
	if raw, ok, err := p.store.GetItem(accessPatternsKey); err == nil && ok {
		patterns := make(map[string]*AccessPattern)
		if json.Unmarshal([]byte(raw), &patterns) == nil {
			p.patterns = patterns
		}
	}
	if raw, ok, err := p.store.GetItem(prefetchRecordsKey); err == nil && ok {
		records := make(map[string]*PrefetchRecord)
		if json.Unmarshal([]byte(raw), &records) == nil {
			p.records = records
		}
	}
}
