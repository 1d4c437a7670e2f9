package logger

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CollectionConfig bounds the in-memory aggregation of warn/error events.
type CollectionConfig struct {
	MaxEntries int           // distinct entries kept before the oldest is evicted
	MaxAge     time.Duration // entries older than this are dropped from snapshots
}

// AggregatedLogEntry is one deduplicated warn/error event with occurrence counts.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector aggregates recent warn/error log events so the diagnostics
// endpoint can report them without anyone tailing logs. Identical events are
// collapsed into one entry with a count.
type LogCollector struct {
	config *CollectionConfig
	logMap map[string]*AggregatedLogEntry
	mutex  sync.Mutex
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 100
	}
	if config.MaxAge <= 0 {
		config.MaxAge = time.Hour
	}
	return &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
	}
}

func (d *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := d.generateKey(level, message, fields, caller)

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if entry, exists := d.logMap[key]; exists {
		entry.Count++
		entry.LastSeen = now
		return
	}

	if len(d.logMap) >= d.config.MaxEntries {
		d.evictOldest()
	}
	d.logMap[key] = &AggregatedLogEntry{
		Level:     level,
		Message:   message,
		Fields:    fields,
		Caller:    caller,
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// Snapshot returns entries seen within MaxAge, most recent first.
func (d *LogCollector) Snapshot() []AggregatedLogEntry {
	cutoff := time.Now().Add(-d.config.MaxAge)

	d.mutex.Lock()
	out := make([]AggregatedLogEntry, 0, len(d.logMap))
	for key, entry := range d.logMap {
		if entry.LastSeen.Before(cutoff) {
			delete(d.logMap, key)
			continue
		}
		out = append(out, *entry)
	}
	d.mutex.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (d *LogCollector) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range d.logMap {
		if oldestKey == "" || entry.LastSeen.Before(oldest) {
			oldestKey = key
			oldest = entry.LastSeen
		}
	}
	if oldestKey != "" {
		delete(d.logMap, oldestKey)
	}
}

func (d *LogCollector) generateKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{
		Level:   level,
		Message: message,
		Fields:  fields,
		Caller:  caller,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}
