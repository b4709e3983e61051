// Package devicecache keeps the peripherals discovered during one scan
// session, in first-seen order, with duplicate suppression by identifier.
package devicecache

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// WITMarker is the substring vendor firmware puts in the advertised name.
const WITMarker = "WT"

// Classification tags a discovered device
type Classification string

const (
	ClassWIT   Classification = "wit"
	ClassOther Classification = "other"
)

// Classify tags an identifier as a WIT sensor or something else.
func Classify(identifier string) Classification {
	if strings.Contains(identifier, WITMarker) {
		return ClassWIT
	}
	return ClassOther
}

// Record describes one discovered peripheral
type Record struct {
	Identifier string         `json:"identifier"`
	Address    string         `json:"address"`
	Class      Classification `json:"class"`
}

// IsWIT reports whether the record is eligible for wildcard autoconnect.
func (r Record) IsWIT() bool {
	return r.Class == ClassWIT
}

// Matches reports whether target names this record by identifier or address.
func (r Record) Matches(target string) bool {
	return target != "" && (r.Identifier == target || r.Address == target)
}

// Cache is owned by a single consumer context and is not safe for concurrent use.
type Cache struct {
	records *orderedmap.OrderedMap[string, Record]
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{records: orderedmap.New[string, Record]()}
}

// Observe records a discovery. It returns the record and true only the first
// time an identifier is seen in the session. A device without an advertised
// name is keyed by its address.
func (c *Cache) Observe(identifier, address string) (Record, bool) {
	if identifier == "" {
		identifier = address
	}
	if identifier == "" {
		return Record{}, false
	}
	if rec, ok := c.records.Get(identifier); ok {
		return rec, false
	}

	rec := Record{
		Identifier: identifier,
		Address:    address,
		Class:      Classify(identifier),
	}
	c.records.Set(identifier, rec)
	return rec, true
}

// Seen reports whether identifier was observed in this session.
func (c *Cache) Seen(identifier string) bool {
	_, ok := c.records.Get(identifier)
	return ok
}

// Lookup finds a record by identifier or address.
func (c *Cache) Lookup(target string) (Record, bool) {
	if rec, ok := c.records.Get(target); ok {
		return rec, true
	}
	for pair := c.records.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Matches(target) {
			return pair.Value, true
		}
	}
	return Record{}, false
}

// Records returns every record in first-seen order.
func (c *Cache) Records() []Record {
	out := make([]Record, 0, c.records.Len())
	for pair := c.records.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// WIT returns the WIT-classified records in first-seen order.
func (c *Cache) WIT() []Record {
	var out []Record
	for pair := c.records.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.IsWIT() {
			out = append(out, pair.Value)
		}
	}
	return out
}

// Len returns the number of distinct devices seen.
func (c *Cache) Len() int {
	return c.records.Len()
}

// Reset starts a new session.
func (c *Cache) Reset() {
	c.records = orderedmap.New[string, Record]()
}
