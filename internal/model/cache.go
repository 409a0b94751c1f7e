package model

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/calibkit/calib/internal/param"
)

// Cache remembers completed evaluations so that revisited parameter
// sets skip the model run entirely. Identity is the vector rendered at
// the configured number of significant digits in the output frame, the
// same form the evaluation log stores, so a cache seeded from a
// previous run's log answers exactly the evaluations that log records.
type Cache struct {
	ndigits int
	entries map[string]float64
	hits    int
}

// NewCache returns an empty evaluation cache comparing vectors at
// ndigits significant digits.
func NewCache(ndigits int) *Cache {
	return &Cache{ndigits: ndigits, entries: make(map[string]float64)}
}

func (c *Cache) key(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = param.Scientific(v, c.ndigits)
	}
	return strings.Join(parts, " ")
}

// Lookup returns the cached objective for the output-frame vector vals.
func (c *Cache) Lookup(vals []float64) (float64, bool) {
	obj, ok := c.entries[c.key(vals)]
	if ok {
		c.hits++
	}
	return obj, ok
}

// Store records a completed evaluation.
func (c *Cache) Store(vals []float64, obj float64) {
	c.entries[c.key(vals)] = obj
}

// SeedFromLog loads every evaluation a persisted log records. Rows that
// do not parse, the header included, are skipped.
func (c *Cache) SeedFromLog(path string, nparam int) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2+nparam {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		obj, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		vals := make([]float64, nparam)
		ok := true
		for i := 0; i < nparam; i++ {
			if vals[i], err = strconv.ParseFloat(fields[2+i], 64); err != nil {
				ok = false
				break
			}
		}
		if ok {
			c.Store(vals, obj)
		}
	}
	return sc.Err()
}

// Hits is the number of lookups served from the cache.
func (c *Cache) Hits() int { return c.hits }

// Len is the number of stored evaluations.
func (c *Cache) Len() int { return len(c.entries) }
