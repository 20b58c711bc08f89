package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// KV is a flat key=value configuration file such as
//
//	symbols=BTCUSDT,ETHUSDT
//	risk.maxPosition=100
//
// Lines without '=' and lines starting with '#' are ignored. Later keys
// override earlier ones.
type KV struct {
	data map[string]string
}

// ParseKV reads a KV from r.
func ParseKV(r io.Reader) (*KV, error) {
	kv := &KV{data: make(map[string]string)}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kv.data[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: read key=value: %w", err)
	}
	return kv, nil
}

// LoadKV reads a KV file from path.
func LoadKV(path string) (*KV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseKV(f)
}

// Has reports whether key is present.
func (k *KV) Has(key string) bool {
	_, ok := k.data[key]
	return ok
}

// Keys returns every key in sorted order.
func (k *KV) Keys() []string {
	keys := make([]string, 0, len(k.data))
	for key := range k.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// String returns the raw value for key.
func (k *KV) String(key string) (string, error) {
	v, ok := k.data[key]
	if !ok {
		return "", fmt.Errorf("config: %w: %s", domain.ErrMissingKey, key)
	}
	return v, nil
}

// Int parses the value for key as a base-10 integer.
func (k *KV) Int(key string) (int, error) {
	v, err := k.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %w: %s=%q is not an integer", domain.ErrMalformedValue, key, v)
	}
	return n, nil
}

// Float parses the value for key as a float64.
func (k *KV) Float(key string) (float64, error) {
	v, err := k.String(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %w: %s=%q is not a number", domain.ErrMalformedValue, key, v)
	}
	return f, nil
}

// Decimal parses the value for key at full precision.
func (k *KV) Decimal(key string) (decimal.Decimal, error) {
	v, err := k.String(key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %w: %s=%q is not a decimal", domain.ErrMalformedValue, key, v)
	}
	return d, nil
}

// ParseSymbols splits a comma-separated symbol list, dropping empty entries
// and upper-casing the rest.
func ParseSymbols(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
