package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// TTL is an entry lifetime. The zero value never expires.
type TTL struct {
	d   time.Duration
	set bool
}

// NewTTL returns a TTL of d.
func NewTTL(d time.Duration) TTL {
	return TTL{d: d, set: true}
}

// Duration returns the lifetime, or nil for never.
func (t TTL) Duration() *time.Duration {
	if !t.set {
		return nil
	}
	d := t.d
	return &d
}

func (t TTL) String() string {
	if !t.set {
		return "none"
	}
	return t.d.String()
}

// ParseTTL accepts "none"/"never", a Go duration or a number of seconds.
func ParseTTL(raw string) (TTL, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "none", "never", "null":
		return TTL{}, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		seconds, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return TTL{}, fmt.Errorf("invalid ttl %q", raw)
		}
		d = time.Duration(seconds * float64(time.Second))
	}
	if d <= 0 {
		return TTL{}, fmt.Errorf("ttl %q must be positive", raw)
	}
	return NewTTL(d), nil
}

// ttlDecodeHook lets viper decode strings and plain seconds into TTL.
func ttlDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(TTL{})

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case nil:
			return TTL{}, nil
		case string:
			return ParseTTL(v)
		case int:
			return ParseTTL(strconv.Itoa(v))
		case int64:
			return ParseTTL(strconv.FormatInt(v, 10))
		case float64:
			return ParseTTL(strconv.FormatFloat(v, 'f', -1, 64))
		case TTL:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported ttl type %T", data)
		}
	}
}
