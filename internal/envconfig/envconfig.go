// Package envconfig unmarshals a flat list of "KEY=VALUE" environment
// entries into a struct via `env:"KEY=default"` tags, the same
// tag-and-reflection approach pkg/atlas/config.go uses for the teacher's own
// server config, trimmed to the field kinds the example commands need.
package envconfig

import (
	"fmt"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Unmarshal populates dst (a pointer to a struct) from es, a list of
// "KEY=VALUE" strings such as os.Environ(). Fields without an `env` tag are
// left untouched. A tag of the form "KEY=default" supplies a default used
// when KEY is absent from es.
func Unmarshal(dst any, es []string) error {
	em := make(map[string]string, len(es))
	for _, e := range es {
		if k, v, ok := strings.Cut(e, "="); ok {
			em[k] = v
		}
	}

	cv := reflect.ValueOf(dst).Elem()
	for _, f := range reflect.VisibleFields(cv.Type()) {
		tag, ok := f.Tag.Lookup("env")
		if !ok {
			continue
		}
		key, def, _ := strings.Cut(tag, "=")

		val := def
		if v, exists := em[key]; exists {
			val = v
		}

		field := cv.FieldByIndex(f.Index)
		if err := setField(field, val); err != nil {
			return fmt.Errorf("env %s (%s): %w", key, f.Name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, val string) error {
	switch v := field.Addr().Interface().(type) {
	case *string:
		*v = val
	case *int:
		if val == "" {
			*v = 0
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parse %q as int: %w", val, err)
		}
		*v = n
	case *bool:
		if val == "" {
			*v = false
			return nil
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parse %q as bool: %w", val, err)
		}
		*v = b
	case *netip.AddrPort:
		if val == "" {
			*v = netip.AddrPort{}
			return nil
		}
		ap, err := netip.ParseAddrPort(val)
		if err != nil && strings.HasPrefix(val, ":") {
			ap, err = netip.ParseAddrPort("[::]" + val)
		}
		if err != nil {
			return fmt.Errorf("parse %q as addr:port: %w", val, err)
		}
		*v = ap
	case *zerolog.Level:
		lvl, err := zerolog.ParseLevel(val)
		if err != nil {
			return fmt.Errorf("parse %q as log level: %w", val, err)
		}
		*v = lvl
	case *time.Duration:
		if val == "" {
			*v = 0
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parse %q as duration: %w", val, err)
		}
		*v = d
	default:
		return fmt.Errorf("unhandled field type %T", v)
	}
	return nil
}
