package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event.
//
// Fields apply in order, so a key set twice keeps the later value. Console
// output renders them as key=value pairs; JSON sinks keep their types.
type Field func(e *zerolog.Event)

// ComponentKey is the key Component writes. Log queries filter on it.
const ComponentKey = "comp"

// Component tags records with the subsystem that emitted them,
// e.g. "notify", "trigger" or "broker.mailq".
func Component(name string) Field { return String(ComponentKey, name) }

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }

func Strs(k string, v []string) Field { return func(e *zerolog.Event) { e.Strs(k, v) } }

func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }

func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }

func Float64(k string, v float64) Field { return func(e *zerolog.Event) { e.Float64(k, v) } }

func Bool(k string, v bool) Field { return func(e *zerolog.Event) { e.Bool(k, v) } }

func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }

func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }

// Any serializes v with zerolog's reflection encoder. Prefer typed fields.
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err records err under "err". A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}
