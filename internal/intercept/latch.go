package intercept

import (
	"context"

	"github.com/roach88/swizzle/internal/dispatch"
)

// pairKey names one (class, original selector) latch. The NUL separator
// keeps "ab"+"c" and "a"+"bc" apart.
func pairKey(class string, original dispatch.Selector) string {
	return class + "\x00" + string(original)
}

type inFlightKey struct{}

// inFlight is an immutable list of latch keys held by the current call path.
type inFlight struct {
	key  string
	next *inFlight
}

func withInFlight(ctx context.Context, key string) context.Context {
	parent, _ := ctx.Value(inFlightKey{}).(*inFlight)
	return context.WithValue(ctx, inFlightKey{}, &inFlight{key: key, next: parent})
}

func isInFlight(ctx context.Context, key string) bool {
	for f, _ := ctx.Value(inFlightKey{}).(*inFlight); f != nil; f = f.next {
		if f.key == key {
			return true
		}
	}
	return false
}

// flightKey names one install attempt: a pair and the wrapper requested.
func flightKey(pair string, wrapper dispatch.Selector) string {
	return pair + "\x00" + string(wrapper)
}
