package event

import (
	"reflect"
	"runtime"
	"strings"
)

// handlerFuncName derives a deterministic handler name from the function's
// identity (package path + function name). Method values keep their
// method name with the "-fm" suffix trimmed. Returns "" when the runtime
// cannot resolve the function; callers fall back to a counter-based name.
func handlerFuncName(h Handler) string {
	if h == nil {
		return ""
	}

	fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
	if fn == nil {
		return ""
	}

	name := fn.Name()
	// Anonymous functions carry compiler suffixes like ".func1"; they are
	// still stable within a build and therefore acceptable.
	name = strings.TrimSuffix(name, "-fm")
	return name
}
