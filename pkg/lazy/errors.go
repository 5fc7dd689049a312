package lazy

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/danmuck/lazymod/pkg/unit"
)

var (
	// ErrLoadFailure matches every deferred load failure.
	ErrLoadFailure = errors.New("lazy: unit could not be loaded")
	// ErrReentrantLoad is returned when a factory touches the unit it is
	// building. It is not cached.
	ErrReentrantLoad = errors.New("lazy: unit touched by its own factory")
)

// DefaultMessage is the load failure template. {caller}, {unit},
// {install_name}, and {module} (an alias of {unit}) are substituted.
const DefaultMessage = "{caller} attempted to use a functionality that requires unit {unit}, " +
	"but it couldn't be loaded. Please install {install_name} and retry."

const selfPackage = "github.com/danmuck/lazymod/pkg/lazy"

// ErrorStrings customises the message of a deferred load failure.
type ErrorStrings struct {
	// Message is the template; DefaultMessage when empty.
	Message string
	// Caller names the code that declared the unit; detected when empty.
	Caller string
	// InstallName is what the user should install; the base segment of the
	// requested name when empty.
	InstallName string
}

// LoadError is the deferred failure of a unit load. It is cached on the
// placeholder and returned as-is on every later access.
type LoadError struct {
	Name    string
	Caller  string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailure, e.Cause}
}

func (s ErrorStrings) withDefaults(requested string) ErrorStrings {
	if s.Message == "" {
		s.Message = DefaultMessage
	}
	if s.Caller == "" {
		s.Caller = callerName()
	}
	if s.InstallName == "" {
		s.InstallName = unit.Base(requested)
	}
	return s
}

func (s ErrorStrings) render(unitName string) string {
	return strings.NewReplacer(
		"{caller}", s.Caller,
		"{unit}", unitName,
		"{module}", unitName,
		"{install_name}", s.InstallName,
	).Replace(s.Message)
}

func (s ErrorStrings) loadError(unitName string, cause error) *LoadError {
	return &LoadError{
		Name:    unitName,
		Caller:  s.Caller,
		Message: s.render(unitName),
		Cause:   cause,
	}
}

// callerName returns the package of the first frame outside this package.
func callerName() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if pkg := packageOf(frame.Function); pkg != "" && pkg != selfPackage {
			return pkg
		}
		if !more {
			return "unknown"
		}
	}
}

func packageOf(function string) string {
	slash := strings.LastIndexByte(function, '/')
	dot := strings.IndexByte(function[slash+1:], '.')
	if dot < 0 {
		return ""
	}
	return function[:slash+1+dot]
}
