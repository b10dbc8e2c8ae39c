// Package payload walks and edits the dynamically typed value graphs carried by
// Ports: nil, primitives, []any, map[string]any and *endpoint.Port. Any other
// type is an opaque leaf.
package payload

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/sammck-go/chanbridge/pkg/endpoint"
)

var (
	// ErrBrokenPath is returned when a path does not resolve inside a payload
	ErrBrokenPath = errors.New("payload: broken path")

	// ErrCyclicPayload is returned when a payload contains itself
	ErrCyclicPayload = errors.New("payload: cyclic payload")
)

// Path is a sequence of keys locating a value inside a payload. Map keys are used
// as is; slice indexes are decimal strings.
type Path []string

func (p Path) String() string {
	var sb strings.Builder
	for i, k := range p {
		if _, err := strconv.Atoi(k); err == nil {
			sb.WriteString("[" + k + "]")
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(k)
	}
	return sb.String()
}

// Equal reports whether p and other hold the same keys
func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// containerID identifies a map or slice by its backing storage, so a value that
// contains itself can be recognized.
type containerID struct {
	ptr uintptr
	len int
}

type walker struct {
	yield     func(Path) bool
	ancestors []containerID
	cyclic    bool
}

func (w *walker) enter(id containerID) bool {
	if slices.Contains(w.ancestors, id) {
		w.cyclic = true
		return false
	}
	w.ancestors = append(w.ancestors, id)
	return true
}

func (w *walker) leave() {
	w.ancestors = w.ancestors[:len(w.ancestors)-1]
}

// walk returns false once the consumer has stopped the iteration
func (w *walker) walk(v any, path Path) bool {
	switch x := v.(type) {
	case *endpoint.Port:
		if x == nil {
			return true
		}
		return w.yield(append(Path{}, path...))
	case map[string]any:
		if len(x) == 0 {
			return true
		}
		if !w.enter(containerID{ptr: reflect.ValueOf(x).Pointer()}) {
			return true
		}
		defer w.leave()
		for _, k := range slices.Sorted(maps.Keys(x)) {
			if !w.walk(x[k], append(path, k)) {
				return false
			}
		}
	case []any:
		if len(x) == 0 {
			return true
		}
		if !w.enter(containerID{ptr: reflect.ValueOf(x).Pointer(), len: len(x)}) {
			return true
		}
		defer w.leave()
		for i, e := range x {
			if !w.walk(e, append(path, strconv.Itoa(i))) {
				return false
			}
		}
	}
	return true
}

// Channels returns a lazy sequence of the paths of every Port inside v, depth
// first, with map keys in sorted order and slices in index order. Strings and
// other primitives are never descended into, and neither are Ports. A container
// that is its own ancestor is skipped. Each iteration walks v afresh.
func Channels(v any) iter.Seq[Path] {
	return func(yield func(Path) bool) {
		w := &walker{yield: yield}
		w.walk(v, nil)
	}
}

// FindChannels collects the paths of Channels(v). If v is cyclic, it returns
// ErrCyclicPayload along with the paths found outside the cycle.
func FindChannels(v any) ([]Path, error) {
	paths := []Path{}
	w := &walker{yield: func(p Path) bool {
		paths = append(paths, p)
		return true
	}}
	w.walk(v, nil)
	if w.cyclic {
		return paths, ErrCyclicPayload
	}
	return paths, nil
}

// child returns the value stored under key in container
func child(container any, key string) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[key]
		if !ok {
			return nil, fmt.Errorf("%w: no key %q", ErrBrokenPath, key)
		}
		return v, nil
	case []any:
		i, err := index(c, key)
		if err != nil {
			return nil, err
		}
		return c[i], nil
	default:
		return nil, fmt.Errorf("%w: cannot look up %q in %T", ErrBrokenPath, key, container)
	}
}

func index(s []any, key string) (int, error) {
	i, err := strconv.Atoi(key)
	if err != nil || strconv.Itoa(i) != key {
		return 0, fmt.Errorf("%w: %q is not a slice index", ErrBrokenPath, key)
	}
	if i < 0 || i >= len(s) {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", ErrBrokenPath, i, len(s))
	}
	return i, nil
}

// Get returns the value at path inside root. An empty path returns root.
func Get(root any, path Path) (any, error) {
	v := root
	for i, k := range path {
		var err error
		v, err = child(v, k)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", path[:i+1], err)
		}
	}
	return v, nil
}

// ReplaceAt stores newValue at path inside root and returns the value it replaced.
// Every key but the last must resolve to a container. The last key may be absent
// from a map (old is then nil) but must be in range for a slice.
func ReplaceAt(root any, path Path, newValue any) (old any, err error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrBrokenPath)
	}
	parent, err := Get(root, path[:len(path)-1])
	if err != nil {
		return nil, err
	}
	key := path[len(path)-1]
	switch c := parent.(type) {
	case map[string]any:
		old = c[key]
		c[key] = newValue
	case []any:
		i, err := index(c, key)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", path, err)
		}
		old = c[i]
		c[i] = newValue
	default:
		return nil, fmt.Errorf("at %s: %w: %T is not a container", path, ErrBrokenPath, parent)
	}
	return old, nil
}
