package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/ir"
)

func constImpl(name, result string) *Implementation {
	return &Implementation{
		Name: name,
		Fn: func(ctx context.Context, self *Object, args ir.IRArray) (ir.IRValue, error) {
			return ir.IRString(result), nil
		},
	}
}

// newHierarchy builds Base <- Derived <- Leaf with Base.greet defined.
func newHierarchy(t *testing.T) (*Runtime, *Class, *Class, *Class) {
	t.Helper()
	rt := NewRuntime()
	base, err := rt.DefineClass("Base", "")
	require.NoError(t, err)
	derived, err := rt.DefineClass("Derived", "Base")
	require.NoError(t, err)
	leaf, err := rt.DefineClass("Leaf", "Derived")
	require.NoError(t, err)
	require.NoError(t, base.Define("greet", constImpl("Base.greet", "hello from Base")))
	return rt, base, derived, leaf
}

func TestDefineClass_Errors(t *testing.T) {
	rt := NewRuntime()
	_, err := rt.DefineClass("Base", "")
	require.NoError(t, err)

	_, err = rt.DefineClass("Base", "")
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, ErrCodeDuplicateClass, de.Code)

	_, err = rt.DefineClass("Orphan", "Missing")
	assert.True(t, IsUnknownClass(err))
}

func TestClass_DefineDuplicate(t *testing.T) {
	_, base, _, _ := newHierarchy(t)
	err := base.Define("greet", constImpl("Base.greet2", "x"))
	var de *DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, ErrCodeDuplicateMethod, de.Code)
	assert.Contains(t, err.Error(), "class=Base")
}

func TestResolve_WalksAncestors(t *testing.T) {
	rt, base, derived, leaf := newHierarchy(t)

	imp, owner, ok := rt.Resolve(leaf, "greet")
	require.True(t, ok)
	assert.Equal(t, "Base.greet", imp.Name)
	assert.Same(t, base, owner)

	assert.False(t, rt.DefinesLocally(derived, "greet"))
	assert.True(t, rt.DefinesLocally(base, "greet"))

	_, _, ok = rt.Resolve(leaf, "missing")
	assert.False(t, ok)
}

func TestResolve_LocalOverrideShadows(t *testing.T) {
	rt, _, derived, leaf := newHierarchy(t)
	require.NoError(t, derived.Define("greet", constImpl("Derived.greet", "hello from Derived")))

	imp, owner, ok := rt.Resolve(leaf, "greet")
	require.True(t, ok)
	assert.Equal(t, "Derived.greet", imp.Name)
	assert.Same(t, derived, owner)
}

func TestSend(t *testing.T) {
	rt, _, _, leaf := newHierarchy(t)
	obj := leaf.New()

	v, err := rt.Send(context.Background(), obj, "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("hello from Base"), v)

	_, err = rt.Send(context.Background(), obj, "wave", nil)
	assert.True(t, IsUnrecognizedSelector(err))
	assert.Contains(t, err.Error(), "class=Leaf")
}

func TestSend_PassesReceiverAndArgs(t *testing.T) {
	rt := NewRuntime()
	c, err := rt.DefineClass("Echo", "")
	require.NoError(t, err)
	require.NoError(t, c.Define("echo", &Implementation{
		Name: "Echo.echo",
		Fn: func(ctx context.Context, self *Object, args ir.IRArray) (ir.IRValue, error) {
			return ir.IRArray{ir.IRString(self.Class().Name()), args[0]}, nil
		},
	}))

	v, err := rt.Send(context.Background(), c.New(), "echo", ir.IRArray{ir.IRInt(7)})
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRString("Echo"), ir.IRInt(7)}, v)
}

func TestSendSuper(t *testing.T) {
	rt, _, derived, leaf := newHierarchy(t)
	require.NoError(t, derived.Define("greet", constImpl("Derived.greet", "hello from Derived")))

	v, err := rt.SendSuper(context.Background(), leaf.New(), derived, "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("hello from Base"), v)

	base, _ := rt.Lookup("Base")
	_, err = rt.SendSuper(context.Background(), leaf.New(), base, "greet", nil)
	assert.True(t, IsUnrecognizedSelector(err))
}

func TestTable(t *testing.T) {
	rt, _, derived, _ := newHierarchy(t)
	require.NoError(t, derived.Define("wave", constImpl("Derived.wave", "wave")))

	entries := rt.Table(derived)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Selector: "greet", Implementation: "Base.greet", Owner: "Base", Local: false}, entries[0])
	assert.Equal(t, Entry{Selector: "wave", Implementation: "Derived.wave", Owner: "Derived", Local: true}, entries[1])
}

func TestRuntime_OwnsAndLookup(t *testing.T) {
	rt, base, _, _ := newHierarchy(t)
	other := NewRuntime()

	assert.True(t, rt.Owns(base))
	assert.False(t, other.Owns(base))
	assert.False(t, rt.Owns(nil))

	_, err := other.MustLookup("Base")
	assert.True(t, IsUnknownClass(err))

	names := []string{}
	for _, c := range rt.Classes() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"Base", "Derived", "Leaf"}, names)
}

func TestIsSubclassOf(t *testing.T) {
	_, base, derived, leaf := newHierarchy(t)
	assert.True(t, leaf.IsSubclassOf(base))
	assert.True(t, derived.IsSubclassOf(derived))
	assert.False(t, base.IsSubclassOf(derived))
}

func TestSend_ConcurrentReaders(t *testing.T) {
	rt, _, _, leaf := newHierarchy(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := rt.Send(context.Background(), leaf.New(), "greet", nil)
			assert.NoError(t, err)
			assert.Equal(t, ir.IRString("hello from Base"), v)
		}()
	}
	wg.Wait()
}
