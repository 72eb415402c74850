package vm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlang/lumen/pkg/compiler"
	"github.com/lumenlang/lumen/pkg/vm"
)

// run interprets source against a fresh VM wired to the real compiler,
// capturing everything System.print writes, and returns that output plus
// the interpret outcome.
func run(t *testing.T, source string) (string, vm.InterpretResult, error) {
	t.Helper()
	var out strings.Builder
	vmInst := vm.NewVM(vm.Config{
		Compile: compiler.Compile,
		Write:   func(s string) { out.WriteString(s) },
	})
	result, err := vmInst.Interpret("test", source)
	return out.String(), result, err
}

func TestInterpret_Arithmetic(t *testing.T) {
	out, result, err := run(t, `System.print(3 + 4 * 2)`)
	require.NoError(t, err)
	assert.Equal(t, vm.ResultSuccess, result)
	assert.Equal(t, "11\n", out)
}

func TestInterpret_StringConcatenation(t *testing.T) {
	out, _, err := run(t, `System.print("hello" + " " + "world")`)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)
}

func TestInterpret_ClassesAndInheritance(t *testing.T) {
	source := `
class Animal {
  init(name) {
    _name = name
  }
  name { _name }
  speak() { "..." }
}

class Dog is Animal {
  speak() { this.name + " says woof" }
}

var d = new Dog("Rex")
System.print(d.speak())
System.print(d.name)
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "Rex says woof\nRex\n", out)
}

func TestInterpret_ClosuresCaptureUpvalues(t *testing.T) {
	source := `
var makeCounter = {
  var count = 0
  return { count = count + 1 }
}

var counter = makeCounter.call()
System.print(counter.call())
System.print(counter.call())
System.print(counter.call())
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInterpret_WhileLoopAndBreak(t *testing.T) {
	source := `
var i = 0
var sum = 0
while (true) {
  if (i >= 5) break
  sum = sum + i
  i = i + 1
}
System.print(sum)
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "10\n", out)
}

func TestInterpret_ForInOverRange(t *testing.T) {
	source := `
var total = 0
for (i in 1..3) {
  total = total + i
}
System.print(total)
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "6\n", out)
}

func TestInterpret_ListAndMapLiterals(t *testing.T) {
	source := `
var xs = [1, 2, 3]
System.print(xs[1])

var m = {"a": 1, "b": 2}
System.print(m["b"])
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "2\n2\n", out)
}

func TestInterpret_FibersYieldAndResume(t *testing.T) {
	source := `
var f = Fiber.new({
  System.print("start")
  var x = Fiber.yield(1)
  System.print(x)
})

System.print(f.call())
System.print(f.call(99))
`
	out, _, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, "start\n1\n99\n99\n", out)
}

func TestInterpret_UncaughtErrorReportsStackTrace(t *testing.T) {
	source := `
class Thing {
  oops() { this.noSuchMethod() }
}
var t = new Thing()
t.oops()
`
	_, result, err := run(t, source)
	require.Error(t, err)
	assert.Equal(t, vm.ResultRuntimeErrorOutcome, result)

	rerr, ok := err.(*vm.RuntimeError)
	require.True(t, ok, "expected *vm.RuntimeError, got %T", err)
	assert.Contains(t, rerr.Message, "does not implement")
	assert.NotEmpty(t, rerr.Trace, "expected a non-empty stack trace")
}

func TestInterpret_CompileErrorReportsDiagnostic(t *testing.T) {
	var diag string
	vmInst := vm.NewVM(vm.Config{
		Compile: compiler.Compile,
		Error: func(errType vm.ErrorType, module string, line int, message string) {
			if errType == vm.ErrorCompile {
				diag = message
			}
		},
	})
	result, err := vmInst.Interpret("test", `var = `)
	assert.Equal(t, vm.ResultCompileError, result)
	require.Error(t, err)
	assert.NotEmpty(t, diag)
}

func TestInterpret_ModuleImport(t *testing.T) {
	modules := map[string]string{
		"greeter": `var Greeting = "hi from greeter"`,
	}
	var out strings.Builder
	vmInst := vm.NewVM(vm.Config{
		Compile: compiler.Compile,
		LoadModule: func(name string) (string, bool) {
			src, ok := modules[name]
			return src, ok
		},
		Write: func(s string) { out.WriteString(s) },
	})

	result, err := vmInst.Interpret("main", `
import "greeter" for Greeting
System.print(Greeting)
`)
	require.NoError(t, err)
	assert.Equal(t, vm.ResultSuccess, result)
	assert.Equal(t, "hi from greeter\n", out.String())
}
