package astextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_FunctionSignatureAndInferredReturn(t *testing.T) {
	source := "def add(a, b):\n    return a + b\n"
	out, err := New().Extract("math.py", source)
	require.NoError(t, err)
	assert.Contains(t, out, "def add(a, b) -> Any")
}

func TestExtract_NoReturnInfersNone(t *testing.T) {
	source := "def log(msg):\n    print(msg)\n"
	out, err := New().Extract("log.py", source)
	require.NoError(t, err)
	assert.Contains(t, out, "def log(msg) -> None")
}

func TestExtract_ExplicitAnnotationWins(t *testing.T) {
	source := "def add(a: int, b: int) -> int:\n    return a + b\n"
	out, err := New().Extract("math.py", source)
	require.NoError(t, err)
	assert.Contains(t, out, "-> int")
}

func TestExtract_ClassMethodsSummarized(t *testing.T) {
	source := "class Greeter:\n    def __init__(self, name):\n        self.name = name\n\n    def greet(self):\n        return f'hi {self.name}'\n"
	out, err := New().Extract("greeter.py", source)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "class Greeter"))
	assert.Contains(t, out, "__init__(self, name)")
	assert.Contains(t, out, "greet(self) -> Any")
}

func TestExtract_NestedFunctionReturnDoesNotLeakToOuter(t *testing.T) {
	source := "def outer():\n    def inner():\n        return 1\n    inner()\n"
	out, err := New().Extract("nested.py", source)
	require.NoError(t, err)
	assert.Contains(t, out, "def outer() -> None")
}
