package resolver

import (
	_ "embed"
	"strings"
)

//go:embed stdlib/python.txt
var pythonStdlibData string

var pythonStdlib = map[string]bool{}

func init() {
	for _, line := range strings.Split(pythonStdlibData, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			pythonStdlib[line] = true
			// Add base name: e.g. urllib.request -> urllib
			parts := strings.Split(line, ".")
			pythonStdlib[parts[0]] = true
		}
	}
}

// IsStdlib reports whether a dotted module name belongs to the Python
// standard library.
func IsStdlib(module string) bool {
	if pythonStdlib[module] {
		return true
	}
	if i := strings.IndexByte(module, '.'); i > 0 {
		return pythonStdlib[module[:i]]
	}
	return false
}

// IsBuiltin reports whether a name is a Python builtin.
func IsBuiltin(name string) bool {
	return pythonBuiltins[name]
}

var pythonBuiltins = map[string]bool{
	"abs": true, "aiter": true, "all": true, "anext": true, "any": true,
	"ascii": true, "bin": true, "bool": true, "breakpoint": true, "bytearray": true,
	"bytes": true, "callable": true, "chr": true, "classmethod": true, "compile": true,
	"complex": true, "delattr": true, "dict": true, "dir": true, "divmod": true,
	"enumerate": true, "eval": true, "exec": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "globals": true, "hasattr": true,
	"hash": true, "help": true, "hex": true, "id": true, "input": true,
	"int": true, "isinstance": true, "issubclass": true, "iter": true, "len": true,
	"list": true, "locals": true, "map": true, "max": true, "memoryview": true,
	"min": true, "next": true, "object": true, "oct": true, "open": true,
	"ord": true, "pow": true, "print": true, "property": true, "range": true,
	"repr": true, "reversed": true, "round": true, "set": true, "setattr": true,
	"slice": true, "sorted": true, "staticmethod": true, "str": true, "sum": true,
	"super": true, "tuple": true, "type": true, "vars": true, "zip": true,
	"__import__": true, "Exception": true, "BaseException": true, "ValueError": true,
	"TypeError": true, "KeyError": true, "IndexError": true, "AttributeError": true,
	"RuntimeError": true, "StopIteration": true, "OSError": true, "IOError": true,
	"NotImplementedError": true, "FileNotFoundError": true, "ImportError": true,
	"ModuleNotFoundError": true, "ZeroDivisionError": true, "ArithmeticError": true,
	"OverflowError": true, "UnicodeDecodeError": true, "UnicodeEncodeError": true,
	"KeyboardInterrupt": true, "SystemExit": true, "None": true, "True": true,
	"False": true, "NotImplemented": true, "Ellipsis": true,
}
