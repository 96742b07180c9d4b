package config

import "strings"

// AST interchange files produced by the external parser.
var SourceFileExtensions = []string{".ast.yaml", ".ast.yml", ".ast.json"}

// HasSourceExt reports whether path names an AST interchange file.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TrimSourceExt removes a recognized source extension from name.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// ConfigFileNames are searched for by FindConfig, in order.
var ConfigFileNames = []string{"sigcheck.yaml", "sigcheck.yml"}

// IsTestMode is set from SIGCHECK_TEST_MODE=1. Internal
// errors then fail the run instead of only being logged.
var IsTestMode = false

// Builtin class and module names entered by the prelude.
const (
	RootName          = "<root>"
	BasicObjectName   = "BasicObject"
	ObjectName        = "Object"
	ModuleName        = "Module"
	ClassName         = "Class"
	KernelName        = "Kernel"
	ComparableName    = "Comparable"
	NilClassName      = "NilClass"
	TrueClassName     = "TrueClass"
	FalseClassName    = "FalseClass"
	NumericName       = "Numeric"
	IntegerName       = "Integer"
	FloatName         = "Float"
	StringName        = "String"
	SymbolName        = "Symbol"
	ArrayName         = "Array"
	HashName          = "Hash"
	ExceptionName     = "Exception"
	StandardErrorName = "StandardError"
	RuntimeErrorName  = "RuntimeError"
	ArgumentErrorName = "ArgumentError"
	TModuleName       = "T"
	BooleanAliasName  = "Boolean"
	EnumName          = "Enum"
)

// Method names the checker gives special meaning to.
const (
	InitializeMethod = "initialize"
	NewMethod        = "new"
	NilPMethod       = "nil?"
	IsAMethod        = "is_a?"
	KindOfMethod     = "kind_of?"
	EqMethod         = "=="
	NeqMethod        = "!="
	CaseEqMethod     = "==="
	BangMethod       = "!"
)

// Canonical generic parameter names of the builtin collections.
const (
	ArrayElemName = "Elem"
	HashKeyName   = "K"
	HashValueName = "V"
)
