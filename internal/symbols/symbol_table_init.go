package symbols

import (
	"sync"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
	"github.com/funvibe/sigcheck/internal/typesystem"
)

// Well-known symbols. The prelude enters them in exactly this order, so
// their ids are the same in every GlobalState derived from it.
const (
	RootID SymbolID = iota + 1
	BasicObjectID
	ObjectID
	ModuleID
	ClassID
	KernelID
	ComparableID
	EnumerableID
	NilClassID
	TrueClassID
	FalseClassID
	NumericID
	IntegerID
	FloatID
	StringID
	SymbolClassID
	ArrayID
	HashID
	ExceptionID
	StandardErrorID
	RuntimeErrorID
	ArgumentErrorID
	TModuleID
	TEnumID
	TBooleanID
)

var (
	preludeState *GlobalState
	preludeOnce  sync.Once
)

// GetPrelude returns the frozen GlobalState holding the builtin classes.
// Every full run starts from a DeepCopy of it.
func GetPrelude() *GlobalState {
	preludeOnce.Do(func() {
		gs := NewGlobalState()
		gs.InitBuiltins()
		gs.Freeze()
		preludeState = gs
	})
	return preludeState
}

type builtinClass struct {
	id       SymbolID
	owner    SymbolID
	name     string
	module   bool
	super    SymbolID
	mixins   []SymbolID
	abstract bool
}

// InitBuiltins enters the builtin classes, their type members and the
// signatures of their methods.
func (gs *GlobalState) InitBuiltins() {
	classes := []builtinClass{
		{BasicObjectID, RootID, config.BasicObjectName, false, NoSymbol, nil, false},
		{ObjectID, RootID, config.ObjectName, false, BasicObjectID, []SymbolID{KernelID}, false},
		{ModuleID, RootID, config.ModuleName, false, ObjectID, nil, false},
		{ClassID, RootID, config.ClassName, false, ModuleID, nil, false},
		{KernelID, RootID, config.KernelName, true, NoSymbol, nil, false},
		{ComparableID, RootID, config.ComparableName, true, NoSymbol, nil, false},
		{EnumerableID, RootID, "Enumerable", true, NoSymbol, nil, false},
		{NilClassID, RootID, config.NilClassName, false, ObjectID, nil, false},
		{TrueClassID, RootID, config.TrueClassName, false, ObjectID, nil, false},
		{FalseClassID, RootID, config.FalseClassName, false, ObjectID, nil, false},
		{NumericID, RootID, config.NumericName, false, ObjectID, []SymbolID{ComparableID}, false},
		{IntegerID, RootID, config.IntegerName, false, NumericID, nil, false},
		{FloatID, RootID, config.FloatName, false, NumericID, nil, false},
		{StringID, RootID, config.StringName, false, ObjectID, []SymbolID{ComparableID}, false},
		{SymbolClassID, RootID, config.SymbolName, false, ObjectID, []SymbolID{ComparableID}, false},
		{ArrayID, RootID, config.ArrayName, false, ObjectID, []SymbolID{EnumerableID}, false},
		{HashID, RootID, config.HashName, false, ObjectID, nil, false},
		{ExceptionID, RootID, config.ExceptionName, false, ObjectID, nil, false},
		{StandardErrorID, RootID, config.StandardErrorName, false, ExceptionID, nil, false},
		{RuntimeErrorID, RootID, config.RuntimeErrorName, false, StandardErrorID, nil, false},
		{ArgumentErrorID, RootID, config.ArgumentErrorName, false, StandardErrorID, nil, false},
		{TModuleID, RootID, config.TModuleName, true, NoSymbol, nil, false},
		{TEnumID, TModuleID, config.EnumName, false, ObjectID, nil, true},
	}
	for _, c := range classes {
		id, _ := gs.EnterClass(c.owner, c.name, c.module)
		if id != c.id {
			typesystem.Internalf("builtin %s entered as %d, want %d", c.name, id, c.id)
		}
		sym := gs.symbols[id]
		sym.Superclass = c.super
		sym.Mixins = c.mixins
		if c.abstract {
			sym.Flags |= FlagAbstract
		}
	}
	boolID, _ := gs.EnterMember(TModuleID, config.BooleanAliasName, TypeAliasSymbol)
	if boolID != TBooleanID {
		typesystem.Internalf("T::Boolean entered as %d, want %d", boolID, TBooleanID)
	}
	gs.symbols[boolID].Type = gs.booleanType()
	// T::Array and T::Hash name the builtin collections.
	gs.symbols[TModuleID].Members[config.ArrayName] = ArrayID
	gs.symbols[TModuleID].Members[config.HashName] = HashID

	gs.builtinMember(EnumerableID, config.ArrayElemName, typesystem.Covariant)
	gs.builtinMember(ArrayID, config.ArrayElemName, typesystem.Covariant)
	gs.builtinMember(HashID, config.HashKeyName, typesystem.Covariant)
	gs.builtinMember(HashID, config.HashValueName, typesystem.Covariant)

	gs.initBuiltinMethods()
	for _, c := range classes {
		gs.Linearize(c.id)
	}
}

func (gs *GlobalState) builtinMember(class SymbolID, name string, v typesystem.Variance) {
	id, _ := gs.EnterMember(class, name, TypeMemberSymbol)
	sym := gs.symbols[id]
	sym.Variance = v
	sym.Flags |= FlagBoundsResolved
}

func (gs *GlobalState) booleanType() typesystem.Type {
	return typesystem.NewUnion(gs.ExternalType(TrueClassID), gs.ExternalType(FalseClassID))
}

// builtinSig accumulates a signature for a builtin method.
type builtinSig struct {
	params []SigParam
	ret    typesystem.Type
}

func sig(ret typesystem.Type, params ...SigParam) builtinSig {
	return builtinSig{params: params, ret: ret}
}

func req(name string, t typesystem.Type) SigParam {
	return SigParam{Name: name, Kind: ast.ParamReq, Type: t}
}

func opt(name string, t typesystem.Type) SigParam {
	return SigParam{Name: name, Kind: ast.ParamOpt, Type: t}
}

func rest(name string, t typesystem.Type) SigParam {
	return SigParam{Name: name, Kind: ast.ParamRest, Type: t}
}

func blk() SigParam {
	return SigParam{Name: "blk", Kind: ast.ParamBlock, Type: typesystem.Untyped{}}
}

// defineBuiltin enters a method whose overloads are the given signatures.
// The parameter list of the method is taken from the first signature.
func (gs *GlobalState) defineBuiltin(owner SymbolID, name string, sigs ...builtinSig) {
	id, _ := gs.EnterMethod(owner, name)
	sym := gs.symbols[id]
	for _, p := range sigs[0].params {
		sym.Params = append(sym.Params, ParamInfo{Name: p.Name, Kind: p.Kind, HasDefault: p.Kind == ast.ParamOpt})
	}
	for _, s := range sigs {
		sym.Sigs = append(sym.Sigs, &Signature{Params: s.params, Return: s.ret})
	}
	if len(sigs) > 1 {
		sym.Flags |= FlagMethodOverloaded
	}
}

func (gs *GlobalState) member(class SymbolID, name string) typesystem.TypeParam {
	return typesystem.TypeParam{Owner: class, OwnerName: gs.FullName(class), Name: name, Member: true}
}

func (gs *GlobalState) initBuiltinMethods() {
	var (
		untyped   typesystem.Type = typesystem.Untyped{}
		noreturn  typesystem.Type = typesystem.NoReturn{}
		void      typesystem.Type = typesystem.Void{}
		self      typesystem.Type = typesystem.SelfType{}
		boolean                   = gs.booleanType()
		nilT                      = gs.ExternalType(NilClassID)
		integer                   = gs.ExternalType(IntegerID)
		float                     = gs.ExternalType(FloatID)
		numeric                   = gs.ExternalType(NumericID)
		str                       = gs.ExternalType(StringID)
		symbol                    = gs.ExternalType(SymbolClassID)
		module                    = gs.ExternalType(ModuleID)
		enumElem                  = gs.member(EnumerableID, config.ArrayElemName)
		elem                      = gs.member(ArrayID, config.ArrayElemName)
		key                       = gs.member(HashID, config.HashKeyName)
		value                     = gs.member(HashID, config.HashValueName)
	)
	nilable := func(t typesystem.Type) typesystem.Type { return typesystem.NewUnion(t, nilT) }
	arrayOf := func(t typesystem.Type) typesystem.Type { return gs.Array(t) }

	gs.defineBuiltin(BasicObjectID, config.InitializeMethod, sig(void))
	gs.defineBuiltin(BasicObjectID, config.EqMethod, sig(boolean, req("other", untyped)))
	gs.defineBuiltin(BasicObjectID, config.NeqMethod, sig(boolean, req("other", untyped)))
	gs.defineBuiltin(BasicObjectID, config.BangMethod, sig(boolean))
	gs.defineBuiltin(BasicObjectID, "equal?", sig(boolean, req("other", untyped)))

	gs.defineBuiltin(KernelID, "puts", sig(nilT, rest("args", untyped)))
	gs.defineBuiltin(KernelID, "print", sig(nilT, rest("args", untyped)))
	gs.defineBuiltin(KernelID, "p", sig(untyped, rest("args", untyped)))
	gs.defineBuiltin(KernelID, "raise", sig(noreturn, rest("args", untyped)))
	gs.defineBuiltin(KernelID, config.IsAMethod, sig(boolean, req("klass", module)))
	gs.defineBuiltin(KernelID, config.KindOfMethod, sig(boolean, req("klass", module)))
	gs.defineBuiltin(KernelID, config.NilPMethod, sig(boolean))
	gs.defineBuiltin(KernelID, config.CaseEqMethod, sig(boolean, req("other", untyped)))
	gs.defineBuiltin(KernelID, "to_s", sig(str))
	gs.defineBuiltin(KernelID, "inspect", sig(str))
	gs.defineBuiltin(KernelID, "freeze", sig(self))
	gs.defineBuiltin(KernelID, "dup", sig(self))
	gs.defineBuiltin(KernelID, "hash", sig(integer))
	gs.defineBuiltin(KernelID, "respond_to?", sig(boolean, req("name", symbol)))
	gs.defineBuiltin(KernelID, "loop", sig(untyped, blk()))

	gs.defineBuiltin(ModuleID, config.CaseEqMethod, sig(boolean, req("other", untyped)))
	gs.defineBuiltin(ModuleID, "name", sig(nilable(str)))

	gs.defineBuiltin(NilClassID, config.NilPMethod, sig(gs.ExternalType(TrueClassID)))
	gs.defineBuiltin(NilClassID, "to_a", sig(arrayOf(untyped)))

	for _, op := range []string{"<", "<=", ">", ">="} {
		gs.defineBuiltin(ComparableID, op, sig(boolean, req("other", untyped)))
	}
	gs.defineBuiltin(ComparableID, "between?", sig(boolean, req("min", untyped), req("max", untyped)))

	gs.defineBuiltin(EnumerableID, "to_a", sig(arrayOf(enumElem)))
	gs.defineBuiltin(EnumerableID, "count", sig(integer))
	gs.defineBuiltin(EnumerableID, "include?", sig(boolean, req("item", untyped)))
	gs.defineBuiltin(EnumerableID, "first", sig(nilable(enumElem)))
	gs.defineBuiltin(EnumerableID, "map", sig(arrayOf(untyped), blk()))
	gs.defineBuiltin(EnumerableID, "select", sig(arrayOf(enumElem), blk()))
	gs.defineBuiltin(EnumerableID, "each", sig(self, blk()))

	for _, op := range []string{"+", "-", "*", "/"} {
		gs.defineBuiltin(NumericID, op, sig(numeric, req("other", numeric)))
		gs.defineBuiltin(IntegerID, op,
			sig(integer, req("other", integer)),
			sig(float, req("other", float)))
		gs.defineBuiltin(FloatID, op, sig(float, req("other", numeric)))
	}
	gs.defineBuiltin(NumericID, "zero?", sig(boolean))
	gs.defineBuiltin(NumericID, "positive?", sig(boolean))
	gs.defineBuiltin(NumericID, "negative?", sig(boolean))
	gs.defineBuiltin(NumericID, "abs", sig(self))
	gs.defineBuiltin(NumericID, "to_i", sig(integer))
	gs.defineBuiltin(NumericID, "to_f", sig(float))
	gs.defineBuiltin(IntegerID, "%", sig(integer, req("other", integer)))
	gs.defineBuiltin(IntegerID, "times", sig(integer, blk()))
	gs.defineBuiltin(IntegerID, "succ", sig(integer))
	gs.defineBuiltin(IntegerID, "even?", sig(boolean))
	gs.defineBuiltin(IntegerID, "odd?", sig(boolean))
	gs.defineBuiltin(FloatID, "round", sig(integer))
	gs.defineBuiltin(FloatID, "floor", sig(integer))
	gs.defineBuiltin(FloatID, "ceil", sig(integer))
	gs.defineBuiltin(FloatID, "nan?", sig(boolean))

	gs.defineBuiltin(StringID, "+", sig(str, req("other", str)))
	gs.defineBuiltin(StringID, "*", sig(str, req("times", integer)))
	gs.defineBuiltin(StringID, "<<", sig(str, req("other", str)))
	gs.defineBuiltin(StringID, "[]", sig(nilable(str), req("index", integer)))
	gs.defineBuiltin(StringID, "length", sig(integer))
	gs.defineBuiltin(StringID, "size", sig(integer))
	gs.defineBuiltin(StringID, "upcase", sig(str))
	gs.defineBuiltin(StringID, "downcase", sig(str))
	gs.defineBuiltin(StringID, "strip", sig(str))
	gs.defineBuiltin(StringID, "to_sym", sig(symbol))
	gs.defineBuiltin(StringID, "to_i", sig(integer))
	gs.defineBuiltin(StringID, "to_f", sig(float))
	gs.defineBuiltin(StringID, "empty?", sig(boolean))
	gs.defineBuiltin(StringID, "start_with?", sig(boolean, req("prefix", str)))
	gs.defineBuiltin(StringID, "end_with?", sig(boolean, req("suffix", str)))
	gs.defineBuiltin(StringID, "include?", sig(boolean, req("other", str)))
	gs.defineBuiltin(StringID, "split", sig(arrayOf(str), opt("sep", str)))
	gs.defineBuiltin(StringID, "chars", sig(arrayOf(str)))

	gs.defineBuiltin(SymbolClassID, "to_s", sig(str))
	gs.defineBuiltin(SymbolClassID, "to_sym", sig(symbol))
	gs.defineBuiltin(SymbolClassID, "length", sig(integer))

	gs.defineBuiltin(ArrayID, "[]", sig(nilable(elem), req("index", integer)))
	gs.defineBuiltin(ArrayID, "[]=", sig(elem, req("index", integer), req("value", elem)))
	gs.defineBuiltin(ArrayID, "first", sig(nilable(elem)))
	gs.defineBuiltin(ArrayID, "last", sig(nilable(elem)))
	gs.defineBuiltin(ArrayID, "pop", sig(nilable(elem)))
	gs.defineBuiltin(ArrayID, "length", sig(integer))
	gs.defineBuiltin(ArrayID, "size", sig(integer))
	gs.defineBuiltin(ArrayID, "empty?", sig(boolean))
	gs.defineBuiltin(ArrayID, "push", sig(self, rest("items", elem)))
	gs.defineBuiltin(ArrayID, "<<", sig(self, req("item", elem)))
	gs.defineBuiltin(ArrayID, "concat", sig(self, req("other", arrayOf(elem))))
	gs.defineBuiltin(ArrayID, "join", sig(str, opt("sep", str)))
	gs.defineBuiltin(ArrayID, "reverse", sig(arrayOf(elem)))
	gs.defineBuiltin(ArrayID, "sort", sig(arrayOf(elem)))
	gs.defineBuiltin(ArrayID, "uniq", sig(arrayOf(elem)))
	gs.defineBuiltin(ArrayID, "each", sig(self, blk()))

	hashKV := gs.Hash(key, value)
	gs.defineBuiltin(HashID, "[]", sig(nilable(value), req("key", key)))
	gs.defineBuiltin(HashID, "[]=", sig(value, req("key", key), req("value", value)))
	gs.defineBuiltin(HashID, "fetch", sig(value, req("key", key)))
	gs.defineBuiltin(HashID, "key?", sig(boolean, req("key", key)))
	gs.defineBuiltin(HashID, "include?", sig(boolean, req("key", key)))
	gs.defineBuiltin(HashID, "delete", sig(nilable(value), req("key", key)))
	gs.defineBuiltin(HashID, "keys", sig(arrayOf(key)))
	gs.defineBuiltin(HashID, "values", sig(arrayOf(value)))
	gs.defineBuiltin(HashID, "length", sig(integer))
	gs.defineBuiltin(HashID, "size", sig(integer))
	gs.defineBuiltin(HashID, "empty?", sig(boolean))
	gs.defineBuiltin(HashID, "merge", sig(hashKV, req("other", hashKV)))
	gs.defineBuiltin(HashID, "each", sig(self, blk()))

	gs.defineBuiltin(ExceptionID, config.InitializeMethod, sig(void, opt("message", str)))
	gs.defineBuiltin(ExceptionID, "message", sig(str))
	gs.defineBuiltin(ExceptionID, "full_message", sig(str))
	gs.defineBuiltin(ExceptionID, "backtrace", sig(nilable(arrayOf(str))))
}
