package namer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/funvibe/sigcheck/internal/ast"
	"github.com/funvibe/sigcheck/internal/config"
)

// DefinitionHash digests everything in a file that can influence the
// symbol table: definitions, signatures, type syntax, field declarations and
// their positions. Method bodies are left out except for whether they are
// empty, which abstract method validation reads. Two versions of a file with
// the same hash differ only in code that inference alone consumes.
func DefinitionHash(prog *ast.Program) string {
	h := sha256.New()
	fmt.Fprintf(h, "sigil %s\n", prog.Sigil)
	hashBody(h, prog.Body)
	return hex.EncodeToString(h.Sum(nil))
}

func hashBody(h hash.Hash, body []ast.Expr) {
	for _, stmt := range body {
		switch n := stmt.(type) {
		case *ast.ClassDef:
			fmt.Fprintf(h, "class %s %v module=%v\n", n.Name, n.Name.Loc, n.IsModule)
			if n.Superclass != nil {
				hashNode(h, "super", n.Superclass)
			}
			hashBody(h, n.Body)
			fmt.Fprintln(h, "end")
		case *ast.MethodDef:
			fmt.Fprintf(h, "def %s self=%v %v body=%v\n", n.Name, n.IsSelf, n.NameLoc, len(n.Body) > 0)
			for _, p := range n.Params {
				fmt.Fprintf(h, "param %s %s %v default=%v\n", p.Kind, p.Name, p.Loc, p.Default != nil)
			}
			if n.Name == config.InitializeMethod {
				for _, s := range n.Body {
					if field := declaredField(s); field != nil {
						hashNode(h, "field", field)
					}
				}
			}
		case *ast.Sig:
			hashNode(h, "sig", n)
			fmt.Fprintf(h, "flags %v %v %v %v %v %v %v\n", n.TypeParams, n.Void, n.Abstract, n.Override, n.Overridable, n.Final, n.Overload)
		case *ast.Include, *ast.ConstDef, *ast.TypeAlias, *ast.TypeMemberDef, *ast.ClassFlag, *ast.Enums:
			hashNode(h, "def", n)
		default:
			if field := declaredField(stmt); field != nil {
				hashNode(h, "field", field)
			}
		}
	}
}

// hashNode writes every node of a subtree with its location plus the names
// and literal values that change its meaning.
func hashNode(h hash.Hash, label string, n ast.Node) {
	fmt.Fprintf(h, "%s {\n", label)
	ast.Inspect(n, func(c ast.Node) bool {
		fmt.Fprintf(h, "%T %v", c, c.GetLoc())
		switch c := c.(type) {
		case *ast.ConstRef:
			fmt.Fprintf(h, " %s", c)
		case *ast.TypeName:
			fmt.Fprintf(h, " %s/%d", c.Ref, len(c.Args))
		case *ast.TypeParamRef:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.TypeShape:
			for _, f := range c.Fields {
				fmt.Fprintf(h, " %q/%v", f.Key, f.Symbol)
			}
		case *ast.SigParam:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.TypeMemberDef:
			fmt.Fprintf(h, " %s %d", c.Name, c.Variance)
		case *ast.TypeAlias:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.ConstDef:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.ClassFlag:
			fmt.Fprintf(h, " %s", c.Flag)
		case *ast.EnumCase:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.Ivar:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.Local:
			fmt.Fprintf(h, " %s", c.Name)
		case *ast.Call:
			fmt.Fprintf(h, " %s", c.Method)
		case *ast.IntLit, *ast.FloatLit, *ast.StringLit, *ast.SymbolLit:
			fmt.Fprintf(h, " %v", c)
		case *ast.Cast:
			fmt.Fprintf(h, " %d", c.Kind)
		}
		fmt.Fprintln(h)
		return true
	})
	fmt.Fprintln(h, "}")
}
