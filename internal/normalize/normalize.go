// Package normalize implements the single AST pre-pass described in
// spec.md §4.5: it rewrites a function body into canonical form (implicit
// `return null` at the end of every function-body block that doesn't
// already end terminally) and rejects unsupported syntax up front, before
// any lowering begins — mirroring the teacher's normalize-then-execute
// shape (models.Process is decoded once, then engine.Execute runs against
// the decoded, validated shape without re-checking it mid-flight).
package normalize

import (
	"flowjs-works/aslcompiler/internal/ast"
	"flowjs-works/aslcompiler/internal/compileerr"
)

// Normalize rewrites fn.Body in place (appending an implicit `return null`
// when needed) and walks the whole tree rejecting unsupported constructs.
// It returns the first rejection encountered, or nil if the tree is clean.
func Normalize(fn *ast.Function) error {
	fn.Body = normalizeBlock(fn.Body)
	normalizeArrowBodies(fn.Body)
	return walkReject(fn.Body)
}

// normalizeArrowBodies applies normalizeBlock's implicit-terminal-return
// rule to every inline array-method callback body in the tree, so C11
// never has to special-case a callback falling off its block's end.
func normalizeArrowBodies(body []ast.Stmt) {
	for i := range body {
		walkArrowsStmt(&body[i])
	}
}

func walkArrowsStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.StmtBlock:
		normalizeArrowBodies(s.Body)
	case ast.StmtIf:
		walkArrowsExpr(s.Test)
		walkArrowsStmt(s.Consequent)
		if s.Alternate != nil {
			walkArrowsStmt(s.Alternate)
		}
	case ast.StmtFor, ast.StmtWhile, ast.StmtDoWhile, ast.StmtForOf, ast.StmtForIn:
		normalizeArrowBodies(s.Body)
		if s.Init != nil {
			walkArrowsStmt(s.Init)
		}
		walkArrowsExpr(s.Test)
		walkArrowsExpr(s.Update)
		walkArrowsExpr(s.Right)
	case ast.StmtReturn, ast.StmtThrow:
		walkArrowsExpr(s.Argument)
	case ast.StmtTry:
		normalizeArrowBodies(s.TryBlock)
		if s.HasCatch {
			normalizeArrowBodies(s.CatchBlock)
		}
		if s.HasFinally {
			normalizeArrowBodies(s.FinallyBlock)
		}
	case ast.StmtVarDecl:
		for _, d := range s.Decls {
			walkArrowsExpr(d.Init)
		}
	case ast.StmtExpression:
		walkArrowsExpr(s.Expression)
	}
}

func walkArrowsExpr(e *ast.Expr) {
	if e == nil {
		return
	}
	if e.Kind == ast.ExprArrow {
		e.ArrowBody = normalizeBlock(e.ArrowBody)
		normalizeArrowBodies(e.ArrowBody)
		return
	}
	switch e.Kind {
	case ast.ExprObject:
		for _, p := range e.Props {
			walkArrowsExpr(p.Value)
			walkArrowsExpr(p.Spread)
		}
	case ast.ExprArray:
		for i := range e.Elements {
			walkArrowsExpr(&e.Elements[i])
		}
	case ast.ExprTemplate:
		for i := range e.Expressions {
			walkArrowsExpr(&e.Expressions[i])
		}
	case ast.ExprMember:
		walkArrowsExpr(e.Object)
		walkArrowsExpr(e.Property)
	case ast.ExprUnary, ast.ExprUpdate:
		walkArrowsExpr(e.Operand)
	case ast.ExprTypeof, ast.ExprAwait, ast.ExprSpread:
		walkArrowsExpr(e.Argument)
	case ast.ExprBinary, ast.ExprLogical, ast.ExprAssign:
		walkArrowsExpr(e.Left)
		walkArrowsExpr(e.Right)
	case ast.ExprConditional:
		walkArrowsExpr(e.Test)
		walkArrowsExpr(e.Consequent)
		walkArrowsExpr(e.Alternate)
	case ast.ExprCall:
		walkArrowsExpr(e.Callee)
		for i := range e.Arguments {
			walkArrowsExpr(&e.Arguments[i])
		}
	}
}

// normalizeBlock appends `return null` to body when its last statement
// does not always terminate (spec.md §4.5), so the statement lowerer (C7)
// never has to special-case a function falling off the end of its body.
func normalizeBlock(body []ast.Stmt) []ast.Stmt {
	if len(body) > 0 && body[len(body)-1].IsTerminal() {
		return body
	}
	nullReturn := ast.Stmt{
		Kind:     ast.StmtReturn,
		Argument: &ast.Expr{Kind: ast.ExprLiteral, IsNullLit: true},
	}
	return append(body, nullReturn)
}

// walkReject rejects `with`, switch/case/default, object rest patterns
// and spread call arguments anywhere in the tree (spec.md §4.5). This AST
// has no node or flag for for-await-of, rest parameters or classes, so
// the normalizer rejects none of them; a "new X(...)" call where X isn't
// the two blessed throw-constructor names (Error / StepFunctionError) is
// the C7 throw-statement's job to reject, not the normalizer's.
func walkReject(body []ast.Stmt) error {
	for i := range body {
		if err := walkRejectStmt(&body[i]); err != nil {
			return err
		}
	}
	return nil
}

func walkRejectStmt(s *ast.Stmt) error {
	switch s.Kind {
	case ast.StmtSwitch:
		return compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span), "switch/case/default is not supported")
	case ast.StmtWith:
		return compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(s.Span), "with statements are not supported")
	case ast.StmtBlock:
		return walkReject(s.Body)
	case ast.StmtIf:
		if err := walkRejectExpr(s.Test); err != nil {
			return err
		}
		if err := walkRejectStmt(s.Consequent); err != nil {
			return err
		}
		if s.Alternate != nil {
			return walkRejectStmt(s.Alternate)
		}
	case ast.StmtFor, ast.StmtWhile, ast.StmtDoWhile:
		if s.Init != nil {
			if err := walkRejectStmt(s.Init); err != nil {
				return err
			}
		}
		if s.Test != nil {
			if err := walkRejectExpr(s.Test); err != nil {
				return err
			}
		}
		if s.Update != nil {
			if err := walkRejectExpr(s.Update); err != nil {
				return err
			}
		}
		return walkReject(s.Body)
	case ast.StmtForOf, ast.StmtForIn:
		if err := walkRejectPattern(&s.Left); err != nil {
			return err
		}
		if err := walkRejectExpr(s.Right); err != nil {
			return err
		}
		return walkReject(s.Body)
	case ast.StmtReturn, ast.StmtThrow:
		if s.Argument != nil {
			return walkRejectExpr(s.Argument)
		}
	case ast.StmtTry:
		if err := walkReject(s.TryBlock); err != nil {
			return err
		}
		if s.HasCatch {
			if s.CatchParam != nil {
				if err := walkRejectPattern(s.CatchParam); err != nil {
					return err
				}
			}
			if err := walkReject(s.CatchBlock); err != nil {
				return err
			}
		}
		if s.HasFinally {
			return walkReject(s.FinallyBlock)
		}
	case ast.StmtVarDecl:
		for _, d := range s.Decls {
			if err := walkRejectPattern(&d.ID); err != nil {
				return err
			}
			if d.Init != nil {
				if err := walkRejectExpr(d.Init); err != nil {
					return err
				}
			}
		}
	case ast.StmtExpression:
		if s.Expression != nil {
			return walkRejectExpr(s.Expression)
		}
	}
	return nil
}

func walkRejectPattern(p *ast.Pattern) error {
	switch p.Kind {
	case ast.PatternObject:
		if p.RestProperty != nil {
			return compileerr.New(compileerr.CodeUnsupportedFeature, compileerr.Span{}, "object rest patterns are not supported (ASL cannot enumerate keys)")
		}
		for i := range p.Properties {
			if err := walkRejectPattern(&p.Properties[i].Value); err != nil {
				return err
			}
		}
	case ast.PatternArray:
		for i := range p.Elements {
			if p.Elements[i].Pattern != nil {
				if err := walkRejectPattern(p.Elements[i].Pattern); err != nil {
					return err
				}
			}
		}
		if p.Rest != nil {
			return walkRejectPattern(p.Rest)
		}
	}
	return nil
}

func walkRejectExpr(e *ast.Expr) error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.ExprObject:
		for _, p := range e.Props {
			if p.Value != nil {
				if err := walkRejectExpr(p.Value); err != nil {
					return err
				}
			}
			if p.Spread != nil {
				if err := walkRejectExpr(p.Spread); err != nil {
					return err
				}
			}
		}
	case ast.ExprArray:
		for i := range e.Elements {
			if err := walkRejectExpr(&e.Elements[i]); err != nil {
				return err
			}
		}
	case ast.ExprTemplate:
		for i := range e.Expressions {
			if err := walkRejectExpr(&e.Expressions[i]); err != nil {
				return err
			}
		}
	case ast.ExprMember:
		if err := walkRejectExpr(e.Object); err != nil {
			return err
		}
		return walkRejectExpr(e.Property)
	case ast.ExprUnary, ast.ExprUpdate:
		return walkRejectExpr(e.Operand)
	case ast.ExprTypeof, ast.ExprAwait, ast.ExprSpread:
		return walkRejectExpr(e.Argument)
	case ast.ExprArrow:
		return walkReject(e.ArrowBody)
	case ast.ExprBinary, ast.ExprLogical, ast.ExprAssign:
		if err := walkRejectExpr(e.Left); err != nil {
			return err
		}
		return walkRejectExpr(e.Right)
	case ast.ExprConditional:
		if err := walkRejectExpr(e.Test); err != nil {
			return err
		}
		if err := walkRejectExpr(e.Consequent); err != nil {
			return err
		}
		return walkRejectExpr(e.Alternate)
	case ast.ExprCall:
		if err := walkRejectExpr(e.Callee); err != nil {
			return err
		}
		for i := range e.Arguments {
			if e.Arguments[i].Kind == ast.ExprSpread {
				return compileerr.New(compileerr.CodeUnsupportedFeature, spanOf(e.Arguments[i].Span), "rest/spread call arguments are not supported")
			}
			if err := walkRejectExpr(&e.Arguments[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func spanOf(s ast.Span) compileerr.Span {
	return compileerr.Span{Line: s.Line, Column: s.Column}
}
