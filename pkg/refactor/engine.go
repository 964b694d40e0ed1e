package refactor

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/ast/astutil"

	pkgtypes "github.com/mamaar/goextract/pkg/types"
)

// Engine is the main interface for extraction refactorings
type Engine interface {
	// OfferActions lists the extractions available for a span.
	OfferActions(ctx context.Context, prog *pkgtypes.Program, unitID string, span pkgtypes.Span) ([]*Action, error)

	ExtractField(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*pkgtypes.Result, error)
	ExtractParameter(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*pkgtypes.Result, error)
}

// DefaultEngine implements the Engine interface on top of an Oracle
type DefaultEngine struct {
	oracle    Oracle
	validator *Validator
	config    *Config
	logger    *slog.Logger
}

// Config contains configuration options for the refactoring engine
type Config struct {
	// FallbackName is used for expressions without letters.
	FallbackName string
	// FieldAccessibility of synthesized field names.
	FieldAccessibility pkgtypes.Accessibility
	// Disambiguate appends a numeric suffix to synthesized names that
	// collide; otherwise a collision is a NameConflict.
	Disambiguate bool
	// VerifyTypes type-checks the result and reports new type errors as
	// warnings.
	VerifyTypes bool
	// Observer is notified before every edit step.
	Observer func(Step)
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() *Config {
	return &Config{
		FallbackName:       DefaultFallbackName,
		FieldAccessibility: pkgtypes.Private,
		Disambiguate:       true,
		VerifyTypes:        true,
	}
}

func NewEngine(oracle Oracle, config *Config, logger *slog.Logger) *DefaultEngine {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FallbackName == "" {
		config.FallbackName = DefaultFallbackName
	}
	return &DefaultEngine{
		oracle:    oracle,
		validator: NewValidator(logger),
		config:    config,
		logger:    logger,
	}
}

// OfferActions returns the extractions applicable to the expression at
// span: none, one or both of "Extract field" and "Extract parameter".
// Nothing is edited.
func (e *DefaultEngine) OfferActions(ctx context.Context, prog *pkgtypes.Program, unitID string, span pkgtypes.Span) ([]*Action, error) {
	t, err := e.target(ctx, prog, pkgtypes.ExtractRequest{Unit: unitID, Span: span})
	if err != nil {
		if errors.Is(err, errNoTarget) {
			return nil, nil
		}
		return nil, err
	}

	req := pkgtypes.ExtractRequest{Unit: t.unit.ID, Span: t.span}
	var actions []*Action
	if _, err := EnclosingType(ctx, e.oracle, prog, t.unit.ID, t.expr); err == nil {
		actions = append(actions, e.newAction(pkgtypes.ExtractFieldAction, prog, req, t.text()))
	} else if !pkgtypes.IsErrorType(err, pkgtypes.ResolutionError) {
		return nil, err
	}
	if t.routine != nil {
		actions = append(actions, e.newAction(pkgtypes.ExtractParameterAction, prog, req, t.text()))
	}
	e.logger.Debug("actions offered", "unit", t.unit.ID, "span", t.span, "count", len(actions))
	return actions, nil
}

// ExtractField moves the expression into a new field of the enclosing
// struct type and initializes the field in the type's composite literals.
func (e *DefaultEngine) ExtractField(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*pkgtypes.Result, error) {
	p, err := e.planField(ctx, prog, req)
	if err != nil {
		return nil, fmt.Errorf("extract field: %w", err)
	}
	return e.apply(ctx, prog, p)
}

// ExtractParameter moves the expression into a new trailing parameter of
// the enclosing routine and passes it at every call site.
func (e *DefaultEngine) ExtractParameter(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*pkgtypes.Result, error) {
	p, err := e.planParameter(ctx, prog, req)
	if err != nil {
		return nil, fmt.Errorf("extract parameter: %w", err)
	}
	return e.apply(ctx, prog, p)
}

var errNoTarget = errors.New("no extractable expression")

// target is the expression an extraction works on, resolved in the
// original snapshot.
type target struct {
	unit    *pkgtypes.SourceUnit
	span    pkgtypes.Span
	expr    ast.Expr
	tv      gotypes.TypeAndValue
	pkg     *pkgtypes.TypedPackage
	routine *ast.FuncDecl
}

func (t *target) text() string { return t.unit.Slice(t.span) }

// target locates and classifies the expression of req. Anything that does
// not denote a value yields errNoTarget.
func (e *DefaultEngine) target(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*target, error) {
	unitID, err := prog.ResolveUnit(req.Unit)
	if err != nil {
		return nil, err
	}
	expr, err := Locate(prog, unitID, req.Span)
	if err != nil {
		return nil, err
	}
	if expr == nil {
		return nil, errNoTarget
	}
	u := prog.Unit(unitID)

	tp, err := e.oracle.Package(ctx, prog, unitID)
	if err != nil {
		return nil, err
	}
	tv, err := e.oracle.TypeOf(ctx, prog, unitID, expr)
	if err != nil {
		return nil, err
	}
	if !extractable(u.AST, expr, tv, tp.Info) {
		return nil, errNoTarget
	}
	return &target{
		unit:    u,
		span:    u.SpanOf(expr),
		expr:    expr,
		tv:      tv,
		pkg:     tp,
		routine: EnclosingRoutine(u.AST, expr),
	}, nil
}

// extractable reports whether expr denotes a single value that may be
// replaced by a reference: not a type, package name, builtin or void call,
// and not the target of an assignment.
func extractable(file *ast.File, expr ast.Expr, tv gotypes.TypeAndValue, info *gotypes.Info) bool {
	if tv.IsType() || tv.IsVoid() || tv.IsBuiltin() {
		return false
	}
	if _, ok := tv.Type.(*gotypes.Tuple); ok {
		return false
	}
	if id, ok := expr.(*ast.Ident); ok {
		if _, ok := info.Uses[id].(*gotypes.PkgName); ok {
			return false
		}
	}
	path, _ := astutil.PathEnclosingInterval(file, expr.Pos(), expr.End())
	for _, n := range path[1:] {
		switch p := n.(type) {
		case *ast.ParenExpr:
			continue
		case *ast.AssignStmt:
			return !slices.ContainsFunc(p.Lhs, func(l ast.Expr) bool { return encloses(l, expr) })
		case *ast.IncDecStmt:
			return !encloses(p.X, expr)
		case *ast.RangeStmt:
			return !encloses(p.Key, expr) && !encloses(p.Value, expr)
		}
		break
	}
	return true
}

func encloses(outer ast.Node, inner ast.Node) bool {
	return outer != nil && outer.Pos() <= inner.Pos() && inner.End() <= outer.End()
}

// plan is a validated extraction: every check has passed and the edits are
// ready to run.
type plan struct {
	kind        pkgtypes.ActionKind
	name        string
	description string
	steps       []step
	issues      []pkgtypes.Issue
}

func (e *DefaultEngine) planField(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*plan, error) {
	t, err := e.requireTarget(ctx, prog, req)
	if err != nil {
		return nil, err
	}
	owner, err := EnclosingType(ctx, e.oracle, prog, t.unit.ID, t.expr)
	if err != nil {
		return nil, err
	}
	named, ok := gotypes.Unalias(owner.Object.Type()).(*gotypes.Named)
	if !ok {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: fmt.Sprintf("%s is not a named type", owner.Name),
		}
	}
	re, err := analyzeExpr(t.pkg, t.unit, t.expr, t.routine, packageLevelOnly)
	if err != nil {
		return nil, err
	}

	p := &plan{kind: pkgtypes.ExtractFieldAction}
	name, accessibility, err := e.fieldName(req.Name, t, memberNames(named), p)
	if err != nil {
		return nil, err
	}
	decl, err := BuildField(name, t.expr, t.tv.Type, accessibility, owner)
	if err != nil {
		return nil, err
	}
	p.name = name
	p.description = fmt.Sprintf("Extract %s into field %s.%s", t.text(), owner.Name, name)

	ownerUnit := prog.Unit(owner.Unit)
	if ownerUnit == nil {
		return nil, unitNotFound(owner.Unit)
	}
	ownerPkg, err := e.oracle.Package(ctx, prog, owner.Unit)
	if err != nil {
		return nil, err
	}
	imports := newImportSet()
	typeStr, needed := typeText(decl.Type, ownerPkg.Types, importsOf(ownerPkg, ownerUnit.AST))
	imports.add(owner.Unit, needed)
	if decl.Degraded {
		p.issues = append(p.issues, degradedIssue(t))
	}

	recvField := t.routine.Recv.List[0]
	recvName := ""
	if len(recvField.Names) > 0 && recvField.Names[0].Name != "_" {
		recvName = recvField.Names[0].Name
	} else {
		recvName = receiverName(t.routine, owner.Name)
	}

	if recvName == recvFieldName(recvField) {
		recv := t.pkg.Info.Defs[recvField.Names[0]]
		if _, obj := scopeAt(t.pkg.Types, t.expr.Pos()).LookupParent(recvName, t.expr.Pos()); recv == nil || obj != recv {
			return nil, (&pkgtypes.RefactorError{
				Type:    pkgtypes.InvalidOperation,
				Message: fmt.Sprintf("receiver %s is shadowed at the expression; %s.%s would not refer to the new field", recvName, recvName, name),
			}).Located(t.unit, t.span.Start)
		}
	}

	p.steps = append(p.steps, replaceStep(t, recvName+"."+name))
	if recvName != recvFieldName(recvField) {
		recvSpan := t.unit.SpanOf(recvField)
		p.steps = append(p.steps, step{
			description: fmt.Sprintf("Name receiver of %s %s", t.routine.Name.Name, recvName),
			apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
				u, field, err := currentNode[*ast.Field](cur, tr, t.unit.ID, recvSpan)
				if err != nil {
					return nil, nil, err
				}
				next, change, err := NameReceiver(cur, u.ID, field, recvName)
				return next, []pkgtypes.Change{change}, err
			},
		})
	}
	fieldText := name + " " + typeStr
	p.steps = append(p.steps, step{
		description: fmt.Sprintf("Add field %s to %s", fieldText, owner.Name),
		apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
			u, ts, err := currentNode[*ast.TypeSpec](cur, tr, owner.Unit, owner.DeclSpan)
			if err != nil {
				return nil, nil, err
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				return nil, nil, &pkgtypes.RefactorError{
					Type:    pkgtypes.ResolutionError,
					Message: fmt.Sprintf("%s is not declared as a struct", owner.Name),
				}
			}
			next, change, err := InsertField(cur, u.ID, st, fieldText)
			return next, []pkgtypes.Change{change}, err
		},
	})

	litSteps, err := e.literalSteps(ctx, prog, t, owner, decl, re, imports, p)
	if err != nil {
		return nil, err
	}
	p.steps = append(p.steps, litSteps...)
	imports.drop(t.unit.ID, orphanedImports(t))
	p.steps = append(p.steps, imports.steps(p)...)
	return p, nil
}

// literalSteps writes the field's initializer into every composite literal
// of the owner type.
func (e *DefaultEngine) literalSteps(ctx context.Context, prog *pkgtypes.Program, t *target, owner *pkgtypes.Symbol, decl *FieldDeclaration, re *reexpression, imports *importSet, p *plan) ([]step, error) {
	lits, err := e.oracle.CompositeLiterals(ctx, prog, owner)
	if err != nil {
		return nil, err
	}
	inExpr := func(l pkgtypes.LiteralReference) bool {
		return l.Unit == t.unit.ID && t.span.Contains(l.Span)
	}
	lits = slices.DeleteFunc(lits, inExpr)

	// Values created without a literal cannot carry the initializer.
	zeros, err := e.oracle.ZeroValues(ctx, prog, owner)
	if err != nil {
		return nil, err
	}
	zeros = slices.DeleteFunc(zeros, inExpr)
	for _, z := range zeros {
		p.issues = append(p.issues, pkgtypes.Issue{
			Kind:     pkgtypes.IssueUninitializedField,
			Severity: pkgtypes.Warning,
			Message:  fmt.Sprintf("%s created by %s keeps the zero value of %s", owner.Name, siteText(prog, z), decl.Name),
			Unit:     z.Unit,
			Line:     lineOf(prog, z.Unit, z.Span.Start),
		})
	}

	if len(lits) == 0 {
		if len(zeros) == 0 {
			p.issues = append(p.issues, pkgtypes.Issue{
				Kind:     pkgtypes.IssueUninitializedField,
				Severity: pkgtypes.Info,
				Message:  fmt.Sprintf("%s has no composite literals; %s keeps its zero value", owner.Name, decl.Name),
				Unit:     owner.Unit,
				Line:     lineOf(prog, owner.Unit, owner.Span.Start),
			})
		}
		return nil, nil
	}
	slices.SortStableFunc(lits, func(a, b pkgtypes.LiteralReference) int {
		if a.Unit != b.Unit {
			return strings.Compare(a.Unit, b.Unit)
		}
		return a.Span.End - b.Span.End
	})

	uninitialized := func(lit pkgtypes.LiteralReference, reason string) {
		p.issues = append(p.issues, pkgtypes.Issue{
			Kind:     pkgtypes.IssueUninitializedField,
			Severity: pkgtypes.Warning,
			Message:  fmt.Sprintf("%s literal not initialized: %s", owner.Name, reason),
			Unit:     lit.Unit,
			Line:     lineOf(prog, lit.Unit, lit.Span.Start),
		})
	}

	var steps []step
	for _, lit := range lits {
		if !token.IsExported(decl.Name) && lit.Package != owner.Package {
			uninitialized(lit, fmt.Sprintf("%s is unexported and the literal is in %s", decl.Name, lit.Package))
			continue
		}
		u := prog.Unit(lit.Unit)
		node, ok := findNode[*ast.CompositeLit](u, lit.Span)
		if !ok {
			uninitialized(lit, "literal not found")
			continue
		}
		litPkg, err := e.oracle.Package(ctx, prog, lit.Unit)
		if err != nil {
			return nil, err
		}
		text, needed, err := re.render(&site{
			unit:  u,
			pkg:   litPkg.Types,
			scope: scopeAt(litPkg.Types, node.Pos()),
			pos:   node.Pos(),
		})
		if err != nil {
			uninitialized(lit, err.Error())
			continue
		}
		imports.add(lit.Unit, needed)

		elem := text
		if len(node.Elts) == 0 {
			elem = decl.Name + ": " + text
		} else if _, keyed := node.Elts[0].(*ast.KeyValueExpr); keyed {
			elem = decl.Name + ": " + text
		}
		steps = append(steps, step{
			description: fmt.Sprintf("Initialize %s in %s", decl.Name, siteString(prog, lit.Unit, lit.Span)),
			apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
				u, node, err := currentNode[*ast.CompositeLit](cur, tr, lit.Unit, lit.Span)
				if err != nil {
					return nil, nil, err
				}
				next, change, err := AddElement(cur, u.ID, node, elem)
				return next, []pkgtypes.Change{change}, err
			},
		})
	}
	return steps, nil
}

// fieldName picks the new field's name: the requested one, validated, or
// one synthesized from the expression.
func (e *DefaultEngine) fieldName(requested string, t *target, taken map[string]bool, p *plan) (string, pkgtypes.Accessibility, error) {
	if requested != "" {
		if err := e.validator.ValidateName(requested); err != nil {
			return "", 0, err
		}
		if taken[requested] {
			return "", 0, &pkgtypes.RefactorError{
				Type:    pkgtypes.NameConflict,
				Message: fmt.Sprintf("type already has a field or method %s", requested),
			}
		}
		access := pkgtypes.Private
		if token.IsExported(requested) {
			access = pkgtypes.Public
		}
		return requested, access, nil
	}

	name := SynthesizeWithFallback(t.text(), e.config.FallbackName)
	if e.config.FieldAccessibility == pkgtypes.Public {
		name = Exported(name)
	}
	name, err := e.settle(name, taken, t, p)
	return name, e.config.FieldAccessibility, err
}

// settle resolves a collision of a synthesized name.
func (e *DefaultEngine) settle(name string, taken map[string]bool, t *target, p *plan) (string, error) {
	if !reserved(name, taken) {
		return name, nil
	}
	if !e.config.Disambiguate {
		return "", &pkgtypes.RefactorError{
			Type:    pkgtypes.NameConflict,
			Message: fmt.Sprintf("synthesized name %s is already in use", name),
		}
	}
	adjusted := Disambiguate(name, taken)
	p.issues = append(p.issues, pkgtypes.Issue{
		Kind:     pkgtypes.IssueNameAdjusted,
		Severity: pkgtypes.Info,
		Message:  fmt.Sprintf("%s is already in use; using %s", name, adjusted),
		Unit:     t.unit.ID,
		Line:     t.unit.Position(t.span.Start).Line,
	})
	return adjusted, nil
}

// callPlan is a call site prepared for propagation.
type callPlan struct {
	shift      int // 1 for method expressions, whose first argument is the receiver
	recvAdjust string
	pkg        *gotypes.Package
	scope      *gotypes.Scope
	pos        token.Pos
}

func (c *callPlan) site(u *pkgtypes.SourceUnit, call *ast.CallExpr) *site {
	s := &site{
		unit:       u,
		pkg:        c.pkg,
		scope:      c.scope,
		pos:        c.pos,
		args:       call.Args,
		recvAdjust: c.recvAdjust,
	}
	if c.shift == 1 {
		if len(call.Args) > 0 {
			s.receiver = call.Args[0]
		}
		s.args = call.Args[min(1, len(call.Args)):]
	} else if sel, ok := callFun(call).(*ast.SelectorExpr); ok {
		s.receiver = sel.X
	}
	return s
}

func (e *DefaultEngine) planParameter(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*plan, error) {
	t, err := e.requireTarget(ctx, prog, req)
	if err != nil {
		return nil, err
	}
	if t.routine == nil {
		return nil, (&pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: "expression is not inside a function declaration",
		}).Located(t.unit, t.span.Start)
	}
	routine, err := e.oracle.DeclaredSymbol(ctx, prog, t.unit.ID, t.routine)
	if err != nil {
		return nil, err
	}
	fn, ok := routine.Object.(*gotypes.Func)
	if !ok {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.ResolutionError,
			Message: fmt.Sprintf("cannot resolve %s", t.routine.Name.Name),
		}
	}
	if fn.Signature().Variadic() {
		return nil, (&pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("%s is variadic; a parameter cannot follow the variadic one", routine.Name),
		}).Located(t.unit, t.unit.Offset(t.routine.Name.Pos()))
	}
	re, err := analyzeExpr(t.pkg, t.unit, t.expr, t.routine, routineInputs)
	if err != nil {
		return nil, err
	}

	p := &plan{kind: pkgtypes.ExtractParameterAction}
	name, err := e.parameterName(req.Name, t, p)
	if err != nil {
		return nil, err
	}
	decl, err := BuildParameter(name, t.expr, t.tv.Type, routine)
	if err != nil {
		return nil, err
	}
	p.name = name
	p.description = fmt.Sprintf("Extract %s into parameter %s of %s", t.text(), name, routine.QualifiedName())
	if decl.Degraded {
		p.issues = append(p.issues, degradedIssue(t))
	}

	imports := newImportSet()
	typeStr, needed := typeText(decl.Type, t.pkg.Types, importsOf(t.pkg, t.unit.AST))
	imports.add(t.unit.ID, needed)

	callers, err := FindCallers(ctx, e.oracle, prog, routine)
	if err != nil {
		return nil, err
	}
	plans, err := e.callPlans(ctx, prog, t, fn, re, callers, imports)
	if err != nil {
		return nil, err
	}

	p.steps = append(p.steps, replaceStep(t, name))
	paramText := name + " " + typeStr
	declSpan := t.unit.SpanOf(t.routine)
	p.steps = append(p.steps, step{
		description: fmt.Sprintf("Add parameter %s to %s", paramText, routine.QualifiedName()),
		apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
			u, fd, err := currentNode[*ast.FuncDecl](cur, tr, t.unit.ID, declSpan)
			if err != nil {
				return nil, nil, err
			}
			next, change, err := InsertParameter(cur, u.ID, fd.Type, paramText)
			return next, []pkgtypes.Change{change}, err
		},
	})
	p.steps = append(p.steps, propagationSteps(callers, func(ref pkgtypes.CallReference, u *pkgtypes.SourceUnit, call *ast.CallExpr) (string, error) {
		text, _, err := re.render(plans[callKey(ref)].site(u, call))
		return text, err
	})...)
	imports.drop(t.unit.ID, orphanedImports(t))
	p.steps = append(p.steps, imports.steps(p)...)
	return p, nil
}

// callPlans checks every call site before any edit and records how the
// argument is written there. Sites that cannot take the argument fail the
// extraction with a PropagationGap listing all of them.
func (e *DefaultEngine) callPlans(ctx context.Context, prog *pkgtypes.Program, t *target, fn *gotypes.Func, re *reexpression, callers []pkgtypes.CallReference, imports *importSet) (map[string]*callPlan, error) {
	plans := make(map[string]*callPlan, len(callers))
	var gaps []string
	for _, ref := range callers {
		where := siteString(prog, ref.Unit, ref.Span)
		if ref.Unit == t.unit.ID && t.span.Overlaps(ref.Span) && (t.span.Contains(ref.Span) || !ref.Span.Contains(t.span)) {
			gaps = append(gaps, where+": call is part of the extracted expression")
			continue
		}
		u := prog.Unit(ref.Unit)
		call, ok := findNode[*ast.CallExpr](u, ref.Span)
		if !ok {
			gaps = append(gaps, where+": call not found")
			continue
		}
		cp, err := e.oracle.Package(ctx, prog, ref.Unit)
		if err != nil {
			return nil, err
		}

		cplan := &callPlan{
			pkg:   cp.Types,
			scope: scopeAt(cp.Types, call.Pos()),
			pos:   call.Pos(),
		}
		var recv ast.Expr
		if sel, ok := callFun(call).(*ast.SelectorExpr); ok {
			if selection := cp.Info.Selections[sel]; selection != nil {
				switch selection.Kind() {
				case gotypes.MethodExpr:
					cplan.shift = 1
					if len(call.Args) > 0 {
						recv = call.Args[0]
					}
				case gotypes.MethodVal:
					recv = sel.X
					if re.receiver && len(selection.Index()) > 1 {
						gaps = append(gaps, where+": method is promoted through an embedded field")
						continue
					}
				}
			}
		}
		if len(call.Args) != fn.Signature().Params().Len()+cplan.shift {
			gaps = append(gaps, where+": arguments do not match the parameters")
			continue
		}
		if re.receiver && recv != nil {
			_, callerPtr := gotypes.Unalias(cp.Info.TypeOf(recv)).(*gotypes.Pointer)
			switch {
			case re.pointer && !callerPtr:
				cplan.recvAdjust = "&"
			case !re.pointer && callerPtr:
				cplan.recvAdjust = "*"
			}
		}

		_, needed, err := re.render(cplan.site(u, call))
		if err != nil {
			gaps = append(gaps, fmt.Sprintf("%s: %v", where, err))
			continue
		}
		imports.add(ref.Unit, needed)
		plans[callKey(ref)] = cplan
	}
	if len(gaps) > 0 {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.PropagationGap,
			Message: "cannot pass the extracted expression at every call site",
			Sites:   gaps,
		}
	}
	return plans, nil
}

// parameterName picks the new parameter's name. It may not collide with
// any identifier of the routine, which also keeps referenced package names
// and package-level objects from being shadowed.
func (e *DefaultEngine) parameterName(requested string, t *target, p *plan) (string, error) {
	taken := identNames(t.routine)
	if requested != "" {
		if err := e.validator.ValidateName(requested); err != nil {
			return "", err
		}
		if taken[requested] {
			return "", &pkgtypes.RefactorError{
				Type:    pkgtypes.NameConflict,
				Message: fmt.Sprintf("%s is already used in %s", requested, t.routine.Name.Name),
			}
		}
		return requested, nil
	}
	return e.settle(SynthesizeWithFallback(t.text(), e.config.FallbackName), taken, t, p)
}

func (e *DefaultEngine) requireTarget(ctx context.Context, prog *pkgtypes.Program, req pkgtypes.ExtractRequest) (*target, error) {
	t, err := e.target(ctx, prog, req)
	if errors.Is(err, errNoTarget) {
		return nil, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("no extractable expression at %s in %s", req.Span, req.Unit),
		}
	}
	return t, err
}

// apply runs a plan and, when configured, reports type errors the edits
// introduced.
func (e *DefaultEngine) apply(ctx context.Context, prog *pkgtypes.Program, p *plan) (*pkgtypes.Result, error) {
	next, changes, err := runSteps(ctx, prog, p.steps, e.config.Observer)
	if err != nil {
		e.logger.Warn("extraction failed", "action", p.kind.Title(), "error", err)
		return nil, fmt.Errorf("%s: %w", strings.ToLower(p.kind.Title()), err)
	}
	result := &pkgtypes.Result{Program: next, Changes: changes, Issues: p.issues}

	if e.config.VerifyTypes {
		before, after, err := e.typedPackages(ctx, prog, next, result.AffectedUnits())
		if err != nil {
			return nil, err
		}
		result.Issues = append(result.Issues, e.validator.NewTypeErrors(before, after)...)
	}
	e.logger.Info("extraction applied",
		"action", p.kind.Title(),
		"name", p.name,
		"changes", len(changes),
		"units", len(result.AffectedUnits()),
		"issues", len(result.Issues))
	return result, nil
}

func (e *DefaultEngine) typedPackages(ctx context.Context, before, after *pkgtypes.Program, units []string) ([]*pkgtypes.TypedPackage, []*pkgtypes.TypedPackage, error) {
	var b, a []*pkgtypes.TypedPackage
	seen := make(map[string]bool)
	for _, id := range units {
		tb, err := e.oracle.Package(ctx, before, id)
		if err != nil {
			return nil, nil, err
		}
		if seen[tb.ImportPath] {
			continue
		}
		seen[tb.ImportPath] = true
		ta, err := e.oracle.Package(ctx, after, id)
		if err != nil {
			return nil, nil, err
		}
		b, a = append(b, tb), append(a, ta)
	}
	return b, a, nil
}

func replaceStep(t *target, text string) step {
	return step{
		description: fmt.Sprintf("Replace %s with %s", t.text(), text),
		apply: func(cur *pkgtypes.Program, tr *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
			span, err := tr.Map(t.unit.ID, t.span)
			if err != nil {
				return nil, nil, err
			}
			next, change, err := ReplaceSpan(cur, t.unit.ID, span, text)
			return next, []pkgtypes.Change{change}, err
		},
	}
}

// currentNode finds the node of an original span in the current snapshot.
func currentNode[T ast.Node](cur *pkgtypes.Program, tr *tracker, unitID string, span pkgtypes.Span) (*pkgtypes.SourceUnit, T, error) {
	var zero T
	u := cur.Unit(unitID)
	if u == nil {
		return nil, zero, unitNotFound(unitID)
	}
	mapped, err := tr.Map(unitID, span)
	if err != nil {
		return nil, zero, err
	}
	n, ok := findNode[T](u, mapped)
	if !ok {
		return nil, zero, &pkgtypes.RefactorError{
			Type:    pkgtypes.InvalidOperation,
			Message: fmt.Sprintf("%T at %s not found after earlier edits", zero, mapped),
			Unit:    unitID,
		}
	}
	return u, n, nil
}

// importSet collects the imports each unit needs and the imports that may
// have lost their last use.
type importSet struct {
	byUnit  map[string]map[string]string
	orphans map[string][]importSpec
}

func newImportSet() *importSet {
	return &importSet{
		byUnit:  make(map[string]map[string]string),
		orphans: make(map[string][]importSpec),
	}
}

func (s *importSet) add(unit string, specs []importSpec) {
	if len(specs) == 0 {
		return
	}
	m := s.byUnit[unit]
	if m == nil {
		m = make(map[string]string)
		s.byUnit[unit] = m
	}
	for _, spec := range specs {
		m[spec.path] = spec.name
	}
}

// drop marks imports of unit that are removed once the edits leave them
// unused.
func (s *importSet) drop(unit string, specs []importSpec) {
	if len(specs) > 0 {
		s.orphans[unit] = append(s.orphans[unit], specs...)
	}
}

// steps returns one step per unit adding its imports in path order and
// then removing orphaned imports that are no longer used. Every added
// import is recorded as an issue.
func (s *importSet) steps(p *plan) []step {
	units := make([]string, 0, len(s.byUnit)+len(s.orphans))
	for u := range s.byUnit {
		units = append(units, u)
	}
	for u := range s.orphans {
		if _, ok := s.byUnit[u]; !ok {
			units = append(units, u)
		}
	}
	sort.Strings(units)

	var steps []step
	for _, unit := range units {
		specs := sortedImports(s.byUnit[unit])
		orphans := s.orphans[unit]
		for _, spec := range specs {
			p.issues = append(p.issues, pkgtypes.Issue{
				Kind:     pkgtypes.IssueImportAdded,
				Severity: pkgtypes.Info,
				Message:  fmt.Sprintf("import %q added", spec.path),
				Unit:     unit,
			})
		}
		steps = append(steps, step{
			description: "Update imports of " + unit,
			apply: func(cur *pkgtypes.Program, _ *tracker) (*pkgtypes.Program, []pkgtypes.Change, error) {
				var changes []pkgtypes.Change
				for _, spec := range specs {
					next, change, err := EnsureImport(cur, unit, spec.path, spec.name)
					if err != nil {
						return nil, nil, err
					}
					cur = next
					if change != nil {
						changes = append(changes, *change)
					}
				}
				for _, spec := range orphans {
					next, change, err := RemoveImport(cur, unit, spec.path, spec.name)
					if err != nil {
						return nil, nil, err
					}
					cur = next
					if change != nil {
						changes = append(changes, *change)
					}
				}
				return cur, changes, nil
			},
		})
	}
	return steps
}

// orphanedImports returns the imports of t's unit whose every use lies
// inside the extracted expression.
func orphanedImports(t *target) []importSpec {
	file := t.unit.AST
	inside := make(map[*gotypes.PkgName]bool)
	outside := make(map[*gotypes.PkgName]bool)
	for id, obj := range t.pkg.Info.Uses {
		pn, ok := obj.(*gotypes.PkgName)
		if !ok || id.Pos() < file.FileStart || id.Pos() > file.FileEnd {
			continue
		}
		if off := t.unit.Offset(id.Pos()); t.span.Start <= off && off < t.span.End {
			inside[pn] = true
		} else {
			outside[pn] = true
		}
	}
	var specs []importSpec
	for _, spec := range file.Imports {
		pn := t.pkg.Info.PkgNameOf(spec)
		if pn != nil && inside[pn] && !outside[pn] {
			specs = append(specs, importSpec{path: pn.Imported().Path(), name: pn.Name()})
		}
	}
	return specs
}

// importsOf maps the import paths of file to their local names.
func importsOf(tp *pkgtypes.TypedPackage, file *ast.File) map[string]string {
	m := make(map[string]string)
	for _, spec := range file.Imports {
		pn := tp.Info.PkgNameOf(spec)
		if pn == nil || pn.Name() == "_" {
			continue
		}
		m[pn.Imported().Path()] = pn.Name()
	}
	return m
}

// memberNames returns the names of the fields, including promoted ones,
// and the methods of named and *named.
func memberNames(named *gotypes.Named) map[string]bool {
	taken := make(map[string]bool)
	seen := make(map[*gotypes.Struct]bool)
	var fields func(t gotypes.Type)
	fields = func(t gotypes.Type) {
		if p, ok := gotypes.Unalias(t).(*gotypes.Pointer); ok {
			t = p.Elem()
		}
		st, ok := t.Underlying().(*gotypes.Struct)
		if !ok || seen[st] {
			return
		}
		seen[st] = true
		for f := range st.Fields() {
			taken[f.Name()] = true
			if f.Embedded() {
				fields(f.Type())
			}
		}
	}
	fields(named)
	ms := gotypes.NewMethodSet(gotypes.NewPointer(named))
	for sel := range ms.Methods() {
		taken[sel.Obj().Name()] = true
	}
	return taken
}

// identNames returns every identifier name appearing in node.
func identNames(node ast.Node) map[string]bool {
	names := make(map[string]bool)
	ast.Inspect(node, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			names[id.Name] = true
		}
		return true
	})
	return names
}

// receiverName derives a receiver name from the type name's first letter.
func receiverName(fd *ast.FuncDecl, typeName string) string {
	r, _ := utf8.DecodeRuneInString(typeName)
	return Disambiguate(string(unicode.ToLower(r)), identNames(fd))
}

func recvFieldName(f *ast.Field) string {
	if len(f.Names) == 0 {
		return ""
	}
	return f.Names[0].Name
}

// callFun returns the called expression without parentheses and
// instantiation.
func callFun(call *ast.CallExpr) ast.Expr {
	fun := call.Fun
	for {
		switch f := fun.(type) {
		case *ast.ParenExpr:
			fun = f.X
		case *ast.IndexExpr:
			fun = f.X
		case *ast.IndexListExpr:
			fun = f.X
		default:
			return fun
		}
	}
}

func callKey(ref pkgtypes.CallReference) string {
	return ref.Unit + ref.Span.String()
}

func degradedIssue(t *target) pkgtypes.Issue {
	return pkgtypes.Issue{
		Kind:     pkgtypes.IssueDegradedType,
		Severity: pkgtypes.Warning,
		Message:  fmt.Sprintf("type of %s could not be resolved; declared as any", t.text()),
		Unit:     t.unit.ID,
		Line:     t.unit.Position(t.span.Start).Line,
	}
}

// siteText returns the first line of the source at ref.
func siteText(prog *pkgtypes.Program, ref pkgtypes.LiteralReference) string {
	u := prog.Unit(ref.Unit)
	if u == nil {
		return ref.Span.String()
	}
	text, _, _ := strings.Cut(u.Slice(ref.Span), "\n")
	if _, ok := findNode[*ast.ValueSpec](u, ref.Span); ok {
		text = "var " + text
	}
	return strings.TrimSpace(text)
}

func lineOf(prog *pkgtypes.Program, unit string, offset int) int {
	u := prog.Unit(unit)
	if u == nil {
		return 0
	}
	return u.Position(offset).Line
}
