package interpreter

import (
	"strings"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/runtime"
)

// execStatement runs stmt, whose enclosing body owns stack level depth-1.
// A compound statement finds its own progress at Stack[depth] when it is
// being re-entered after a resume. Re-entered statements and the statement
// replaying injected call results were counted before they suspended, so
// they do not tick again.
func (i *Interpreter) execStatement(stmt ast.Statement, depth int) error {
	if !i.resuming(depth) && len(i.state.Calls) == 0 {
		if err := i.tick(); err != nil {
			return attachStatement(err, stmt)
		}
	}
	i.logger.Trace().Str("statement", string(stmt.NodeType())).Int("pc", i.state.PC).Int("depth", depth).Msg("exec")

	var err error
	switch s := stmt.(type) {
	case *ast.Assignment:
		err = i.execAssignment(s)
	case *ast.ExpressionStatement:
		i.beginUnit()
		if _, err = i.evaluateExpression(s.Expression); err == nil {
			i.commitUnit()
		}
	case *ast.ReturnStatement:
		err = i.execReturn(s)
	case *ast.IfStatement:
		err = i.execIf(s, depth)
	case *ast.WhileLoop:
		err = i.execWhile(s, depth)
	case *ast.ForLoop:
		err = i.execFor(s, depth)
	case *ast.BreakStatement:
		err = breakSignal{}
	case *ast.ContinueStatement:
		err = continueSignal{}
	case *ast.PassStatement:
	default:
		err = newRuntimeError(KindUnsupportedExpression, "unsupported statement %s", stmt.NodeType())
	}
	if err != nil && !isControlSignal(err) {
		return attachStatement(err, stmt)
	}
	return err
}

// execBody runs the body owned by Stack[depth] from its saved index.
func (i *Interpreter) execBody(body []ast.Statement, depth int) error {
	for {
		idx := i.state.Stack[depth].Index
		if idx >= len(body) {
			return nil
		}
		if err := i.execStatement(body[idx], depth+1); err != nil {
			return err
		}
		i.state.Stack = i.state.Stack[:depth+1]
		i.state.Stack[depth].Index++
	}
}

func (i *Interpreter) resuming(depth int) bool {
	return depth < len(i.state.Stack)
}

func (i *Interpreter) push(frame BlockState) {
	i.state.Stack = append(i.state.Stack, frame)
}

func (i *Interpreter) execAssignment(stmt *ast.Assignment) error {
	i.beginUnit()
	value, err := i.evaluateExpression(stmt.Value)
	if err != nil {
		return err
	}
	env := i.state.Variables
	if stmt.Operator != "=" {
		current, err := env.Get(stmt.Target.Name)
		if err != nil {
			return attachSpan(undefinedVariable(stmt.Target.Name), stmt.Target)
		}
		value, err = binaryOperation(strings.TrimSuffix(stmt.Operator, "="), current, value)
		if err != nil {
			return err
		}
	}
	env.Define(stmt.Target.Name, value)
	i.commitUnit()
	return nil
}

func (i *Interpreter) execReturn(stmt *ast.ReturnStatement) error {
	var result runtime.Value = runtime.None
	if stmt.Argument != nil {
		i.beginUnit()
		val, err := i.evaluateExpression(stmt.Argument)
		if err != nil {
			return err
		}
		result = val
		i.commitUnit()
	}
	return returnSignal{value: result}
}

func ifBranchBody(stmt *ast.IfStatement, branch int) []ast.Statement {
	if branch < 0 || branch >= len(stmt.Clauses) {
		return stmt.Else
	}
	return stmt.Clauses[branch].Body
}

func (i *Interpreter) execIf(stmt *ast.IfStatement, depth int) error {
	if !i.resuming(depth) {
		branch := -1
		i.beginUnit()
		for idx, clause := range stmt.Clauses {
			cond, err := i.evaluateCondition(clause.Condition, "if")
			if err != nil {
				return err
			}
			if cond {
				branch = idx
				break
			}
		}
		i.commitUnit()
		if len(ifBranchBody(stmt, branch)) == 0 {
			return nil
		}
		i.push(BlockState{Kind: BlockIf, Branch: branch})
	}
	return i.execBody(ifBranchBody(stmt, i.state.Stack[depth].Branch), depth)
}

func (i *Interpreter) execWhile(stmt *ast.WhileLoop, depth int) error {
	for {
		if !i.resuming(depth) {
			i.beginUnit()
			cond, err := i.evaluateCondition(stmt.Condition, "while")
			if err != nil {
				return err
			}
			i.commitUnit()
			if !cond {
				return nil
			}
			i.push(BlockState{Kind: BlockWhile})
		}
		err := i.execBody(stmt.Body, depth)
		switch err.(type) {
		case nil, continueSignal:
		case breakSignal:
			i.state.Stack = i.state.Stack[:depth]
			return nil
		default:
			return err
		}
		i.state.Stack = i.state.Stack[:depth]
		if err := i.tick(); err != nil {
			return err
		}
	}
}

func (i *Interpreter) execFor(stmt *ast.ForLoop, depth int) error {
	env := i.state.Variables
	if !i.resuming(depth) {
		i.beginUnit()
		iterable, err := i.evaluateExpression(stmt.Iterable)
		if err != nil {
			return err
		}
		items, err := iterate(iterable)
		if err != nil {
			return attachSpan(err, stmt.Iterable)
		}
		i.commitUnit()
		if len(items) == 0 {
			return nil
		}
		i.push(BlockState{Kind: BlockFor, Items: runtime.BoxAll(items)})
		env.Define(stmt.Target.Name, items[0])
	}
	for {
		err := i.execBody(stmt.Body, depth)
		switch err.(type) {
		case nil, continueSignal:
		case breakSignal:
			i.state.Stack = i.state.Stack[:depth]
			return nil
		default:
			return err
		}
		i.state.Stack = i.state.Stack[:depth+1]
		frame := &i.state.Stack[depth]
		frame.Position++
		frame.Index = 0
		if frame.Position >= len(frame.Items) {
			i.state.Stack = i.state.Stack[:depth]
			return nil
		}
		env.Define(stmt.Target.Name, frame.Items[frame.Position].Value)
		if err := i.tick(); err != nil {
			return err
		}
	}
}

// evaluateCondition requires a boolean, the only type allowed to steer control flow.
func (i *Interpreter) evaluateCondition(expr ast.Expression, context string) (bool, error) {
	val, err := i.evaluateExpression(expr)
	if err != nil {
		return false, err
	}
	b, ok := val.(runtime.BoolValue)
	if !ok {
		return false, attachSpan(typeMismatch("%s condition must be bool, not %s", context, runtime.TypeName(val)), expr)
	}
	return b.Val, nil
}

func undefinedVariable(name string) *RuntimeError {
	return newRuntimeError(KindUndefinedVariable, "name '%s' is not defined", name)
}

// iterate snapshots the elements a for loop visits.
func iterate(v runtime.Value) ([]runtime.Value, error) {
	switch val := v.(type) {
	case *runtime.ListValue:
		out := make([]runtime.Value, len(val.Elements))
		copy(out, val.Elements)
		return out, nil
	case *runtime.DictValue:
		keys := val.Keys()
		out := make([]runtime.Value, len(keys))
		for idx, key := range keys {
			out[idx] = runtime.StringValue{Val: key}
		}
		return out, nil
	case runtime.StringValue:
		out := make([]runtime.Value, 0, len(val.Val))
		for _, r := range val.Val {
			out = append(out, runtime.StringValue{Val: string(r)})
		}
		return out, nil
	default:
		return nil, typeMismatch("'%s' object is not iterable", runtime.TypeName(v))
	}
}
