package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/swizzle/internal/dispatch"
	"github.com/roach88/swizzle/internal/engine"
	"github.com/roach88/swizzle/internal/ir"
	"github.com/roach88/swizzle/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []ir.TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, DescribeEvent(ev))
		}
	}

	return buf.String()
}

// DescribeEvent renders one event on one line, indented by depth.
func DescribeEvent(ev ir.TraceEvent) string {
	indent := strings.Repeat("  ", ev.Depth)
	switch ev.Kind {
	case ir.EventInstall:
		return fmt.Sprintf("%sinstall %s.%s <-> %s (%s)", indent, ev.Receiver, ev.Selector, ev.Implementation, ev.Message)
	case ir.EventSend:
		return fmt.Sprintf("%ssend %s.%s -> %s %s", indent, ev.Receiver, ev.Selector, ev.Implementation, ir.Format(ev.Args))
	case ir.EventLog:
		return fmt.Sprintf("%slog [%s] %s", indent, ev.Implementation, ev.Message)
	case ir.EventReturn:
		return fmt.Sprintf("%sreturn %s.%s = %s", indent, ev.Receiver, ev.Selector, ir.Format(ev.Value))
	default:
		return fmt.Sprintf("%s%s", indent, ev.Kind)
	}
}

// assertTraceContains checks that some event matches the assertion's pattern.
func assertTraceContains(trace []ir.TraceEvent, assertion Assertion) error {
	for _, ev := range trace {
		if assertion.EventPattern.Matches(ev) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s", assertion.EventPattern),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each pattern is matched after the previous pattern's match.
func assertTraceOrder(trace []ir.TraceEvent, assertion Assertion) error {
	pos := 0
	for i, pattern := range assertion.Events {
		found := false
		for pos < len(trace) {
			ev := trace[pos]
			pos++
			if pattern.Matches(ev) {
				found = true
				break
			}
		}
		if !found {
			actual := fmt.Sprintf("no event %s", pattern)
			if i > 0 {
				actual += fmt.Sprintf(" after %s", assertion.Events[i-1])
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   actual,
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that exactly Count events match the pattern.
func assertTraceCount(trace []ir.TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if assertion.EventPattern.Matches(ev) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.EventPattern),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertLogCount is trace_count restricted to log events.
func assertLogCount(trace []ir.TraceEvent, assertion Assertion) error {
	assertion.Kind = string(ir.EventLog)
	if err := assertTraceCount(trace, assertion); err != nil {
		err.(*AssertionError).Type = AssertLogCount
		return err
	}
	return nil
}

// assertDispatch checks what Class's flattened table binds Selector to.
func assertDispatch(eng *engine.Engine, assertion Assertion) error {
	table, err := eng.Table(assertion.Class)
	if err != nil {
		return &AssertionError{
			Type:     AssertDispatch,
			Expected: fmt.Sprintf("class %s", assertion.Class),
			Actual:   err.Error(),
		}
	}

	var entry *dispatch.Entry
	for i := range table {
		if string(table[i].Selector) == assertion.Selector {
			entry = &table[i]
			break
		}
	}
	if entry == nil {
		return &AssertionError{
			Type:     AssertDispatch,
			Expected: fmt.Sprintf("%s.%s -> %s", assertion.Class, assertion.Selector, assertion.Implementation),
			Actual:   "selector does not resolve",
		}
	}

	if entry.Implementation != assertion.Implementation {
		return &AssertionError{
			Type:     AssertDispatch,
			Expected: fmt.Sprintf("%s.%s -> %s", assertion.Class, assertion.Selector, assertion.Implementation),
			Actual:   fmt.Sprintf("%s.%s -> %s (owner %s)", assertion.Class, assertion.Selector, entry.Implementation, entry.Owner),
		}
	}
	if assertion.Local != nil && entry.Local != *assertion.Local {
		return &AssertionError{
			Type:     AssertDispatch,
			Expected: fmt.Sprintf("%s.%s local=%t", assertion.Class, assertion.Selector, *assertion.Local),
			Actual:   fmt.Sprintf("local=%t (owner %s)", entry.Local, entry.Owner),
		}
	}
	return nil
}

// assertFinalState checks that a journal table contains expected values.
// Queries the table with parameterized SQL and validates expected values
// using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML or IR value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case ir.IRString:
		return string(val)
	case ir.IRInt:
		return int64(val)
	case ir.IRBool:
		return bool(val)
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from journal tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	// SQLite may hand TEXT back as []byte.
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case ir.IRString:
		return stateValuesEqual(string(exp), actual)
	case ir.IRInt:
		return stateValuesEqual(int64(exp), actual)
	case ir.IRBool:
		return stateValuesEqual(bool(exp), actual)
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		return stateValuesEqual(int64(exp), actual)
	case int64:
		switch a := actual.(type) {
		case int64:
			return exp == a
		case int:
			return exp == int64(a)
		}
		return false
	case bool:
		switch a := actual.(type) {
		case bool:
			return exp == a
		case int64:
			// SQLite stores booleans as integers
			return exp == (a != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store  *store.Store
	Engine *engine.Engine
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the journal for final_state assertions and the
// engine for dispatch assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertLogCount:
			err = assertLogCount(result.Trace, assertion)
		case AssertDispatch:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: dispatch requires an engine", i)
			} else {
				err = assertDispatch(actx.Engine, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
