package boolexpr

import "testing"

// Grounded on the original source's tests/unit/boolParserTest.py
// (BooleanParser), translated to this package's Parse/Evaluate shape.
func TestExpressions(t *testing.T) {
	e, err := Parse(`x1 == "hi" AND y2 > 42`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	vars := e.Variables()
	if len(vars) != 2 || vars[0] != "x1" || vars[1] != "y2" {
		t.Fatalf("Variables() = %v, want [x1 y2]", vars)
	}
	ok, err := e.Evaluate(map[string]interface{}{"x1": "hi", "y2": float64(43)})
	if err != nil || !ok {
		t.Fatalf("Evaluate = %v, %v, want true, nil", ok, err)
	}

	// single quotes are equivalent to double quotes
	e2, err := Parse(`x1 == 'hi' AND y2 > 42`)
	if err != nil {
		t.Fatalf("Parse (single-quoted): %v", err)
	}
	ok, err = e2.Evaluate(map[string]interface{}{"x1": "hi", "y2": float64(43)})
	if err != nil || !ok {
		t.Fatalf("Evaluate (single-quoted) = %v, %v, want true, nil", ok, err)
	}
}

func TestNumericComparisons(t *testing.T) {
	e, err := Parse("x > 2 AND y < 3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ok, err := e.Evaluate(map[string]interface{}{"x": float64(3), "y": float64(1)}); err != nil || !ok {
		t.Fatalf("expected x=3,y=1 to match, got %v, %v", ok, err)
	}
	if ok, err := e.Evaluate(map[string]interface{}{"x": float64(1), "y": float64(1)}); err != nil || ok {
		t.Fatalf("expected x=1,y=1 not to match, got %v, %v", ok, err)
	}
}

func TestEvaluateRejectsTypeMismatch(t *testing.T) {
	e, _ := Parse("x > 2 AND y < 3")
	if _, err := e.Evaluate(map[string]interface{}{"x": "3", "y": float64(1)}); err == nil {
		t.Fatalf("expected an error when x is a string instead of a number")
	}
}

func TestEvaluateRejectsMissingField(t *testing.T) {
	e, _ := Parse("x > 2 AND y < 3")
	if _, err := e.Evaluate(map[string]interface{}{"y": float64(1)}); err == nil {
		t.Fatalf("expected an error when x is missing from the record")
	}
}

func TestParseRejectsMalformedExpressions(t *testing.T) {
	if _, err := Parse("x > 2 AND"); err == nil {
		t.Fatalf("expected an error for a trailing AND with no right-hand clause")
	}
	if _, err := Parse("1 + 1 = 2"); err == nil {
		t.Fatalf("expected an error for a non-comparison expression")
	}
}

func TestOrGroupsEitherSideMatches(t *testing.T) {
	e, err := Parse("x > 10 OR y == 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ok, err := e.Evaluate(map[string]interface{}{"x": float64(0), "y": float64(1)}); err != nil || !ok {
		t.Fatalf("expected the OR's right clause to match, got %v, %v", ok, err)
	}
	if ok, err := e.Evaluate(map[string]interface{}{"x": float64(0), "y": float64(0)}); err != nil || ok {
		t.Fatalf("expected neither clause to match, got %v, %v", ok, err)
	}
}
