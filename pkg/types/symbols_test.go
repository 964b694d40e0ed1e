package types

import "testing"

func TestSymbol_QualifiedName(t *testing.T) {
	owner := &Symbol{Name: "Server", Kind: TypeSymbol}
	method := &Symbol{Name: "Addr", Kind: RoutineSymbol, Enclosing: owner}

	if method.QualifiedName() != "Server.Addr" {
		t.Errorf("Expected Server.Addr, got %s", method.QualifiedName())
	}
	if owner.QualifiedName() != "Server" {
		t.Errorf("Expected Server, got %s", owner.QualifiedName())
	}
	if method.String() != "Routine Server.Addr" {
		t.Errorf("Unexpected String(): %s", method.String())
	}
}

func TestSymbolKind_String(t *testing.T) {
	testCases := []struct {
		kind     SymbolKind
		expected string
	}{
		{TypeSymbol, "Type"},
		{RoutineSymbol, "Routine"},
		{FieldSymbol, "Field"},
		{ParameterSymbol, "Parameter"},
		{VariableSymbol, "Variable"},
		{SymbolKind(42), "Unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if tc.kind.String() != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, tc.kind.String())
			}
		})
	}
}

func TestParseAccessibility(t *testing.T) {
	testCases := []struct {
		in      string
		want    Accessibility
		wantErr bool
	}{
		{"", Private, false},
		{"private", Private, false},
		{"unexported", Private, false},
		{"public", Public, false},
		{"exported", Public, false},
		{"protected", Private, true},
	}
	for _, tc := range testCases {
		got, err := ParseAccessibility(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseAccessibility(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseAccessibility(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCallReference_String(t *testing.T) {
	ref := CallReference{
		Caller: &Symbol{Name: "run", Kind: RoutineSymbol},
		Unit:   "main.go",
		Span:   Span{Start: 10, End: 20},
	}
	if ref.String() != "main.go[10,20) in run" {
		t.Errorf("Unexpected String(): %s", ref.String())
	}
	ref.Caller = nil
	if ref.String() != "main.go[10,20)" {
		t.Errorf("Unexpected String(): %s", ref.String())
	}
}

func TestActionKind(t *testing.T) {
	if ExtractFieldAction.Title() != "Extract field" {
		t.Errorf("Unexpected title %q", ExtractFieldAction.Title())
	}
	if ExtractParameterAction.Title() != "Extract parameter" {
		t.Errorf("Unexpected title %q", ExtractParameterAction.Title())
	}
	if ExtractParameterAction.String() != "refactor.extract.parameter" {
		t.Errorf("Unexpected kind %q", ExtractParameterAction.String())
	}
}

func TestResult_AffectedUnits(t *testing.T) {
	r := &Result{Changes: []Change{
		{Unit: "b.go"}, {Unit: "a.go"}, {Unit: "b.go"},
	}}
	got := r.AffectedUnits()
	if len(got) != 2 || got[0] != "b.go" || got[1] != "a.go" {
		t.Errorf("Unexpected affected units %v", got)
	}
}
