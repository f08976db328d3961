package config

import "testing"

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"1":     true,
		"true":  true,
		"YES":   true,
		"on":    true,
		"0":     false,
		"false": false,
		"nope":  false,
	}
	for raw, want := range cases {
		t.Setenv("SESSIONLY_TEST_BOOL", raw)
		if got := Bool("SESSIONLY_TEST_BOOL", !want); got != want {
			t.Fatalf("Bool(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestBoolFallback(t *testing.T) {
	if !Bool("SESSIONLY_TEST_BOOL_UNSET", true) {
		t.Fatal("expected fallback when unset")
	}
}

func TestListDropsEmptyEntries(t *testing.T) {
	t.Setenv("SESSIONLY_TEST_LIST", " a, ,b,,c ")
	got := List("SESSIONLY_TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestListFallback(t *testing.T) {
	got := List("SESSIONLY_TEST_LIST_UNSET", "GET,POST")
	if len(got) != 2 || got[0] != "GET" || got[1] != "POST" {
		t.Fatalf("unexpected fallback list: %v", got)
	}
}
