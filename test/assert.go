package test

import (
	"reflect"
	"testing"
)

func AssertEqual(t *testing.T, expected, actual any) bool {
	t.Helper()

	if !reflect.DeepEqual(expected, actual) {
		t.Errorf(""+
			"Not equal: \n"+
			"Expected: %#v\n"+
			"Actual: %#v", expected, actual)
		return false
	}

	return true
}

func AssertTrue(t *testing.T, value bool, message string) bool {
	t.Helper()

	if !value {
		t.Errorf("Expected true: %s", message)
		return false
	}

	return true
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
