package loader

import (
	"reflect"
	"testing"
)

func TestSplitNonEmptyTrimsAndDropsBlanks(t *testing.T) {
	got := splitNonEmpty(" abort, abs ,, atoi", ',')
	want := []string{"abort", "abs", "atoi"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitNonEmpty: got %v, want %v", got, want)
	}
}

func TestSplitNonEmptyOnEmptyString(t *testing.T) {
	if got := splitNonEmpty("", ','); got != nil {
		t.Fatalf("splitNonEmpty(\"\"): got %v, want nil", got)
	}
}
