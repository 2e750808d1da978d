package cmdline

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		wantProg string
		wantArgs []string
	}{
		{"simple", "cat path/file --pretty", "cat", []string{"path/file", "--pretty"}},
		{"key_value", "sum age=2", "sum", []string{"age=2"}},
		{"double_quoted", `echo "hello world"`, "echo", []string{"hello world"}},
		{"empty", "", "", nil},
		{"program_only", "ls", "ls", nil},
		{"single_quoted", "echo 'hello'", "echo", []string{"hello"}},
		{"multiple_key_value", "cmd a=1 b=2", "cmd", []string{"a=1", "b=2"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, args := Parse(tc.line)
			if prog != tc.wantProg {
				t.Errorf("program = %q, want %q", prog, tc.wantProg)
			}
			if !reflect.DeepEqual(args, tc.wantArgs) && !(len(args) == 0 && len(tc.wantArgs) == 0) {
				t.Errorf("args = %v, want %v", args, tc.wantArgs)
			}
		})
	}
}
