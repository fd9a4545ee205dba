package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-g", "10s", "-a", "localhost:50051"},
			allowed: []string{"-g"},
			want:    []string{"-g", "10s"},
		},
		{
			name:    "equals form",
			args:    []string{"-g=10s", "-a", "localhost:50051"},
			allowed: []string{"-g"},
			want:    []string{"-g=10s"},
		},
		{
			name:    "order preserved across forms",
			args:    []string{"-config=first.json", "-c", "second.json", "-x", "1"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-config=first.json", "-c", "second.json"},
		},
		{
			name:    "nothing allowed matches",
			args:    []string{"-x", "1", "-y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-t"},
			allowed: []string{"-t"},
			want:    []string{"-t"},
		},
		{
			name:    "next flag is not a value",
			args:    []string{"-t", "-log", "debug"},
			allowed: []string{"-t", "-log"},
			want:    []string{"-t", "-log", "debug"},
		},
		{
			name:    "equals value may start with a dash",
			args:    []string{"-config=--odd.json"},
			allowed: []string{"-config"},
			want:    []string{"-config=--odd.json"},
		},
		{
			name:    "repeated flag kept",
			args:    []string{"-l", "laptop", "-l", "phone"},
			allowed: []string{"-l"},
			want:    []string{"-l", "laptop", "-l", "phone"},
		},
		{
			name:    "empty input",
			args:    nil,
			allowed: []string{"-c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	cases := map[string]struct {
		args []string
		want string
	}{
		"short":         {[]string{"bin", "-c", "/etc/sk.json"}, "/etc/sk.json"},
		"long":          {[]string{"bin", "-config", "/etc/sk.json"}, "/etc/sk.json"},
		"equals":        {[]string{"bin", "-config=/etc/sk.json"}, "/etc/sk.json"},
		"absent":        {[]string{"bin", "-a", "localhost:50051"}, ""},
		"last one wins": {[]string{"bin", "-c", "/a.json", "-config", "/b.json"}, "/b.json"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			os.Args = tc.args
			assert.Equal(t, tc.want, JsonConfigFlags())
		})
	}
}
