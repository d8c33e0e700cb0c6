package flagx

import (
	"reflect"
	"testing"
)

func TestFilterArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "keeps allowed flag with value",
			args:    []string{"-a", ":8080", "-x", "noise"},
			allowed: []string{"-a"},
			want:    []string{"-a", ":8080"},
		},
		{
			name:    "keeps equals form",
			args:    []string{"-d=dsn", "--config=conf.json"},
			allowed: []string{"-d"},
			want:    []string{"-d=dsn"},
		},
		{
			name:    "drops unknown flags entirely",
			args:    []string{"-z", "1", "-y=2"},
			allowed: []string{"-a"},
			want:    []string{},
		},
		{
			name:    "flag followed by another flag takes no value",
			args:    []string{"-a", "-d", "dsn"},
			allowed: []string{"-a", "-d"},
			want:    []string{"-a", "-d", "dsn"},
		},
		{
			name:    "empty input",
			args:    nil,
			allowed: []string{"-a"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
