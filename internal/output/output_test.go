package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type summary struct {
	RunID     string `json:"run_id" yaml:"run_id"`
	Completed int    `json:"completed" yaml:"completed"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", YAML, false},
		{"yaml", YAML, false},
		{"yml", YAML, false},
		{"json", JSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownFormat) {
				t.Errorf("error = %v, want ErrUnknownFormat", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrite(t *testing.T) {
	data := summary{RunID: "r1", Completed: 3}

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, YAML, data); err != nil {
			t.Fatal(err)
		}
		if got := buf.String(); got != "run_id: r1\ncompleted: 3\n" {
			t.Errorf("yaml = %q", got)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, JSON, data); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `"run_id": "r1"`) {
			t.Errorf("json = %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, Format("xml"), data); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("Write() = %v, want ErrUnknownFormat", err)
		}
	})
}
