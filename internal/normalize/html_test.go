package normalize

import "testing"

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain paragraph",
			in:   "<p>Hello world</p>",
			want: "Hello world",
		},
		{
			name: "strips script and style",
			in:   "<style>p{color:red}</style><script>alert(1)</script><p>Visible</p>",
			want: "Visible",
		},
		{
			name: "block elements become lines",
			in:   "<div>First</div><div>Second</div>",
			want: "First\nSecond",
		},
		{
			name: "collapses whitespace",
			in:   "<p>Lots    of\t spaces</p>",
			want: "Lots of spaces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToText(tt.in); got != tt.want {
				t.Errorf("HTMLToText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
