package visualization

import (
	"slices"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{goos: "linux", wantName: "xdg-open", wantArgs: []string{"http://127.0.0.1:8080/"}},
		{goos: "darwin", wantName: "open", wantArgs: []string{"http://127.0.0.1:8080/"}},
		{goos: "windows", wantName: "cmd", wantArgs: []string{"/c", "start", "", "http://127.0.0.1:8080/"}},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, "http://127.0.0.1:8080/")
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported platform")
				}
				return
			}
			if err != nil {
				t.Fatalf("browserCommand() error = %v", err)
			}
			if name != tt.wantName || !slices.Equal(args, tt.wantArgs) {
				t.Errorf("browserCommand() = %s %v, want %s %v", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}
