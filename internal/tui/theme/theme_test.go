package theme

import "testing"

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"Done", string(ColorDone)},
		{"In Progress", string(ColorInProgress)},
		{"In Review", string(ColorInProgress)},
		{"To Do", string(ColorToDo)},
		{"", string(ColorDefault)},
	}
	for _, tt := range tests {
		if got := string(StatusColor(tt.status)); got != tt.want {
			t.Errorf("StatusColor(%q) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
