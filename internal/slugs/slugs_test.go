package slugs

import "testing"

func TestComponentSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Dataset", "my-dataset"},
		{"plate 1/A", "plate-1-a"},
		{"Ünïcode Näme", "unicode-name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ComponentSlug(tt.in); got != tt.want {
				t.Errorf("ComponentSlug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFolderName(t *testing.T) {
	if got := FolderName(12, "My Dataset"); got != "12_my-dataset" {
		t.Errorf("FolderName = %q", got)
	}
	if got := FolderName(3, ""); got != "3" {
		t.Errorf("FolderName with empty name = %q", got)
	}
}
