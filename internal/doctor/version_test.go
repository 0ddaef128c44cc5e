package doctor

import "testing"

func TestParseMajorMinor(t *testing.T) {
	tests := []struct {
		name      string
		ver       string
		wantMajor int
		wantMinor int
		wantErr   bool
	}{
		{"simple", "1.0", 1, 0, false},
		{"with patch", "1.2.3", 1, 2, false},
		{"single number", "1", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"bad major", "abc.0", 0, 0, true},
		{"bad minor", "1.xyz", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, err := parseMajorMinor(tt.ver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMajorMinor(%q) = (%d,%d,nil); want error", tt.ver, major, minor)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMajorMinor(%q) error: %v", tt.ver, err)
			}

			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Fatalf("parseMajorMinor(%q) = (%d,%d); want (%d,%d)",
					tt.ver, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestCheckFormatVersion(t *testing.T) {
	for ver, wantErr := range map[string]bool{"1.0": false, "1.9": false, "0.9": true, "2.0": true, "x": true} {
		if err := checkFormatVersion(ver); (err != nil) != wantErr {
			t.Errorf("checkFormatVersion(%q) error = %v; wantErr %v", ver, err, wantErr)
		}
	}
}
