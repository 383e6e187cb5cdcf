package version

import (
	"errors"
	"testing"
)

func TestCheckHistorySchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		ok      bool
	}{
		{HistorySchemaVersion, true},
		{"1.4.2", true},
		{"1", true},
		{"2.0.0", false},
		{"0.9.0", false},
		{"", false},
		{"one", false},
	}

	for _, tt := range tests {
		err := CheckHistorySchema(tt.version)
		if tt.ok && err != nil {
			t.Errorf("CheckHistorySchema(%q) = %v, want nil", tt.version, err)
		}
		if !tt.ok && !errors.Is(err, ErrIncompatibleSchema) {
			t.Errorf("CheckHistorySchema(%q) = %v, want ErrIncompatibleSchema", tt.version, err)
		}
	}
}
