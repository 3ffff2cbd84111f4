package idauthority

import (
	"testing"

	"github.com/ValentinKolb/dLock/lib/store"
)

func TestParseConflictAvoidanceMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ConflictAvoidanceMode
		wantErr bool
	}{
		{"none", None, false},
		{"", None, false},
		{"LOCAL_MANUAL", LocalManual, false},
		{"global-manual", GlobalManual, false},
		{" Global_Auto ", GlobalAuto, false},
		{"random", None, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConflictAvoidanceMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseConflictAvoidanceMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseConflictAvoidanceMode(%q) = %s, want %s", tt.in, got, tt.want)
			}
			if !tt.wantErr {
				if back, _ := ParseConflictAvoidanceMode(got.String()); back != got {
					t.Errorf("String() of %s does not parse back", got)
				}
			}
		})
	}
}

func TestModeConsistency(t *testing.T) {
	for _, m := range []ConflictAvoidanceMode{None, GlobalManual, GlobalAuto} {
		if m.Consistency() != store.ConsistencyKey {
			t.Errorf("%s: expected key consistency, got %s", m, m.Consistency())
		}
	}
	if LocalManual.Consistency() != store.ConsistencyLocalKey {
		t.Errorf("local-manual: expected local key consistency, got %s", LocalManual.Consistency())
	}
}

func TestModeTagged(t *testing.T) {
	tests := []struct {
		mode ConflictAvoidanceMode
		want bool
	}{
		{None, false},
		{LocalManual, true},
		{GlobalManual, true},
		{GlobalAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := tt.mode.Tagged(); got != tt.want {
				t.Errorf("Tagged() = %v, want %v", got, tt.want)
			}
			conf := Config{Mode: tt.mode, TagBits: 3}.WithDefaults()
			if tagged := conf.TagBits > 0; tagged != tt.want {
				t.Errorf("TagBits = %d after defaults, tagged = %v", conf.TagBits, tt.want)
			}
		})
	}
}
