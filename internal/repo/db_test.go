package repo

import "testing"

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"unset", "", 10},
		{"valid", "25", 25},
		{"not a number", "many", 10},
		{"negative", "-3", 10},
		{"zero", "0", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_MAX_CONNS", tt.value)
			if got := envInt("DB_MAX_CONNS", 10); got != tt.want {
				t.Errorf("envInt = %d, want %d", got, tt.want)
			}
		})
	}
}
