package env

import (
	"testing"
	"time"
)

func TestEnvironment_BasicTypes(t *testing.T) {
	env := FromMap("APP_", map[string]string{
		"APP_STRING":   "test value",
		"APP_INT":      "42",
		"APP_BOOL":     "true",
		"APP_DURATION": "5s",
		"STRING":       "unprefixed",
	})

	if got := env.GetString("string"); got != "test value" {
		t.Errorf("GetString() = %v, want test value", got)
	}
	if got := env.GetInt("INT"); got != 42 {
		t.Errorf("GetInt() = %v, want 42", got)
	}
	if got := env.GetBool("bool"); !got {
		t.Error("GetBool() = false, want true")
	}
	if got := env.GetDuration("duration"); got != 5*time.Second {
		t.Errorf("GetDuration() = %v, want 5s", got)
	}
}

func TestEnvironment_DefaultValues(t *testing.T) {
	env := FromMap("APP_", map[string]string{
		"APP_BAD_INT":      "forty-two",
		"APP_BAD_BOOL":     "maybe",
		"APP_BAD_DURATION": "soon",
	})

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"string", env.GetStringWithDefault("missing", "default"), "default"},
		{"int missing", env.GetIntWithDefault("missing", 7), 7},
		{"int invalid", env.GetIntWithDefault("bad_int", 7), 7},
		{"bool invalid", env.GetBoolWithDefault("bad_bool", true), true},
		{"duration invalid", env.GetDurationWithDefault("bad_duration", time.Minute), time.Minute},
		{"zero int", env.GetInt("missing"), 0},
		{"zero bool", env.GetBool("missing"), false},
		{"zero duration", env.GetDuration("missing"), time.Duration(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestEnvironment_Has(t *testing.T) {
	env := FromMap("APP_", map[string]string{"APP_EMPTY": ""})

	if !env.Has("empty") {
		t.Error("Has() = false for a set but empty variable")
	}
	if env.Has("missing") {
		t.Error("Has() = true for a missing variable")
	}
}

func TestEnvironment_Process(t *testing.T) {
	t.Setenv("CHILDPROC_LOG_LEVEL", "debug")

	env := New()
	if got := env.GetString("log_level"); got != "debug" {
		t.Errorf("GetString() = %v, want debug", got)
	}
}
