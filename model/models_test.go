// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package model_test

import (
	"testing"

	"github.com/mdhender/namesdb/model"
)

func TestParseGender(t *testing.T) {
	tests := []struct {
		input string
		want  model.Gender
		ok    bool
	}{
		{"M", model.Male, true},
		{"F", model.Female, true},
		{"m", "", false}, // source data is always upper-case
		{"f", "", false},
		{"X", "", false},
		{"", "", false},
		{"MF", "", false},
	}
	for _, tc := range tests {
		got, ok := model.ParseGender(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseGender(%q): got (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}
