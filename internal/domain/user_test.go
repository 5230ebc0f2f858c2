package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProfilePatch_Validate(t *testing.T) {
	name := "maria"
	short := "mj"
	income := decimal.NewFromInt(2500)
	negative := decimal.NewFromInt(-1)

	tests := []struct {
		name    string
		patch   ProfilePatch
		wantErr bool
	}{
		{"empty", ProfilePatch{}, true},
		{"username", ProfilePatch{Username: &name}, false},
		{"short username", ProfilePatch{Username: &short}, true},
		{"income", ProfilePatch{Income: &income}, false},
		{"negative income", ProfilePatch{Income: &negative}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
