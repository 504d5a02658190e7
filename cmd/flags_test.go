//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

func TestProcessFlags_Options(t *testing.T) {
	tests := []struct {
		name    string
		flags   processFlags
		def     string
		want    model.Mode
		wantErr bool
	}{
		{name: "default mode", def: "adhoc", want: model.ModeAdhoc},
		{name: "flag overrides default", flags: processFlags{mode: "production"}, def: "adhoc", want: model.ModeProduction},
		{name: "unknown mode", flags: processFlags{mode: "staging"}, def: "adhoc", wantErr: true},
		{name: "no mode anywhere", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := tt.flags.options(tt.def)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.Mode)
		})
	}
}

func TestProcessFlags_CarriesSwitches(t *testing.T) {
	f := processFlags{mode: "adhoc", skipRefinement: true, force: true}
	opts, err := f.options("production")
	require.NoError(t, err)
	assert.True(t, opts.SkipRefinement)
	assert.True(t, opts.Force)
}
