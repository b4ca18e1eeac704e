package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1995-06-15", want: "1995-06-15"},
		{in: " 1995-06-15 ", want: "1995-06-15"},
		{in: "1995-06-15T00:00:00.000Z", want: "1995-06-15"},
		{in: "1995-06-15T18:45:00Z", want: "1995-06-15"},
		{in: "", wantErr: true},
		{in: "15/06/1995", wantErr: true},
		{in: "1995-13-01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(time.Date(2001, 2, 3, 23, 59, 0, 0, time.UTC))
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2001-02-03"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, d.Equal(back.Time))
}

func TestVocabulary(t *testing.T) {
	assert.True(t, IsKnownDomain("Web Development"))
	assert.False(t, IsKnownDomain("web development"), "domains match exactly")
	assert.False(t, IsKnownDomain(""))

	assert.True(t, ProficiencyExpert.Valid())
	assert.False(t, Proficiency("Guru").Valid())

	assert.True(t, GenderPreferNotToSay.Valid())
	assert.False(t, Gender("").Valid())
}
