package interrupt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"timer", KindTimer, false},
		{"IO", KindIO, false},
		{" fault ", KindFault, false},
		{"erro", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindsCoversEveryKind(t *testing.T) {
	kinds := Kinds()
	require.Len(t, kinds, NumKinds)
	for _, k := range kinds {
		assert.True(t, k.Valid())
		assert.NotContains(t, k.String(), "kind(")
	}
	assert.False(t, Kind(NumKinds).Valid())
	assert.Equal(t, "kind(-1)", Kind(-1).String())
}

func TestNewAssignsIdentity(t *testing.T) {
	a := New(KindTimer, 5)
	b := New(KindTimer, 5)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, a.CreatedAt().IsZero())
	assert.False(t, a.IsZero())
	assert.True(t, Event{}.IsZero())
}

func TestBeforeComparesPriorityOnly(t *testing.T) {
	io := New(KindIO, 1)
	timer := New(KindTimer, 5)
	fault := New(KindFault, 5)

	assert.True(t, io.Before(timer))
	assert.False(t, timer.Before(io))
	assert.False(t, timer.Before(fault))
	assert.False(t, fault.Before(timer))
	assert.True(t, Less(io, fault))
}

func TestEventJSON(t *testing.T) {
	ev := New(KindFault, 3)

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "fault", raw["kind"])
	assert.EqualValues(t, 3, raw["priority"])
	assert.Equal(t, ev.ID(), raw["id"])

	var back Event
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ev.ID(), back.ID())
	assert.Equal(t, ev.Kind(), back.Kind())
	assert.True(t, ev.CreatedAt().Equal(back.CreatedAt()))

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &back))
}
