package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_worker/core/domain"
)

func TestNormalize_DropsUnknownAndEmpty(t *testing.T) {
	fields := FieldMap{
		"name":     {Key: "contact_name", Kind: KindString},
		"duration": {Key: "duration_seconds", Kind: KindInt},
	}
	raw := map[string]any{
		"name":     "  Dana  ",
		"duration": "",
		"unknown":  "ignored",
	}

	got := Normalize(raw, fields)

	assert.Equal(t, Canonical{"contact_name": "Dana"}, got)
}

func TestNormalize_MalformedFieldDegradesToNull(t *testing.T) {
	fields := FieldMap{
		"duration": {Key: "duration_seconds", Kind: KindInt},
		"date":     {Key: "call_date", Kind: KindDate},
		"company":  {Key: "company", Kind: KindString},
	}
	raw := map[string]any{
		"duration": "about a minute",
		"date":     "not a date",
		"company":  "Acme",
	}

	got := Normalize(raw, fields)

	assert.Nil(t, got.Int("duration_seconds"))
	assert.Nil(t, got.Time("call_date"))
	assert.Equal(t, "Acme", got.String("company"))
}

func TestNormalize_AliasPrecedenceIsStable(t *testing.T) {
	raw := map[string]any{
		"id":          "a-1",
		"activity_id": "a-2",
		"reply_text":  "Can we meet Tuesday?",
		"body":        "unsubscribe",
	}

	for i := 0; i < 50; i++ {
		got := Normalize(raw, EmailReplyFieldMap)
		require.Equal(t, "a-1", got.String(KeyExternalID))
		require.Equal(t, "Can we meet Tuesday?", got.String(KeyReplyText))
	}
}

func TestNormalize_AliasFallsThroughUnusableValue(t *testing.T) {
	raw := map[string]any{
		"id":          "  ",
		"activity_id": "a-2",
		"reply_body":  "Sounds good",
		"body":        "unsubscribe",
	}

	got := Normalize(raw, EmailReplyFieldMap)
	assert.Equal(t, "a-2", got.String(KeyExternalID))
	assert.Equal(t, "Sounds good", got.String(KeyReplyText))

	calls := Normalize(map[string]any{"duration": "n/a", "call_duration": 42}, DialerCallFieldMap)
	require.NotNil(t, calls.Int(KeyDuration))
	assert.Equal(t, 42, *calls.Int(KeyDuration))
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   int
		wantOK bool
	}{
		{"int", 39, 39, true},
		{"json float", float64(85), 85, true},
		{"numeric string", "39", 39, true},
		{"decimal string", "39.6", 40, true},
		{"garbage", "abc", 0, false},
		{"bool", true, 0, false},
		{"float beyond int range", 1e300, 0, false},
		{"string beyond int range", "-1e19", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInt(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{"rfc3339", "2024-03-05T14:30:00Z", time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC), true},
		{"iso date", "2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"us date time", "3/5/2024 14:30:15", time.Date(2024, 3, 5, 14, 30, 15, 0, time.UTC), true},
		{"us date only", "12/31/2023", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"us date no seconds", "3/5/2024 9:05", time.Date(2024, 3, 5, 9, 5, 0, 0, time.UTC), true},
		{"impossible day", "2/31/2024", time.Time{}, false},
		{"bad month", "13/1/2024", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
		{"empty", "", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestToCallRecord(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	raw := map[string]any{
		"call_id":             "c-1",
		"direction":           "Outbound",
		"prospect_name":       "Dana Lee",
		"duration":            "39",
		"datetime":            "6/1/2024 10:15:00",
		"disposition":         "Voicemail - 39 seconds",
		"opener_score":        8,
		"discovery_score":     "7",
		"tonality_score":      42,
		"pitch_score":         6.5,
		"pitch_justification": "clear value prop",
		"mystery":             "dropped",
	}

	rec, err := ToCallRecord(raw, DialerCallFieldMap, "conn-1", now)
	require.NoError(t, err)

	assert.Equal(t, "c-1", rec.ExternalID)
	assert.Equal(t, "conn-1", rec.ConnectionID)
	assert.Equal(t, domain.CallDirectionOutbound, rec.Direction)
	assert.Equal(t, "Dana Lee", rec.ContactName)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 39, *rec.DurationSeconds)
	require.NotNil(t, rec.CallDate)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *rec.CallDate)
	assert.Equal(t, "Voicemail - 39 seconds", rec.RawOutcome)

	// tonality (42) is outside 1..10 and dropped
	require.Len(t, rec.Scores, 3)
	assert.Equal(t, "discovery", rec.Scores[0].Name)
	assert.Equal(t, "opener", rec.Scores[1].Name)
	assert.Equal(t, "pitch", rec.Scores[2].Name)
	assert.Equal(t, "clear value prop", rec.Scores[2].Justification)

	require.NotNil(t, rec.CompositeScore)
	assert.Equal(t, 7.17, *rec.CompositeScore)
}

func TestToCallRecord_NoScoresLeavesCompositeNil(t *testing.T) {
	rec, err := ToCallRecord(map[string]any{"id": "c-2"}, DialerCallFieldMap, "conn-1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec.CompositeScore)
	assert.Empty(t, rec.Scores)
}

func TestToCallRecord_MissingID(t *testing.T) {
	_, err := ToCallRecord(map[string]any{"duration": 10}, DialerCallFieldMap, "conn-1", time.Now())
	assert.ErrorIs(t, err, ErrMissingExternalID)
}

func TestToEmailActivity(t *testing.T) {
	now := time.Now()

	t.Run("replied inferred from text", func(t *testing.T) {
		rec, err := ToEmailActivity(map[string]any{
			"id":          float64(1234),
			"campaign_id": "camp-1",
			"email":       "Dana@Example.com",
			"reply_text":  "Sounds good",
		}, EmailReplyFieldMap, "conn-1", now)
		require.NoError(t, err)
		assert.Equal(t, "1234", rec.ExternalID)
		assert.Equal(t, "dana@example.com", rec.LeadEmail)
		assert.True(t, rec.Replied)
		assert.False(t, rec.IsClassified())
	})

	t.Run("explicit replied flag wins", func(t *testing.T) {
		rec, err := ToEmailActivity(map[string]any{
			"id":         "a-2",
			"reply_text": "text",
			"replied":    "no",
		}, EmailReplyFieldMap, "conn-1", now)
		require.NoError(t, err)
		assert.False(t, rec.Replied)
	})
}

func TestToCopyVariant(t *testing.T) {
	v, err := ToCopyVariant(map[string]any{
		"id":            "v-1",
		"campaign_id":   "camp-1",
		"seq_number":    float64(2),
		"email_subject": "Quick question",
		"email_body":    "<p>Hi {{first_name}}</p>",
	}, EmailVariantFieldMap, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "v-1", v.VariantID)
	assert.Equal(t, 2, v.Step)
	assert.Equal(t, "Quick question", v.Subject)

	_, err = ToCopyVariant(map[string]any{"subject": "x"}, EmailVariantFieldMap, "conn-1")
	assert.ErrorIs(t, err, ErrMissingExternalID)
}
