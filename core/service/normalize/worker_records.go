package normalize

import (
	"errors"
	"sort"
	"strings"
	"time"

	"outreach_worker/core/domain"
)

// ErrMissingExternalID marks a record that cannot be keyed and must be skipped.
var ErrMissingExternalID = errors.New("record has no external identifier")

// Canonical keys shared by the field maps.
const (
	KeyExternalID    = "external_id"
	KeyDirection     = "direction"
	KeyContactName   = "contact_name"
	KeyCompany       = "company"
	KeyPhone         = "phone"
	KeyDuration      = "duration_seconds"
	KeyCallDate      = "call_date"
	KeyCallDateTime  = "call_datetime"
	KeyOutcome       = "raw_outcome"
	KeyTranscript    = "transcript"
	KeyCampaignID    = "campaign_id"
	KeyLeadEmail     = "lead_email"
	KeySubject       = "subject"
	KeyReplyText     = "reply_text"
	KeyReplied       = "replied"
	KeyRepliedAt     = "replied_at"
	KeyVariantID     = "variant_id"
	KeyStep          = "step"
	KeyBody          = "body"
	ScoreKeyPrefix   = "score:"
	ReasonKeyPrefix  = "justification:"
	scoreFieldSuffix = "_score"
	reasonSuffix     = "_justification"
)

// =============================================================================
// Platform field maps
// =============================================================================

// DialerCallFieldMap maps a dialer platform's call export onto CallRecord keys.
var DialerCallFieldMap = FieldMap{
	"id":               {KeyExternalID, KindString, 0},
	"call_id":          {KeyExternalID, KindString, 1},
	"direction":        {KeyDirection, KindString, 0},
	"call_direction":   {KeyDirection, KindString, 1},
	"contact_name":     {KeyContactName, KindString, 0},
	"prospect_name":    {KeyContactName, KindString, 1},
	"company":          {KeyCompany, KindString, 0},
	"company_name":     {KeyCompany, KindString, 1},
	"phone":            {KeyPhone, KindString, 0},
	"phone_number":     {KeyPhone, KindString, 1},
	"duration":         {KeyDuration, KindInt, 0},
	"call_duration":    {KeyDuration, KindInt, 1},
	"date":             {KeyCallDate, KindDate, 0},
	"call_date":        {KeyCallDate, KindDate, 1},
	"datetime":         {KeyCallDateTime, KindDateTime, 0},
	"call_datetime":    {KeyCallDateTime, KindDateTime, 1},
	"started_at":       {KeyCallDateTime, KindDateTime, 2},
	"disposition":      {KeyOutcome, KindString, 0},
	"outcome":          {KeyOutcome, KindString, 1},
	"call_outcome":     {KeyOutcome, KindString, 2},
	"transcript":       {KeyTranscript, KindString, 0},
	"summary":          {KeyTranscript, KindString, 1},
	"call_summary":     {KeyTranscript, KindString, 2},
	"opener_score":     {ScoreKeyPrefix + "opener", KindFloat, 0},
	"discovery_score":  {ScoreKeyPrefix + "discovery", KindFloat, 0},
	"objection_score":  {ScoreKeyPrefix + "objection_handling", KindFloat, 0},
	"tonality_score":   {ScoreKeyPrefix + "tonality", KindFloat, 0},
	"closing_score":    {ScoreKeyPrefix + "closing", KindFloat, 0},
	"opener_reason":    {ReasonKeyPrefix + "opener", KindString, 0},
	"discovery_reason": {ReasonKeyPrefix + "discovery", KindString, 0},
	"objection_reason": {ReasonKeyPrefix + "objection_handling", KindString, 0},
	"tonality_reason":  {ReasonKeyPrefix + "tonality", KindString, 0},
	"closing_reason":   {ReasonKeyPrefix + "closing", KindString, 0},
}

// EmailReplyFieldMap maps an email platform's reply activity export.
var EmailReplyFieldMap = FieldMap{
	"id":            {KeyExternalID, KindString, 0},
	"activity_id":   {KeyExternalID, KindString, 1},
	"campaign_id":   {KeyCampaignID, KindString, 0},
	"lead_email":    {KeyLeadEmail, KindString, 0},
	"email":         {KeyLeadEmail, KindString, 1},
	"subject":       {KeySubject, KindString, 0},
	"reply_subject": {KeySubject, KindString, 1},
	"reply_text":    {KeyReplyText, KindString, 0},
	"reply_body":    {KeyReplyText, KindString, 1},
	"body":          {KeyReplyText, KindString, 2},
	"replied":       {KeyReplied, KindBool, 0},
	"is_replied":    {KeyReplied, KindBool, 1},
	"replied_at":    {KeyRepliedAt, KindDateTime, 0},
	"reply_time":    {KeyRepliedAt, KindDateTime, 1},
}

// EmailVariantFieldMap maps an email platform's sequence variant export.
var EmailVariantFieldMap = FieldMap{
	"id":            {KeyVariantID, KindString, 0},
	"variant_id":    {KeyVariantID, KindString, 1},
	"campaign_id":   {KeyCampaignID, KindString, 0},
	"seq_number":    {KeyStep, KindInt, 0},
	"step":          {KeyStep, KindInt, 1},
	"subject":       {KeySubject, KindString, 0},
	"email_subject": {KeySubject, KindString, 1},
	"email_body":    {KeyBody, KindString, 0},
	"body":          {KeyBody, KindString, 1},
}

// WithScoreFields extends a field map with every "<name>_score" and
// "<name>_justification" field present on the record.
func WithScoreFields(base FieldMap, raw map[string]any) FieldMap {
	var extra FieldMap
	for name := range raw {
		if _, known := base[name]; known {
			continue
		}
		var spec FieldSpec
		switch {
		case strings.HasSuffix(name, scoreFieldSuffix):
			spec = FieldSpec{Key: ScoreKeyPrefix + strings.TrimSuffix(name, scoreFieldSuffix), Kind: KindFloat}
		case strings.HasSuffix(name, reasonSuffix):
			spec = FieldSpec{Key: ReasonKeyPrefix + strings.TrimSuffix(name, reasonSuffix), Kind: KindString}
		default:
			continue
		}
		if extra == nil {
			extra = make(FieldMap, len(base)+4)
			for k, v := range base {
				extra[k] = v
			}
		}
		extra[name] = spec
	}
	if extra == nil {
		return base
	}
	return extra
}

// =============================================================================
// Typed constructors
// =============================================================================

// ToCallRecord normalizes a raw call into a CallRecord. Derived fields are left
// for the disposition classifier; the composite score is computed here.
func ToCallRecord(raw map[string]any, fields FieldMap, connectionID string, now time.Time) (*domain.CallRecord, error) {
	c := Normalize(raw, WithScoreFields(fields, raw))
	id := c.String(KeyExternalID)
	if id == "" {
		return nil, ErrMissingExternalID
	}

	rec := &domain.CallRecord{
		ExternalID:      id,
		ConnectionID:    connectionID,
		Direction:       parseDirection(c.String(KeyDirection)),
		ContactName:     c.String(KeyContactName),
		Company:         c.String(KeyCompany),
		Phone:           c.String(KeyPhone),
		DurationSeconds: c.Int(KeyDuration),
		CallDate:        c.Time(KeyCallDate),
		CallDateTime:    c.Time(KeyCallDateTime),
		RawOutcome:      c.String(KeyOutcome),
		Transcript:      c.String(KeyTranscript),
		Scores:          collectScores(c),
		SyncedAt:        now,
	}
	if rec.DurationSeconds != nil && *rec.DurationSeconds < 0 {
		rec.DurationSeconds = nil
	}
	if rec.CallDate == nil && rec.CallDateTime != nil {
		d := time.Date(rec.CallDateTime.Year(), rec.CallDateTime.Month(), rec.CallDateTime.Day(), 0, 0, 0, 0, time.UTC)
		rec.CallDate = &d
	}
	rec.RecomputeComposite()
	return rec, nil
}

func parseDirection(s string) domain.CallDirection {
	switch strings.ToLower(s) {
	case "inbound", "in", "incoming":
		return domain.CallDirectionInbound
	case "outbound", "out", "outgoing":
		return domain.CallDirectionOutbound
	}
	return ""
}

// collectScores keeps scores inside 1..10; out-of-range values are field defects.
func collectScores(c Canonical) []domain.CallScore {
	var names []string
	for key := range c {
		if strings.HasPrefix(key, ScoreKeyPrefix) {
			names = append(names, strings.TrimPrefix(key, ScoreKeyPrefix))
		}
	}
	sort.Strings(names)

	var scores []domain.CallScore
	for _, name := range names {
		v := c.Float(ScoreKeyPrefix + name)
		if v == nil || *v < domain.MinCallScore || *v > domain.MaxCallScore {
			continue
		}
		scores = append(scores, domain.CallScore{
			Name:          name,
			Value:         *v,
			Justification: c.String(ReasonKeyPrefix + name),
		})
	}
	return scores
}

// ToEmailActivity normalizes a raw reply event. Records with reply text count
// as replied unless the source says otherwise.
func ToEmailActivity(raw map[string]any, fields FieldMap, connectionID string, now time.Time) (*domain.EmailActivityRecord, error) {
	c := Normalize(raw, fields)
	id := c.String(KeyExternalID)
	if id == "" {
		return nil, ErrMissingExternalID
	}

	rec := &domain.EmailActivityRecord{
		ExternalID:   id,
		ConnectionID: connectionID,
		CampaignID:   c.String(KeyCampaignID),
		LeadEmail:    strings.ToLower(c.String(KeyLeadEmail)),
		Subject:      c.String(KeySubject),
		ReplyText:    c.String(KeyReplyText),
		RepliedAt:    c.Time(KeyRepliedAt),
		SyncedAt:     now,
	}
	if replied, ok := c.Bool(KeyReplied); ok {
		rec.Replied = replied
	} else {
		rec.Replied = rec.ReplyText != ""
	}
	return rec, nil
}

// ToCopyVariant normalizes a raw sequence variant.
func ToCopyVariant(raw map[string]any, fields FieldMap, connectionID string) (*domain.CopyVariant, error) {
	c := Normalize(raw, fields)
	id := c.String(KeyVariantID)
	if id == "" {
		return nil, ErrMissingExternalID
	}
	v := &domain.CopyVariant{
		VariantID:    id,
		ConnectionID: connectionID,
		CampaignID:   c.String(KeyCampaignID),
		Subject:      c.String(KeySubject),
		Body:         c.String(KeyBody),
	}
	if step := c.Int(KeyStep); step != nil {
		v.Step = *step
	}
	return v, nil
}
