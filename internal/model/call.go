package model

import "time"

// CallEvent is the payload accepted by the Ringba webhook endpoint. Numeric
// fields arrive from the provider in inconsistent shapes, so payout and
// revenue are decoded leniently by the handler before a RawCallRecord is
// built.
type CallEvent struct {
	CallID        string  `json:"call_id"`
	CallStartUTC  string  `json:"callStartUtc"`
	DID           string  `json:"did"`
	CallerID      string  `json:"callerId"`
	DurationSec   int     `json:"durationSec"`
	Disposition   string  `json:"disposition"`
	CampaignName  string  `json:"campaignName"`
	CampaignID    string  `json:"campaignId"`
	Target        string  `json:"target"`
	PublisherID   string  `json:"publisherId"`
	PublisherName string  `json:"publisherName"`
	Payout        float64 `json:"payout"`
	Revenue       float64 `json:"revenue"`
}

// RawCallRecord is the message written to the raw calls topic and later
// persisted by the loader. Payload fields are forwarded as-is; only the DID
// is canonicalized on the way in.
type RawCallRecord struct {
	CallEvent
	DIDCanon   string    `json:"did_canon"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewRawCallRecord builds a RawCallRecord from a validated event and the
// canonical DID computed by the webhook handler.
func NewRawCallRecord(evt CallEvent, didCanon string, receivedAt time.Time) RawCallRecord {
	return RawCallRecord{
		CallEvent:  evt,
		DIDCanon:   didCanon,
		ReceivedAt: receivedAt.UTC(),
	}
}

// SalesEvent is one confirmed-sale row parsed from the tracking spreadsheet.
type SalesEvent struct {
	PublisherName string
	OccurredAt    time.Time
}
