package dispatch

// CanonicalPayload is the normalized structure handed to the external
// conversation processor for every inbound message. It is a derived view
// built per event and never stored. The counterpart address doubles as both
// the contact account and the contact id.
//
// JSON shape:
//
//	{
//	  "role_tag": "contact",
//	  "channel_tag": "sms",
//	  "channel_account": "<device webhook>",
//	  "channel_settings": {},
//	  "contact_account": "+15551234567",
//	  "contact_id": "+15551234567",
//	  "contact_details": null,
//	  "message_type": "new_message",
//	  "message_event": null,
//	  "message_body": "hello",
//	  "action": null,
//	  "attachment_id": null,
//	  "message_metadata": {}
//	}
type CanonicalPayload struct {
	RoleTag         string                 `json:"role_tag"`
	ChannelTag      string                 `json:"channel_tag"`
	ChannelAccount  string                 `json:"channel_account"`
	ChannelSettings map[string]interface{} `json:"channel_settings"`
	ContactAccount  string                 `json:"contact_account"`
	ContactID       string                 `json:"contact_id"`
	ContactDetails  *string                `json:"contact_details"`
	MessageType     string                 `json:"message_type"`
	MessageEvent    *string                `json:"message_event"`
	MessageBody     string                 `json:"message_body"`
	Action          *string                `json:"action"`
	AttachmentID    *string                `json:"attachment_id"`
	MessageMetadata map[string]interface{} `json:"message_metadata"`
}

// NewCanonicalPayload builds the processor payload for one inbound message.
func NewCanonicalPayload(deviceWebhook, contactAccount, body string) CanonicalPayload {
	return CanonicalPayload{
		RoleTag:         "contact",
		ChannelTag:      "sms",
		ChannelAccount:  deviceWebhook,
		ChannelSettings: map[string]interface{}{},
		ContactAccount:  contactAccount,
		ContactID:       contactAccount,
		MessageType:     "new_message",
		MessageBody:     body,
		MessageMetadata: map[string]interface{}{},
	}
}
