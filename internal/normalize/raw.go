package normalize

import "encoding/json"

// RawTransaction is a transaction as sent by the API or the push channel.
// Amount is kept raw because the backend has sent both JSON numbers and numeric strings,
// signed values and unsigned value+type pairs.
type RawTransaction struct {
	ID          json.RawMessage `json:"id,omitempty"`
	MongoID     json.RawMessage `json:"_id,omitempty"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Amount      json.RawMessage `json:"amount,omitempty"`
	Type        string          `json:"type,omitempty"`
	Kind        string          `json:"kind,omitempty"`
	Date        string          `json:"date,omitempty"`
}

// RawProfile is the /auth/me payload.
type RawProfile struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Email     string          `json:"email"`
	Username  string          `json:"username,omitempty"`
	FullName  string          `json:"full_name,omitempty"`
	Income    json.RawMessage `json:"income,omitempty"`
	IsActive  *bool           `json:"is_active,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}
