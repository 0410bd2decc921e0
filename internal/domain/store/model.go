package store

// Store is a local mirror of the upstream store entity, keyed by the
// upstream id. Address fields come flattened out of the event's nested
// metadata object.
type Store struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ManualID     string `json:"manual_id"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PostalCode   string `json:"postal_code"`
}

// Metadata is the nested metadata sub-object carried by store events.
type Metadata struct {
	ManualID     string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Country      string
	PostalCode   string
}
