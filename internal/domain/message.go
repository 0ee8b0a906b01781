package domain

// Member identifies a party on a ticket: either the in-game reporter or
// an acting admin. The license is the stable account key.
type Member struct {
	Name    string `json:"name"`
	License string `json:"license"`
}

// Message is one entry in a ticket's thread. Immutable once appended.
type Message struct {
	Body          string `json:"message"`
	AuthorLicense string `json:"author_license"`
	AuthorName    string `json:"author_name"`
	Timestamp     int64  `json:"timestamp"`
}

// Author returns the message author as a Member.
func (m Message) Author() Member {
	return Member{Name: m.AuthorName, License: m.AuthorLicense}
}
