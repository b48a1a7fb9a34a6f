// File: internal/mailtm/types.go
package mailtm

// Domain is one entry of GET /domains.
type Domain struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	IsActive  bool   `json:"isActive"`
	IsPrivate bool   `json:"isPrivate"`
}

// Account is the body returned by POST /accounts.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Address is a sender or recipient.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// MessageSummary is one entry of GET /messages.
type MessageSummary struct {
	ID        string  `json:"id"`
	From      Address `json:"from"`
	Subject   string  `json:"subject"`
	Intro     string  `json:"intro"`
	Seen      bool    `json:"seen"`
	CreatedAt string  `json:"createdAt"`
}

// Message is the full body of GET /messages/{id}.
type Message struct {
	ID        string    `json:"id"`
	From      Address   `json:"from"`
	To        []Address `json:"to"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	HTML      []string  `json:"html"`
	CreatedAt string    `json:"createdAt"`
}

// Mailbox is the provisioned inbox handed to the rest of the run.
type Mailbox struct {
	Address   string `json:"address"`
	Password  string `json:"-"`
	Token     string `json:"-"`
	AccountID string `json:"accountId"`
}

type credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
}
