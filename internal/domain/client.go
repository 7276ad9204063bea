package domain

import "errors"

const MaxClientNameLen = 36

var (
	ErrClientNameTooLong = errors.New("client name too long")
	ErrClientNameEmpty   = errors.New("client name empty")
)

// ClientID identifies one signaling connection (a browser tab, a softphone).
type ClientID string

type Client struct {
	ID   ClientID `json:"id"`
	Name string   `json:"name"`
}

func NewClient(id ClientID) *Client {
	return &Client{ID: id, Name: "guest"}
}

func (c *Client) SetName(name string) error {
	if len(name) == 0 {
		return ErrClientNameEmpty
	}
	if len(name) > MaxClientNameLen {
		return ErrClientNameTooLong
	}
	c.Name = name
	return nil
}
