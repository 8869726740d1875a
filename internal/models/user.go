package models

// User identifies a chat participant for the lifetime of a connection
// session. The id is the authorization key for edits and reactions.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsBot    bool   `json:"isBot"`
	Color    string `json:"color"`
}

const BotUserID = "bot"

// BotUser returns the fixed, well-known bot identity.
func BotUser() User {
	return User{
		ID:       BotUserID,
		Username: "Poalim Bot",
		IsBot:    true,
		Color:    "#ed1d24",
	}
}
