package model

// Tag is a label attached to exactly one server. Deleting the server
// deletes its tags.
type Tag struct {
	ID       string `json:"id"`
	ServerID string `json:"serverId"`
	Value    string `json:"value"`
}

// TagPalette is the fixed set of labels an owner can choose from.
// Input is matched case-insensitively and stored in this casing.
var TagPalette = []string{
	"Chill",
	"Fun",
	"Gaming",
	"NSFW",
	"18+",
	"Community",
	"Entertainment",
	"Social",
}
