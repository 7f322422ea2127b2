package domain

// User is an account known to the bot. Identities are accounts linked to it,
// each of which may carry its own OAuth token.
type User struct {
	Username    string
	AccessToken string
	Identities  []Identity
}

// Identity is a linked account
type Identity struct {
	Name        string
	AccessToken string
}

// Token returns the user's own access token, falling back to the first
// linked identity that has one. An empty string means no token is known.
func (u *User) Token() string {
	if u.AccessToken != "" {
		return u.AccessToken
	}
	for _, id := range u.Identities {
		if id.AccessToken != "" {
			return id.AccessToken
		}
	}
	return ""
}
