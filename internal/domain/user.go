package domain

// UserProfile is the public slice of a user owned by the account subsystem.
type UserProfile struct {
	ID        int64   `json:"id"`
	Nickname  string  `json:"nickname"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	IsActive  bool    `json:"-"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
