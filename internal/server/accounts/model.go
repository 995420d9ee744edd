package accounts

import "time"

// Account is a shared-credential identity: whoever presents the username and
// password owns every file uploaded under the pair. Usernames are unique and
// immutable once created.
type Account struct {
	ID        string
	Username  string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
