package user

// User is a local mirror of the upstream auth user. The primary key is the
// upstream id, so create and update both resolve to an upsert by that id.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
