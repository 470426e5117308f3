package accounts

// Rights is the administrator privilege set granted to a pool account so
// that the platform accepts its reactions in a channel.
type Rights struct {
	ManageChat     bool
	PostMessages   bool
	EditMessages   bool
	DeleteMessages bool
	InviteUsers    bool
	PinMessages    bool
}

// ReactionRights is the minimal set that lets a bot react to channel posts.
func ReactionRights() Rights {
	return Rights{ManageChat: true, PostMessages: true}
}
