package users

// ImageURLFunc turns a stored media key into a public URL.
type ImageURLFunc func(key string) string

// ProfileView is the read representation of a Profile. Optional values
// that are unset serialize as null.
type ProfileView struct {
	Age        int     `json:"age"`
	Country    *string `json:"country"`
	City       *string `json:"city"`
	Followers  int     `json:"followers"`
	Likes      int     `json:"likes"`
	Posts      int     `json:"posts"`
	ProfilePic *string `json:"profile_pic"`
	HeroBadge  *string `json:"hero_badge"`
}

// AccountView is the read representation of an Account.
type AccountView struct {
	Username  string      `json:"username"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Profile   ProfileView `json:"profile"`
}

// SerializeProfile shapes p for read APIs. A nil url leaves keys as-is.
func SerializeProfile(p Profile, url ImageURLFunc) ProfileView {
	image := func(key string) *string {
		if key == "" {
			return nil
		}
		if url != nil {
			key = url(key)
		}
		return &key
	}
	return ProfileView{
		Age:        p.Age,
		Country:    optional(p.Country),
		City:       optional(p.City),
		Followers:  p.Followers,
		Likes:      p.Likes,
		Posts:      p.Posts,
		ProfilePic: image(p.ProfilePic),
		HeroBadge:  image(p.HeroBadge),
	}
}

// SerializeAccount shapes a for read APIs.
func SerializeAccount(a *Account, url ImageURLFunc) AccountView {
	return AccountView{
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Profile:   SerializeProfile(a.Profile, url),
	}
}

// SerializeAccounts shapes a list of accounts.
func SerializeAccounts(accts []*Account, url ImageURLFunc) []AccountView {
	out := make([]AccountView, 0, len(accts))
	for _, a := range accts {
		out = append(out, SerializeAccount(a, url))
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
