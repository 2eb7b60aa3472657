package users_test

import (
	"encoding/json"
	"testing"

	"github.com/jmerrifield20/profilehub/internal/users"
)

func TestSerializeAccount(t *testing.T) {
	a := &users.Account{
		Username:     "alice",
		Email:        "a@x.com",
		PasswordHash: "secret-hash",
		FirstName:    "A",
		LastName:     "L",
		Profile: users.Profile{
			Age:        30,
			City:       "NYC",
			Followers:  3,
			ProfilePic: "profiles/alice/pic.png",
		},
	}

	view := users.SerializeAccount(a, func(key string) string { return "/media/" + key })
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("account keys: got %v, want username, first_name, last_name, profile", got)
	}
	for _, hidden := range []string{"email", "password_hash", "id"} {
		if _, ok := got[hidden]; ok {
			t.Errorf("%s must not be serialized", hidden)
		}
	}

	profile := got["profile"].(map[string]any)
	if len(profile) != 8 {
		t.Errorf("profile keys: got %v", profile)
	}
	if profile["profile_pic"] != "/media/profiles/alice/pic.png" {
		t.Errorf("profile_pic: got %v", profile["profile_pic"])
	}
	if profile["hero_badge"] != nil || profile["country"] != nil {
		t.Errorf("unset values should be null: %v", profile)
	}
	if profile["city"] != "NYC" || profile["age"] != float64(30) || profile["followers"] != float64(3) {
		t.Errorf("profile values: %v", profile)
	}
	if _, ok := profile["is_verified"]; ok {
		t.Error("is_verified is not part of the profile view")
	}
}

func TestSerializeAccounts_empty(t *testing.T) {
	raw, _ := json.Marshal(users.SerializeAccounts(nil, nil))
	if string(raw) != "[]" {
		t.Errorf("got %s, want []", raw)
	}
}
