package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email"`
	PhoneNumber         string         `json:"phoneNumber" gorm:"index"`
	Password            string         `json:"-"`
	SocialLogin         bool           `json:"socialLogin"`
	SocialProvider      string         `json:"socialProvider"`
	AvatarURL           string         `json:"avatarURL"`
	BusinessName        string         `json:"businessName" gorm:"size:256"`
	BusinessEmail       string         `json:"businessEmail" gorm:"size:256"`
	BusinessPhone       string         `json:"businessPhone" gorm:"size:32"`
	SavedListings       datatypes.JSON `json:"savedListings"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:user;index"` // user, seller, admin
	Listings            []TireListing  `json:"listings,omitempty" gorm:"foreignKey:SellerID;references:ID"`
}

// Custom JSON marshaling so datatypes.JSON columns render as arrays, never base64
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		SavedListings []int    `json:"savedListings,omitempty"`
		PushTokens    []string `json:"pushTokens,omitempty"`
		*Alias
	}{
		SavedListings: []int{},
		PushTokens:    []string{},
		Alias:         (*Alias)(u),
	}

	if u.SavedListings != nil {
		var saved []int
		if err := json.Unmarshal(u.SavedListings, &saved); err == nil {
			aux.SavedListings = saved
		}
	}

	if u.PushTokens != nil {
		var tokens []string
		if err := json.Unmarshal(u.PushTokens, &tokens); err == nil {
			aux.PushTokens = tokens
		}
	}

	return json.Marshal(aux)
}
