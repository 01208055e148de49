package models

import "time"

// Session is the persisted client-side wallet session.
type Session struct {
	Authenticated    bool                 `json:"authenticated"`
	Tokens           Tokens               `json:"-"` // tokens are persisted under their own keys
	CurrentLayer     *Layer               `json:"currentLayer,omitempty"`
	CurrentUserLayer *UserLayer           `json:"currentUserLayer,omitempty"`
	User             *User                `json:"user,omitempty"`
	SelectedLayerID  string               `json:"selectedLayerId,omitempty"`
	UserLayerCache   map[string]UserLayer `json:"userLayerCache,omitempty"`
}

// Valid reports whether the authenticated flag is backed by a user and an access token.
func (s Session) Valid() bool {
	if !s.Authenticated {
		return true
	}
	return s.User != nil && s.Tokens.AccessToken != ""
}

func (s Session) Clone() Session {
	out := s
	if s.CurrentLayer != nil {
		l := *s.CurrentLayer
		out.CurrentLayer = &l
	}
	if s.CurrentUserLayer != nil {
		ul := *s.CurrentUserLayer
		out.CurrentUserLayer = &ul
	}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.UserLayerCache != nil {
		out.UserLayerCache = make(map[string]UserLayer, len(s.UserLayerCache))
		for k, v := range s.UserLayerCache {
			out.UserLayerCache[k] = v
		}
	}
	return out
}

// PendingConnection marks an in-flight connect-and-sign attempt. Never persisted.
type PendingConnection struct {
	ID        string    `json:"id"`
	LayerID   string    `json:"layerId"`
	IsLinking bool      `json:"isLinking"`
	StartedAt time.Time `json:"startedAt"`
}
