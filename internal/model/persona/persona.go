package persona

import (
	"encoding/json"

	"github.com/mediafirewall/persona-voice/internal/model/exchange"
)

// DefaultBackendID 后端识别的人设 ID，所有目录条目都是它的不同专业方向。
const DefaultBackendID = "sunil_shetty"

// DefaultMaxVideoBytes bounds user video uploads for video-capable personas.
const DefaultMaxVideoBytes int64 = 50 << 20

// Capability is the closed set of exchange shapes a persona accepts.
type Capability interface {
	capability()
}

// TextOnly personas accept text turns only.
type TextOnly struct{}

// VideoCapable personas additionally accept one bounded-size video per turn.
type VideoCapable struct {
	MaxBytes int64
}

func (TextOnly) capability()     {}
func (VideoCapable) capability() {}

// Persona captures the catalog entry shown on the persona picker.
type Persona struct {
	ID          string             `json:"id"`
	DisplayName string             `json:"displayName"`
	Subtitle    string             `json:"subtitle"`
	AvatarImage string             `json:"avatarImage"`
	Icon        string             `json:"icon"`
	Expertise   exchange.Expertise `json:"expertise"`
	Capability  Capability         `json:"-"`
}

// AcceptsVideo reports whether the persona takes video uploads and the upload limit.
func (p Persona) AcceptsVideo() (VideoCapable, bool) {
	v, ok := p.Capability.(VideoCapable)
	return v, ok
}

// WithVideoLimit returns a copy with the upload limit replaced; text-only personas are
// returned unchanged.
func (p Persona) WithVideoLimit(maxBytes int64) Persona {
	if _, ok := p.AcceptsVideo(); ok && maxBytes > 0 {
		p.Capability = VideoCapable{MaxBytes: maxBytes}
	}
	return p
}

// MarshalJSON flattens the capability variant for the frontend.
func (p Persona) MarshalJSON() ([]byte, error) {
	type alias Persona
	out := struct {
		alias
		AcceptsVideo  bool  `json:"acceptsVideo"`
		MaxVideoBytes int64 `json:"maxVideoBytes,omitempty"`
	}{alias: alias(p)}
	if v, ok := p.AcceptsVideo(); ok {
		out.AcceptsVideo = true
		out.MaxVideoBytes = v.MaxBytes
	}
	return json.Marshal(out)
}

// Seed provides the default catalog: four expertise variants of the same backend persona.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "actor",
			DisplayName: "Suniel Shetty – Actor",
			Subtitle:    "Cinema & Discipline",
			AvatarImage: "https://blogger.googleusercontent.com/img/b/R29vZ2xl/AVvXsEgJhaSrgKwzbX-eVYBNh6KHja4QDUrT6UFtRy3eMtnGCDUNBVbxQPi8vfKX0ZEZckXX4driAkTRiog6COATyb_CJ8t6uCYVbjIG-m9CbbW-O1tVtxn4eDVXzbgIoWosJewPu2wLU699-YflK7TDN7Sv3lGMsuLDSfQO8rFScw58SOcatVYKj0tx3EEH1Otx/s768/sunil_shetty_003_1024x768_drhx.jpg",
			Icon:        "actor",
			Expertise:   exchange.ExpertiseActor,
			Capability:  TextOnly{},
		},
		{
			ID:          "businessman",
			DisplayName: "Suniel Shetty – Businessman",
			Subtitle:    "Business & Ethics",
			AvatarImage: "https://images.yourstory.com/cs/2/11718bd02d6d11e9aa979329348d4c3e/Imagelwtj-1599135426037.jpg?mode=crop&crop=faces&ar=2%3A1&format=auto&w=1920&q=75",
			Icon:        "businessman",
			Expertise:   exchange.ExpertiseBusinessman,
			Capability:  TextOnly{},
		},
		{
			ID:          "fitness",
			DisplayName: "Suniel Shetty – Fitness Mentor",
			Subtitle:    "Health & Strength",
			AvatarImage: "https://filmfare.wwmindia.com/content/2017/Jun/thum_1496462157.jpg",
			Icon:        "fitness",
			Expertise:   exchange.ExpertiseFitness,
			Capability:  VideoCapable{MaxBytes: DefaultMaxVideoBytes},
		},
		{
			ID:          "life_coach",
			DisplayName: "Suniel Shetty – Life Coach",
			Subtitle:    "Wisdom & Guidance",
			AvatarImage: "https://c.ndtvimg.com/gws/ms/sunil-shetty-actor-producer-and-more/assets/2.jpeg?1723380029",
			Icon:        "life_coach",
			Expertise:   exchange.ExpertiseLifeCoach,
			Capability:  TextOnly{},
		},
	}
}
