package exchange

import (
	"fmt"
	"strings"
)

// Expertise 角色专业领域标签。
type Expertise string

const (
	ExpertiseActor       Expertise = "actor"
	ExpertiseBusinessman Expertise = "businessman"
	ExpertiseFitness     Expertise = "fitness"
	ExpertiseLifeCoach   Expertise = "life_coach"
)

// Humor 幽默风格标签。
type Humor string

const (
	HumorCalm   Humor = "calm"
	HumorHappy  Humor = "happy"
	HumorStrict Humor = "strict"
	HumorFunny  Humor = "funny"
)

// ExpertLevel 专业程度标签。
type ExpertLevel string

const (
	LevelBasic    ExpertLevel = "basic"
	LevelNormal   ExpertLevel = "normal"
	LevelAdvanced ExpertLevel = "advanced"
	LevelElite    ExpertLevel = "elite"
)

// Language 回复语言。
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageHindi   Language = "Hindi"
)

// Option is a selectable tag with its display label.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var (
	expertiseOptions = []Option{
		{Value: string(ExpertiseActor), Label: "Actor"},
		{Value: string(ExpertiseBusinessman), Label: "Businessman"},
		{Value: string(ExpertiseFitness), Label: "Fitness"},
		{Value: string(ExpertiseLifeCoach), Label: "Life Coach"},
	}
	humorOptions = []Option{
		{Value: string(HumorCalm), Label: "Calm"},
		{Value: string(HumorHappy), Label: "Happy"},
		{Value: string(HumorStrict), Label: "Strict"},
		{Value: string(HumorFunny), Label: "Funny"},
	}
	levelOptions = []Option{
		{Value: string(LevelBasic), Label: "Basic"},
		{Value: string(LevelNormal), Label: "Normal"},
		{Value: string(LevelAdvanced), Label: "Advanced"},
		{Value: string(LevelElite), Label: "Elite"},
	}
	languageOptions = []Option{
		{Value: string(LanguageEnglish), Label: "English"},
		{Value: string(LanguageHindi), Label: "Hindi"},
	}
)

func ExpertiseOptions() []Option { return append([]Option(nil), expertiseOptions...) }
func HumorOptions() []Option     { return append([]Option(nil), humorOptions...) }
func LevelOptions() []Option     { return append([]Option(nil), levelOptions...) }
func LanguageOptions() []Option  { return append([]Option(nil), languageOptions...) }

// ParseExpertise accepts a tag value or its label, case-insensitively.
func ParseExpertise(raw string) (Expertise, error) {
	v, err := parseOption("expertise", expertiseOptions, raw)
	return Expertise(v), err
}

// ParseHumor accepts a tag value or its label, case-insensitively.
func ParseHumor(raw string) (Humor, error) {
	v, err := parseOption("humor", humorOptions, raw)
	return Humor(v), err
}

// ParseExpertLevel accepts a tag value or its label, case-insensitively.
func ParseExpertLevel(raw string) (ExpertLevel, error) {
	v, err := parseOption("expert level", levelOptions, raw)
	return ExpertLevel(v), err
}

// ParseLanguage accepts a tag value or its label, case-insensitively.
func ParseLanguage(raw string) (Language, error) {
	v, err := parseOption("language", languageOptions, raw)
	return Language(v), err
}

// LabelFor returns the display label of value within options, or value itself.
func LabelFor(options []Option, value string) string {
	for _, opt := range options {
		if opt.Value == value {
			return opt.Label
		}
	}
	return value
}

func parseOption(kind string, options []Option, raw string) (string, error) {
	needle := strings.TrimSpace(raw)
	for _, opt := range options {
		if strings.EqualFold(opt.Value, needle) || strings.EqualFold(opt.Label, needle) {
			return opt.Value, nil
		}
	}
	return "", fmt.Errorf("unknown %s %q", kind, raw)
}
