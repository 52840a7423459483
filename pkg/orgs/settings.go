package orgs

import (
	"encoding/json"
	"fmt"
)

// OnboardingType selects how an agent runs its flow
type OnboardingType string

const (
	OnboardingTypeStandard OnboardingType = "standard"
	OnboardingTypeVoice    OnboardingType = "voice"
	OnboardingTypeHybrid   OnboardingType = "hybrid"
)

// Valid reports whether the onboarding type is known. Empty means standard.
func (t OnboardingType) Valid() bool {
	switch t {
	case "", OnboardingTypeStandard, OnboardingTypeVoice, OnboardingTypeHybrid:
		return true
	default:
		return false
	}
}

// AgentSettings is the structured agent configuration. Keys that are not
// modeled here round-trip through Extensions untouched.
type AgentSettings struct {
	OnboardingType OnboardingType
	VoiceEnabled   bool
	Published      bool
	Steps          []string
	Extensions     map[string]json.RawMessage
}

const (
	keyOnboardingType = "onboardingType"
	keyVoiceEnabled   = "voiceEnabled"
	keyPublished      = "published"
	keySteps          = "steps"
)

// MarshalJSON emits modeled fields alongside any extension keys
func (s AgentSettings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extensions)+4)
	for k, v := range s.Extensions {
		out[k] = v
	}
	if s.OnboardingType != "" {
		out[keyOnboardingType] = s.OnboardingType
	}
	out[keyVoiceEnabled] = s.VoiceEnabled
	out[keyPublished] = s.Published
	if len(s.Steps) > 0 {
		out[keySteps] = s.Steps
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes modeled fields and keeps everything else in Extensions
func (s *AgentSettings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid agent settings: %w", err)
	}

	*s = AgentSettings{}
	for key, value := range raw {
		var err error
		switch key {
		case keyOnboardingType:
			err = json.Unmarshal(value, &s.OnboardingType)
		case keyVoiceEnabled:
			err = json.Unmarshal(value, &s.VoiceEnabled)
		case keyPublished:
			err = json.Unmarshal(value, &s.Published)
		case keySteps:
			err = json.Unmarshal(value, &s.Steps)
		default:
			if s.Extensions == nil {
				s.Extensions = make(map[string]json.RawMessage)
			}
			s.Extensions[key] = value
		}
		if err != nil {
			return fmt.Errorf("invalid agent setting %s: %w", key, err)
		}
	}

	if !s.OnboardingType.Valid() {
		return fmt.Errorf("invalid agent setting %s: unknown value %q", keyOnboardingType, s.OnboardingType)
	}
	return nil
}
