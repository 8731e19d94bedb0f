package prompts

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Script is everything the receptionist says, plus the post-call summary instruction.
type Script struct {
	Voice           string `yaml:"voice"`
	SharedGreeting  string `yaml:"shared_greeting"`
	DefaultGreeting string `yaml:"default_greeting"`
	Ask             string `yaml:"ask"`
	NoInput         string `yaml:"no_input"`
	Closing         string `yaml:"closing"`

	// GatherTimeoutSeconds is how long Twilio waits for the caller to start speaking.
	GatherTimeoutSeconds int `yaml:"gather_timeout_seconds"`

	SummaryInstruction string `yaml:"summary_instruction"`
}

const defaultSummaryInstruction = `
You are an AI receptionist writing post-call notes.
Summarize the call in 2 short sentences. Extract intent (info | sales | support | other),
urgency (low | medium | high), and lead details (name, phone, reason, next_step, needs_follow_up boolean).
Respond ONLY with JSON matching:
{
  "summary": "...",
  "intent": "info|sales|support|other",
  "urgency": "low|medium|high",
  "lead": {
    "name": "...",
    "phone": "...",
    "reason": "...",
    "next_step": "...",
    "needs_follow_up": true
  }
}
Transcript:
`

func Default() Script {
	return Script{
		Voice:                "Polly.Joanna",
		SharedGreeting:       "Thanks for calling our shared AI receptionist.",
		DefaultGreeting:      "Thanks for calling Bot Spinner.",
		Ask:                  "Please tell us your name and why you are calling.",
		NoInput:              "Thanks, someone will follow up shortly.",
		Closing:              "Thanks for sharing that information. Our team will reach out shortly.",
		GatherTimeoutSeconds: 6,
		SummaryInstruction:   defaultSummaryInstruction,
	}
}

// Load returns the default script overlaid with the YAML file at path.
// Keys absent from the file keep their defaults. An empty path means defaults only.
func Load(path string) (Script, error) {
	s := Default()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read voice script: %w", err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, fmt.Errorf("parse voice script %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

func (s Script) Validate() error {
	var errs []error
	for name, v := range map[string]string{
		"shared_greeting":     s.SharedGreeting,
		"default_greeting":    s.DefaultGreeting,
		"ask":                 s.Ask,
		"closing":             s.Closing,
		"summary_instruction": s.SummaryInstruction,
	} {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("voice script: %s must not be empty", name))
		}
	}
	if s.GatherTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("voice script: gather_timeout_seconds must be > 0"))
	}
	return errors.Join(errs...)
}

// Greeting is spoken before Ask. shared is true when calls land on the
// shared receptionist line rather than a single business.
func (s Script) Greeting(shared bool) string {
	if shared {
		return s.SharedGreeting
	}
	return s.DefaultGreeting
}

// Prompt is the gather prompt: greeting followed by the question.
func (s Script) Prompt(shared bool) string {
	return strings.TrimSpace(s.Greeting(shared) + " " + s.Ask)
}
