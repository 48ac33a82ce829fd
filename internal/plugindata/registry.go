package plugindata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/WailSalutem-Health-Care/referral-service/internal/apperrors"
)

const (
	PluginMedicationReminders = "medication-reminders"
	PluginAllergyTracker      = "allergy-tracker"

	maxPayloadBytes = 64 << 10
)

// Plugin is a clinical module allowed to store data per patient.
type Plugin struct {
	Name        string
	Description string
	Validate    func(data json.RawMessage) error
}

// Registry is the fixed set of known plugins.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[p.Name] = p
	}
	return r
}

// DefaultRegistry returns the plugins shipped with the service.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Plugin{
			Name:        PluginMedicationReminders,
			Description: "Medication schedule and reminder times",
			Validate:    validateMedicationReminders,
		},
		Plugin{
			Name:        PluginAllergyTracker,
			Description: "Known allergies and reaction severity",
			Validate:    validateAllergyTracker,
		},
	)
}

// Lookup resolves a plugin by name. Unknown names are a validation error.
func (r *Registry) Lookup(name string) (Plugin, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Plugin{}, fmt.Errorf("%w: plugin is required", apperrors.ErrValidation)
	}
	p, ok := r.plugins[name]
	if !ok {
		return Plugin{}, fmt.Errorf("%w: unknown plugin %q (known: %s)", apperrors.ErrValidation, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckPayload enforces the rules shared by every plugin, then the plugin's own.
func (p Plugin) CheckPayload(data json.RawMessage) error {
	if len(data) > maxPayloadBytes {
		return fmt.Errorf("%w: plugin data exceeds %d bytes", apperrors.ErrValidation, maxPayloadBytes)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return fmt.Errorf("%w: plugin data must be a JSON object", apperrors.ErrValidation)
	}
	if p.Validate == nil {
		return nil
	}
	return p.Validate(trimmed)
}

type medicationReminders struct {
	Reminders []struct {
		Medication string   `json:"medication"`
		Dosage     string   `json:"dosage"`
		Times      []string `json:"times"`
	} `json:"reminders"`
}

func validateMedicationReminders(data json.RawMessage) error {
	var payload medicationReminders
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: invalid medication-reminders payload: %v", apperrors.ErrValidation, err)
	}
	for i, r := range payload.Reminders {
		if strings.TrimSpace(r.Medication) == "" {
			return fmt.Errorf("%w: reminders[%d].medication is required", apperrors.ErrValidation, i)
		}
		for _, t := range r.Times {
			if _, err := time.Parse("15:04", t); err != nil {
				return fmt.Errorf("%w: reminders[%d] time %q must be HH:MM", apperrors.ErrValidation, i, t)
			}
		}
	}
	return nil
}

var allergySeverities = map[string]bool{"mild": true, "moderate": true, "severe": true}

type allergyTracker struct {
	Allergies []struct {
		Substance string `json:"substance"`
		Severity  string `json:"severity"`
		Reaction  string `json:"reaction"`
	} `json:"allergies"`
}

func validateAllergyTracker(data json.RawMessage) error {
	var payload allergyTracker
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: invalid allergy-tracker payload: %v", apperrors.ErrValidation, err)
	}
	for i, a := range payload.Allergies {
		if strings.TrimSpace(a.Substance) == "" {
			return fmt.Errorf("%w: allergies[%d].substance is required", apperrors.ErrValidation, i)
		}
		if a.Severity != "" && !allergySeverities[strings.ToLower(a.Severity)] {
			return fmt.Errorf("%w: allergies[%d].severity must be mild, moderate or severe", apperrors.ErrValidation, i)
		}
	}
	return nil
}
