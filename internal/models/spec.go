package models

// Spec is the canonical, post-validation NuggetSpec: a declarative
// description of what to build.
type Spec struct {
	Nugget       NuggetInfo        `json:"nugget"`
	Requirements []Requirement     `json:"requirements,omitempty"`
	Style        *Style            `json:"style,omitempty"`
	Skills       *Skills           `json:"skills,omitempty"`
	Rules        []Rule            `json:"rules,omitempty"`
	Portals      []Portal          `json:"portals,omitempty"`
	Devices      []Device          `json:"devices,omitempty"`
	Workflow     Workflow          `json:"workflow"`
	Deployment   *Deployment       `json:"deployment,omitempty"`
}

// NuggetInfo is the required core of a spec: what to build and its kind.
type NuggetInfo struct {
	Goal        string `json:"goal"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Requirement is one typed, free-text requirement line.
type Requirement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Style carries visual/personality preferences, plus the legacy
// single-field color/theme/tone preferences some older specs still use.
type Style struct {
	Visual      string `json:"visual,omitempty"`
	Personality string `json:"personality,omitempty"`
	Colors      string `json:"colors,omitempty"`
	Theme       string `json:"theme,omitempty"`
	Tone        string `json:"tone,omitempty"`
}

// Skills groups the feature and style skill text blocks injected into
// builder/tester prompts.
type Skills struct {
	Feature []SkillEntry `json:"feature,omitempty"`
	Style   []SkillEntry `json:"style,omitempty"`
}

// SkillEntry is one named skill with its body text and the agent
// categories it applies to.
type SkillEntry struct {
	Name       string   `json:"name"`
	Body       string   `json:"body"`
	Categories []string `json:"categories,omitempty"`
}

// Rule is a validation rule, either always-on or gated on a trigger.
type Rule struct {
	Name    string `json:"name"`
	Body    string `json:"body"`
	Trigger string `json:"trigger"` // "always" or "on_task_complete"
}

// Portal is an external integration surface surfaced to the agent as a
// <user_input name="portal:NAME"> block.
type Portal struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Device describes a target hardware device for the structural digest /
// deployment phase.
type Device struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Workflow carries policy toggles that drive the phase machine and human
// gates.
type Workflow struct {
	TestingEnabled bool          `json:"testing_enabled"`
	Gates          []GateTrigger `json:"gates,omitempty"`
}

// GateTrigger names one spec-configured human gate point. The scheduler
// does not read Gates: its "midpoint of task completion" gate is turned
// on or off by scheduler.Config.MidpointGateEnabled alone.
type GateTrigger struct {
	Kind string `json:"kind"`
}

// Deployment names the target the build is deployed to, if any.
type Deployment struct {
	Target string `json:"target"` // e.g. "esp32", "web"
}

// ValidationError is one path/message pair returned by SpecValidator
// when a spec fails validation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}
