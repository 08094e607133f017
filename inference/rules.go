package inference

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v2"
)

// DroneType is the classification outcome.
type DroneType string

const (
	Racing         DroneType = "Racing Drone"
	Agriculture    DroneType = "Agriculture Drone"
	Delivery       DroneType = "Delivery Drone"
	Surveillance   DroneType = "Surveillance Drone"
	Mapping        DroneType = "Mapping Drone"
	GeneralPurpose DroneType = "General Purpose UAV"
)

// DroneTypes lists every valid classification.
func DroneTypes() []DroneType {
	return []DroneType{Racing, Agriculture, Delivery, Surveillance, Mapping, GeneralPurpose}
}

func (d DroneType) Valid() bool {
	for _, t := range DroneTypes() {
		if d == t {
			return true
		}
	}
	return false
}

// Rule assigns DroneType when the CEL expression When evaluates to true.
type Rule struct {
	DroneType DroneType `yaml:"drone_type"`
	When      string    `yaml:"when"`
}

// RulesFile is the ordered rule cascade; the first matching rule wins.
type RulesFile struct {
	Default DroneType `yaml:"default"`
	Rules   []Rule    `yaml:"rules"`
}

// DefaultRules is the stock cascade. Order and thresholds are part of the API contract.
func DefaultRules() RulesFile {
	return RulesFile{
		Default: GeneralPurpose,
		Rules: []Rule{
			{DroneType: Racing, When: "advance_ratio >= 0.7 && pitch >= 6.5"},
			{DroneType: Agriculture, When: "thrust_coefficient >= 0.085 && advance_ratio <= 0.5"},
			{DroneType: Delivery, When: "thrust_coefficient >= 0.085 && power_coefficient >= 0.06"},
			{DroneType: Surveillance, When: "efficiency >= 0.58"},
			{DroneType: Mapping, When: "efficiency >= 0.52 && power_coefficient <= 0.065"},
		},
	}
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) (RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesFile{}, err
	}
	var file RulesFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return RulesFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return file, nil
}

// Inputs are the values a rule expression can reference.
type Inputs struct {
	Diameter          float64
	Pitch             float64
	Blades            int
	AdvanceRatio      float64
	ThrustCoefficient float64
	PowerCoefficient  float64
	Efficiency        float64
}

func (in Inputs) activation() map[string]interface{} {
	return map[string]interface{}{
		"diameter":           in.Diameter,
		"pitch":              in.Pitch,
		"blades":             int64(in.Blades),
		"advance_ratio":      in.AdvanceRatio,
		"thrust_coefficient": in.ThrustCoefficient,
		"power_coefficient":  in.PowerCoefficient,
		"efficiency":         in.Efficiency,
	}
}

func newRulesEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("diameter", cel.DoubleType),
		cel.Variable("pitch", cel.DoubleType),
		cel.Variable("blades", cel.IntType),
		cel.Variable("advance_ratio", cel.DoubleType),
		cel.Variable("thrust_coefficient", cel.DoubleType),
		cel.Variable("power_coefficient", cel.DoubleType),
		cel.Variable("efficiency", cel.DoubleType),
		cel.CrossTypeNumericComparisons(true),
	)
}

type compiledRule struct {
	droneType DroneType
	expr      string
	prg       cel.Program
}

// Classifier evaluates a compiled rule cascade. Safe for concurrent use.
type Classifier struct {
	rules    []compiledRule
	fallback DroneType
}

// NewClassifier compiles file. At least one rule is required and every drone
// type, including the default, must be a known one.
func NewClassifier(file RulesFile) (*Classifier, error) {
	if file.Default == "" {
		file.Default = GeneralPurpose
	}
	if !file.Default.Valid() {
		return nil, fmt.Errorf("unknown default drone type %q", file.Default)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("rules file defines no rules")
	}

	env, err := newRulesEnv()
	if err != nil {
		return nil, err
	}

	c := &Classifier{fallback: file.Default, rules: make([]compiledRule, 0, len(file.Rules))}
	for i, rule := range file.Rules {
		if !rule.DroneType.Valid() {
			return nil, fmt.Errorf("rule %d: unknown drone type %q", i, rule.DroneType)
		}
		ast, issues := env.Compile(rule.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.DroneType, issues.Err())
		}
		if out := ast.OutputType(); out != nil && out.String() != cel.BoolType.String() {
			return nil, fmt.Errorf("rule %d (%s): expression yields %s, want bool", i, rule.DroneType, out)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.DroneType, err)
		}
		c.rules = append(c.rules, compiledRule{droneType: rule.DroneType, expr: rule.When, prg: prg})
	}
	return c, nil
}

// Classify returns the drone type of the first rule that holds, or the default.
func (c *Classifier) Classify(in Inputs) (DroneType, error) {
	activation := in.activation()
	for _, rule := range c.rules {
		out, _, err := rule.prg.Eval(activation)
		if err != nil {
			return "", fmt.Errorf("evaluate %q: %w", rule.expr, err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return "", fmt.Errorf("evaluate %q: got %T, want bool", rule.expr, out.Value())
		}
		if matched {
			return rule.droneType, nil
		}
	}
	return c.fallback, nil
}

// Rules returns the source of the compiled cascade.
func (c *Classifier) Rules() RulesFile {
	file := RulesFile{Default: c.fallback, Rules: make([]Rule, len(c.rules))}
	for i, r := range c.rules {
		file.Rules[i] = Rule{DroneType: r.droneType, When: r.expr}
	}
	return file
}
