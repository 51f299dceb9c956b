// Package butcher implements the Butcher-tableau catalogue: named
// Runge-Kutta integration schemes loaded from an embedded YAML document
// rather than hand-built Go literals, so adding a scheme is a data change,
// not a code change.
package butcher

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed tableaux.yaml
var catalogueYAML []byte

// rawTableau mirrors the YAML document's shape before being reduced to a
// Tableau's row-major float64 matrices.
type rawTableau struct {
	Stages   int         `yaml:"stages"`
	A        [][]float64 `yaml:"a"`
	B        []float64   `yaml:"b"`
	C        []float64   `yaml:"c"`
	Implicit bool        `yaml:"implicit"`
}

// Tableau is one Butcher tableau: the A matrix, weight vector B, and node
// vector C of an s-stage Runge-Kutta method.
type Tableau struct {
	Name     string
	Stages   int
	A        [][]float64
	B        []float64
	C        []float64
	Implicit bool
}

// Row returns the A matrix's i-th row (the coefficients multiplying each
// prior stage's slope when computing stage i).
func (t *Tableau) Row(i int) []float64 { return t.A[i] }

// Weight returns b[i], the i-th stage's contribution to the final update.
func (t *Tableau) Weight(i int) float64 { return t.B[i] }

// Node returns c[i], the i-th stage's fractional position within the step.
func (t *Tableau) Node(i int) float64 { return t.C[i] }

var catalogue map[string]*Tableau

func init() {
	raw := map[string]rawTableau{}
	if err := yaml.Unmarshal(catalogueYAML, &raw); err != nil {
		panic(fmt.Sprintf("butcher: embedded tableaux.yaml is malformed: %v", err))
	}
	catalogue = make(map[string]*Tableau, len(raw))
	for name, rt := range raw {
		catalogue[name] = &Tableau{
			Name:     name,
			Stages:   rt.Stages,
			A:        rt.A,
			B:        rt.B,
			C:        rt.C,
			Implicit: rt.Implicit,
		}
	}
}

// Get returns the named tableau. The catalogue holds seven schemes:
// EULER, RUNGE_KUTTA_2, RUNGE_KUTTA_3, HEUN, RUNGE_KUTTA_4,
// IMPLICIT_MIDPOINT_2, GAUSS_LEGENDRE_4.
func Get(name string) (*Tableau, error) {
	t, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("butcher: unknown tableau %q", name)
	}
	return t, nil
}

// Names returns every tableau name in the catalogue, in no particular
// order.
func Names() []string {
	out := make([]string, 0, len(catalogue))
	for name := range catalogue {
		out = append(out, name)
	}
	return out
}

// Selector holds a caller's current choice of tableau, defaulting to
// RUNGE_KUTTA_4.
type Selector struct {
	current *Tableau
}

// NewSelector returns a Selector defaulted to RUNGE_KUTTA_4.
func NewSelector() *Selector {
	s := &Selector{}
	t, err := Get("RUNGE_KUTTA_4")
	if err != nil {
		panic("butcher: RUNGE_KUTTA_4 missing from embedded catalogue")
	}
	s.current = t
	return s
}

// GetName returns the currently selected tableau's name.
func (s *Selector) GetName() string { return s.current.Name }

// SetTableau switches the current selection by name.
func (s *Selector) SetTableau(name string) error {
	t, err := Get(name)
	if err != nil {
		return err
	}
	s.current = t
	return nil
}

// Current returns the currently selected tableau.
func (s *Selector) Current() *Tableau { return s.current }
