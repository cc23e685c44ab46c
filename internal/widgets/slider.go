// Package widgets implements the concrete interactive widgets on top of the
// generic element base: a numeric slider, a form wrapper, a paginated table
// and a transformable dataframe.
package widgets

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"notebookcore/internal/runtime"
	"notebookcore/internal/ui"
)

// SliderConfig configures a numeric slider. Either Start/Stop/Step or the
// explicit Steps list may be given, never both.
type SliderConfig struct {
	Start float64
	Stop  float64
	Step  float64 // default 1
	// Steps enumerates the allowed values explicitly. Conflicts with
	// Start/Stop/Step.
	Steps []float64
	// Value is the initial value; defaults to the range start (or the first
	// step).
	Value    *float64
	Label    *string
	OnChange func(float64)
}

// Slider is a numeric range widget. It exists mostly to exercise the base
// element paths: construction, resumed values, form wrapping and cloning
// with a rebound callback.
type Slider struct {
	el    *ui.Element[float64, float64]
	cfg   SliderConfig
	last  float64
	fired int
}

// NewSlider validates the range configuration and constructs the element.
func NewSlider(ctx *runtime.Context, cfg SliderConfig) (*Slider, error) {
	if len(cfg.Steps) > 0 && (cfg.Start != 0 || cfg.Stop != 0 || cfg.Step != 0) {
		return nil, fmt.Errorf("widgets: slider: steps conflicts with start/stop/step")
	}
	if len(cfg.Steps) == 0 {
		if cfg.Step == 0 {
			cfg.Step = 1
		}
		if cfg.Step < 0 {
			return nil, fmt.Errorf("widgets: slider: step must be positive, got %v", cfg.Step)
		}
		if cfg.Stop <= cfg.Start {
			return nil, fmt.Errorf("widgets: slider: stop %v must exceed start %v", cfg.Stop, cfg.Start)
		}
	}

	initial := sliderDefault(cfg)
	if cfg.Value != nil {
		initial = *cfg.Value
	}

	s := &Slider{cfg: cfg}
	el, err := ui.New(ctx, ui.Config[float64, float64]{
		ComponentName: "slider",
		InitialValue:  initial,
		Label:         cfg.Label,
		Convert:       s.convert,
		OnChange:      s.onChange,
		Args:          sliderArgs(cfg),
		Owner:         s,
	})
	if err != nil {
		return nil, err
	}
	s.el = el
	return s, nil
}

func sliderDefault(cfg SliderConfig) float64 {
	if len(cfg.Steps) > 0 {
		return cfg.Steps[0]
	}
	return cfg.Start
}

func sliderArgs(cfg SliderConfig) map[string]any {
	if len(cfg.Steps) > 0 {
		return map[string]any{"steps": cfg.Steps}
	}
	return map[string]any{"start": cfg.Start, "stop": cfg.Stop, "step": cfg.Step}
}

func (s *Slider) convert(v float64) (float64, error) {
	if math.IsNaN(v) {
		return 0, fmt.Errorf("slider value is NaN")
	}
	if len(s.cfg.Steps) > 0 {
		for _, step := range s.cfg.Steps {
			if step == v {
				return v, nil
			}
		}
		return 0, fmt.Errorf("slider value %v is not one of the configured steps", v)
	}
	if v < s.cfg.Start || v > s.cfg.Stop {
		return 0, fmt.Errorf("slider value %v outside [%v, %v]", v, s.cfg.Start, s.cfg.Stop)
	}
	return v, nil
}

// onChange records the change on this instance before delegating to the user
// callback. Being bound to the receiver, it is exactly the callback a clone
// must rebind.
func (s *Slider) onChange(v float64) {
	s.last = v
	s.fired++
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(v)
	}
}

// Element exposes the underlying element, used by forms and the kernel.
func (s *Slider) Element() *ui.Element[float64, float64] { return s.el }

// ID returns the widget identity.
func (s *Slider) ID() runtime.ElementID { return s.el.ID() }

// Value returns the kernel-side value, subject to the creating-cell guard.
func (s *Slider) Value() (float64, error) { return s.el.Value() }

// Update applies a frontend-sent value.
func (s *Slider) Update(v float64) error { return s.el.Update(v) }

// UpdateRaw applies a raw frontend payload; the kernel's value-update entry
// point reaches the widget through this.
func (s *Slider) UpdateRaw(raw json.RawMessage) error { return s.el.UpdateRaw(raw) }

// InvokeRaw routes a frontend RPC into the slider's registered functions.
func (s *Slider) InvokeRaw(ctx context.Context, name string, args json.RawMessage) (any, error) {
	return s.el.InvokeRaw(ctx, name, args)
}

// Descriptor returns the component descriptor.
func (s *Slider) Descriptor() ui.Descriptor { return s.el.Descriptor() }

// LastChanged returns the last value delivered to this instance's callback
// and how many times it fired.
func (s *Slider) LastChanged() (float64, int) { return s.last, s.fired }

// Clone produces an independent slider under a new identity. The element
// clone rebinds the change callback to the new instance, so updates to the
// clone never touch the original's state.
func (s *Slider) Clone() *Slider {
	clone := &Slider{cfg: s.cfg}
	clone.el = s.el.CloneWithOnChange(clone.onChange)
	clone.el.AdoptOwner(clone)
	return clone
}
